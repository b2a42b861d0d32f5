// Package notifications delivers activity notifications via ntfy.
package notifications
