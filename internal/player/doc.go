// Package player consumes playback notifications from an MPRIS media
// player over the D-Bus session bus.
package player
