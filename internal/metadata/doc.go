// Package metadata composes the persisted identifier cache with the
// MusicBrainz resolver into a single write-through identification path.
package metadata
