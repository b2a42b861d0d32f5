package media

import (
	"strings"
	"time"
)

// Track carries the host-supplied attributes of a playback item.
type Track struct {
	ID          string
	Artist      string
	Title       string
	Album       string
	Duration    time.Duration
	TrackNumber int
	ISRC        string
}

// Valid reports whether the track carries enough metadata to scrobble.
func (t Track) Valid() bool {
	return strings.TrimSpace(t.Artist) != "" && strings.TrimSpace(t.Title) != ""
}

// SameItem reports whether two tracks refer to the same host item.
func (t Track) SameItem(other Track) bool {
	if t.ID != "" || other.ID != "" {
		return t.ID == other.ID
	}
	return t.Fingerprint() == other.Fingerprint()
}
