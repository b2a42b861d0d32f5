package queue

import (
	"time"

	"scrobbled/internal/listenbrainz"
)

// Item is one queued listen awaiting delivery.
type Item struct {
	Seq           int64
	ID            string
	Listen        listenbrainz.Listen
	ArtistName    string
	TrackName     string
	RetryCount    int
	LastAttemptAt *time.Time
	EnqueuedAt    time.Time
}

// Attempted reports whether delivery has been tried at least once.
func (i *Item) Attempted() bool {
	return i.LastAttemptAt != nil
}
