package media

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Fingerprint is the derived cache key for a track. When the host supplies
// an ISRC the code is used verbatim; otherwise the key is a normalized
// artist|title|album tuple. Two fingerprints are equal iff their normalized
// forms are byte-equal.
type Fingerprint string

var foldCaser = cases.Fold()

// Fingerprint derives the cache key for the track.
func (t Track) Fingerprint() Fingerprint {
	if isrc := strings.TrimSpace(t.ISRC); isrc != "" {
		return Fingerprint("isrc:" + isrc)
	}
	return Fingerprint("text:" + normalizeField(t.Artist) + "|" + normalizeField(t.Title) + "|" + normalizeField(t.Album))
}

func normalizeField(value string) string {
	return norm.NFKC.String(foldCaser.String(strings.TrimSpace(value)))
}
