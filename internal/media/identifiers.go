package media

// Source records how an identifier set was obtained.
type Source string

const (
	// SourceExact marks identifiers resolved through an ISRC lookup.
	SourceExact Source = "exact"
	// SourceFuzzy marks identifiers resolved through text search.
	SourceFuzzy Source = "fuzzy"
	// SourceNone marks a resolution that produced no identifiers.
	SourceNone Source = "none"
)

// IdentifierSet is the immutable result of a MusicBrainz resolution.
// ArtistMBIDs preserves the API credit order.
type IdentifierSet struct {
	RecordingMBID    string   `json:"recording_mbid,omitempty"`
	ArtistMBIDs      []string `json:"artist_mbids,omitempty"`
	ReleaseMBID      string   `json:"release_mbid,omitempty"`
	ReleaseGroupMBID string   `json:"release_group_mbid,omitempty"`
	Source           Source   `json:"source"`
}

// Resolved reports whether the set carries a canonical recording identifier.
func (s IdentifierSet) Resolved() bool {
	return s.Source != SourceNone && s.Source != "" && s.RecordingMBID != ""
}
