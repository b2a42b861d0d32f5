package musicbrainz

// ArtistCredit is one credited artist on a recording.
type ArtistCredit struct {
	Name   string `json:"name"`
	Artist Artist `json:"artist"`
}

// Artist identifies a single MusicBrainz artist.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReleaseGroup identifies the release group a release belongs to.
type ReleaseGroup struct {
	ID string `json:"id"`
}

// Release is one release carrying a recording.
type Release struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	ReleaseGroup ReleaseGroup `json:"release-group"`
}

// Recording is a single candidate returned by either lookup kind.
// Score is only populated by the search endpoint.
type Recording struct {
	ID           string         `json:"id"`
	Score        int            `json:"score"`
	Title        string         `json:"title"`
	ArtistCredit []ArtistCredit `json:"artist-credit"`
	Releases     []Release      `json:"releases"`
}

type isrcResponse struct {
	ISRC       string      `json:"isrc"`
	Recordings []Recording `json:"recordings"`
}

type searchResponse struct {
	Count      int         `json:"count"`
	Recordings []Recording `json:"recordings"`
}
