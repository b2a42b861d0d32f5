package listenbrainz

// AdditionalInfo enriches a listen with identifiers and client
// provenance. Every field is optional on the wire.
type AdditionalInfo struct {
	RecordingMBID           string   `json:"recording_mbid,omitempty"`
	ArtistMBIDs             []string `json:"artist_mbids,omitempty"`
	ReleaseMBID             string   `json:"release_mbid,omitempty"`
	ReleaseGroupMBID        string   `json:"release_group_mbid,omitempty"`
	TrackNumber             int      `json:"tracknumber,omitempty"`
	ISRC                    string   `json:"isrc,omitempty"`
	DurationMS              int64    `json:"duration_ms,omitempty"`
	MediaPlayer             string   `json:"media_player,omitempty"`
	SubmissionClient        string   `json:"submission_client,omitempty"`
	SubmissionClientVersion string   `json:"submission_client_version,omitempty"`
}

// TrackMetadata names the track a listen refers to.
type TrackMetadata struct {
	ArtistName     string          `json:"artist_name"`
	TrackName      string          `json:"track_name"`
	ReleaseName    string          `json:"release_name,omitempty"`
	AdditionalInfo *AdditionalInfo `json:"additional_info,omitempty"`
}

// Listen is a single played-track event.
type Listen struct {
	ListenedAt    int64         `json:"listened_at"`
	TrackMetadata TrackMetadata `json:"track_metadata"`
}

type submitRequest struct {
	ListenType string   `json:"listen_type"`
	Payload    []Listen `json:"payload"`
}

type validateTokenResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Valid    bool   `json:"valid"`
	UserName string `json:"user_name"`
}
