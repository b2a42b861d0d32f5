package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"scrobbled/internal/config"
	"scrobbled/internal/logging"
	"scrobbled/internal/media"
)

// Resolver maps track metadata to MusicBrainz identifier sets.
type Resolver interface {
	Resolve(ctx context.Context, track media.Track) media.IdentifierSet
}

// Client queries the MusicBrainz web service. All outbound requests,
// ISRC lookups and fuzzy searches alike, pass through one shared rate
// limiter so concurrent callers queue instead of racing the remote
// request budget.
type Client struct {
	baseURL    string
	userAgent  string
	minScore   int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

var _ Resolver = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a MusicBrainz client from configuration.
func New(cfg config.MusicBrainz, logger *slog.Logger, opts ...Option) (*Client, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("musicbrainz base url required")
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		return nil, errors.New("musicbrainz user agent required")
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	// The client appends /ws/2 itself; tolerate a base URL that
	// already carries it so either shape resolves the same endpoints.
	baseURL = strings.TrimRight(baseURL, "/")
	baseURL = strings.TrimSuffix(baseURL, "/ws/2")

	client := &Client{
		baseURL:    baseURL,
		userAgent:  userAgent,
		minScore:   cfg.MinScore,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Every(time.Duration(cfg.RateWindowSeconds)*time.Second), 1),
		logger:     logging.NewComponentLogger(logger, "musicbrainz"),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Resolve maps a track to an identifier set. An ISRC, when present,
// takes the exact-lookup path; anything else falls through to a fuzzy
// search whose top candidate must clear the acceptance score. Lookup
// failures of any kind degrade to an unresolved set rather than an
// error, so callers never stall on remote trouble.
func (c *Client) Resolve(ctx context.Context, track media.Track) media.IdentifierSet {
	if track.ISRC != "" {
		recording, err := c.LookupISRC(ctx, track.ISRC)
		if err != nil {
			c.logger.Warn("isrc lookup failed",
				logging.String("isrc", track.ISRC),
				logging.Error(err))
		} else if recording != nil {
			return identifiersFrom(*recording, media.SourceExact)
		}
	}

	recording, err := c.SearchRecording(ctx, track.Artist, track.Title, track.Album)
	if err != nil {
		c.logger.Warn("recording search failed",
			logging.String("artist", track.Artist),
			logging.String("title", track.Title),
			logging.Error(err))
		return media.IdentifierSet{Source: media.SourceNone}
	}
	if recording == nil {
		return media.IdentifierSet{Source: media.SourceNone}
	}
	return identifiersFrom(*recording, media.SourceFuzzy)
}

// LookupISRC fetches recordings registered under an ISRC. Returns the
// first candidate, or nil when the code is unknown.
func (c *Client) LookupISRC(ctx context.Context, isrc string) (*Recording, error) {
	isrc = strings.TrimSpace(isrc)
	if isrc == "" {
		return nil, errors.New("isrc must not be empty")
	}

	endpoint, err := url.Parse(c.baseURL + "/ws/2/isrc/" + url.PathEscape(isrc))
	if err != nil {
		return nil, fmt.Errorf("parse musicbrainz url: %w", err)
	}
	params := url.Values{}
	params.Set("fmt", "json")
	params.Set("inc", "artist-credits+releases+release-groups")
	endpoint.RawQuery = params.Encode()

	var payload isrcResponse
	if err := c.getJSON(ctx, endpoint.String(), &payload); err != nil {
		var httpErr *statusError
		if errors.As(err, &httpErr) && httpErr.code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	if len(payload.Recordings) == 0 {
		return nil, nil
	}
	return &payload.Recordings[0], nil
}

// SearchRecording runs a fuzzy conjunctive search over artist, title
// and optional album. The top-scored candidate is returned only when
// it clears the configured acceptance score; otherwise nil.
func (c *Client) SearchRecording(ctx context.Context, artist, title, album string) (*Recording, error) {
	artist = strings.TrimSpace(artist)
	title = strings.TrimSpace(title)
	if artist == "" || title == "" {
		return nil, errors.New("artist and title must not be empty")
	}

	endpoint, err := url.Parse(c.baseURL + "/ws/2/recording")
	if err != nil {
		return nil, fmt.Errorf("parse musicbrainz url: %w", err)
	}
	params := url.Values{}
	params.Set("query", searchQuery(artist, title, album))
	params.Set("fmt", "json")
	params.Set("limit", "1")
	endpoint.RawQuery = params.Encode()

	var payload searchResponse
	if err := c.getJSON(ctx, endpoint.String(), &payload); err != nil {
		return nil, err
	}
	if len(payload.Recordings) == 0 {
		return nil, nil
	}

	top := payload.Recordings[0]
	if top.Score < c.minScore {
		c.logger.Debug("search candidate below acceptance score",
			logging.String("title", title),
			logging.Int("score", top.Score),
			logging.Int("min_score", c.minScore))
		return nil, nil
	}
	return &top, nil
}

func searchQuery(artist, title, album string) string {
	var builder strings.Builder
	builder.WriteString(`recording:"` + escapeQuery(title) + `"`)
	builder.WriteString(` AND artist:"` + escapeQuery(artist) + `"`)
	if album = strings.TrimSpace(album); album != "" {
		builder.WriteString(` AND release:"` + escapeQuery(album) + `"`)
	}
	return builder.String()
}

// escapeQuery neutralizes Lucene syntax characters inside quoted terms.
func escapeQuery(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	return strings.ReplaceAll(term, `"`, `\"`)
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("musicbrainz returned %d", e.code)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	requestStart := time.Now()
	resp, err := c.httpClient.Do(req)
	latency := time.Since(requestStart)
	if err != nil {
		return fmt.Errorf("execute request (latency=%v): %w", latency, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode musicbrainz response: %w", err)
	}
	return nil
}

// identifiersFrom maps the first-candidate recording shape into an
// identifier set, preserving artist credit order.
func identifiersFrom(recording Recording, source media.Source) media.IdentifierSet {
	set := media.IdentifierSet{
		RecordingMBID: recording.ID,
		Source:        source,
	}
	for _, credit := range recording.ArtistCredit {
		if credit.Artist.ID != "" {
			set.ArtistMBIDs = append(set.ArtistMBIDs, credit.Artist.ID)
		}
	}
	if len(recording.Releases) > 0 {
		set.ReleaseMBID = recording.Releases[0].ID
		set.ReleaseGroupMBID = recording.Releases[0].ReleaseGroup.ID
	}
	return set
}
