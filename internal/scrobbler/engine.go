package scrobbler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scrobbled/internal/config"
	"scrobbled/internal/listenbrainz"
	"scrobbled/internal/logging"
	"scrobbled/internal/media"
	"scrobbled/internal/metadata"
)

// Deliverer hands a finalized listen to the durable delivery queue.
type Deliverer interface {
	Enqueue(ctx context.Context, listen listenbrainz.Listen) error
}

// PositionSource reads the host player's current playback position.
type PositionSource interface {
	Position(ctx context.Context) (time.Duration, error)
}

// session tracks one playback of one track. Submitted is terminal:
// further samples for the same track are no-ops.
type session struct {
	generation   uint64
	track        media.Track
	start        time.Time
	playing      bool
	submitted    bool
	seekDetected bool

	lastPosition    time.Duration
	hasLastPosition bool

	preloaded *media.IdentifierSet
}

// Engine decides when the current track has been played long enough to
// scrobble. Timing is wall-clock from session start, deliberately
// insensitive to pause duration; position samples serve only to detect
// seeking.
type Engine struct {
	cfg       config.Scrobble
	metadata  *metadata.Service
	deliverer Deliverer
	position  PositionSource
	logger    *slog.Logger
	now       func() time.Time

	clientName      string
	clientVersion   string
	preloadDisabled bool

	mu      sync.Mutex
	current *session
	nextGen uint64
}

// Option customizes engine construction.
type Option func(*Engine)

// WithNow overrides the clock, used by tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithClientIdentity sets the submission client fields attached to
// every listen.
func WithClientIdentity(name, version string) Option {
	return func(e *Engine) {
		e.clientName = name
		e.clientVersion = version
	}
}

// WithPreloadDisabled turns off the asynchronous metadata preload;
// identifiers are then resolved synchronously at submission time.
func WithPreloadDisabled() Option {
	return func(e *Engine) {
		e.preloadDisabled = true
	}
}

// New creates a decision engine.
func New(cfg config.Scrobble, meta *metadata.Service, deliverer Deliverer, position PositionSource, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		cfg:           cfg,
		metadata:      meta,
		deliverer:     deliverer,
		position:      position,
		logger:        logging.NewComponentLogger(logger, "scrobbler"),
		now:           time.Now,
		clientName:    "scrobbled",
		clientVersion: "0.1.0",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// HandleTrackChange starts a fresh session for the new track and kicks
// off a best-effort asynchronous metadata preload.
func (e *Engine) HandleTrackChange(ctx context.Context, track media.Track, playing bool) {
	e.mu.Lock()
	if !track.Valid() {
		e.current = nil
		e.mu.Unlock()
		e.logger.Debug("ignoring track without artist or title")
		return
	}

	e.nextGen++
	sess := &session{
		generation: e.nextGen,
		track:      track,
		start:      e.now(),
		playing:    playing,
	}
	e.current = sess
	generation := sess.generation
	e.mu.Unlock()

	e.logger.Info("track changed",
		logging.String("artist", track.Artist),
		logging.String("track", track.Title),
		logging.Duration("duration", track.Duration),
		logging.Bool("playing", playing))

	if !e.preloadDisabled && e.metadata != nil && e.metadata.Enabled() {
		go e.preload(ctx, generation, track)
	}
}

// preload resolves identifiers ahead of eligibility so submission never
// waits on the network. A settle delay lets a player that publishes
// attributes piecemeal (ISRC arriving after the title signal) replace
// the session first, so the lookup runs against complete metadata. One
// delayed re-attempt runs if the first pass produced nothing.
func (e *Engine) preload(ctx context.Context, generation uint64, track media.Track) {
	if settle := time.Duration(e.cfg.PreloadSettleMilli) * time.Millisecond; settle > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(settle):
		}
		if !e.sessionCurrent(generation) {
			return
		}
	}

	resolved := e.metadata.Identify(ctx, track)
	if e.storePreload(generation, resolved) {
		return
	}

	retryDelay := time.Duration(e.cfg.PreloadRetryDelayMilli) * time.Millisecond
	if retryDelay <= 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(retryDelay):
	}
	resolved = e.metadata.Identify(ctx, track)
	e.storePreload(generation, resolved)
}

func (e *Engine) sessionCurrent(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current != nil && e.current.generation == generation
}

// storePreload attaches a preload result to its session if that session
// is still current. Reports whether the result was resolved.
func (e *Engine) storePreload(generation uint64, resolved media.IdentifierSet) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil || e.current.generation != generation {
		return true // session gone, do not retry
	}
	if resolved.Resolved() {
		e.current.preloaded = &resolved
		return true
	}
	return false
}

// HandlePlayback updates the playing flag without resetting timers.
func (e *Engine) HandlePlayback(ctx context.Context, playing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return
	}
	e.current.playing = playing
}

// Tick takes one periodic sample: updates seek detection from the
// observed position delta and submits when the session crosses its
// eligibility threshold.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	sess := e.current
	if sess == nil || sess.submitted || !sess.playing {
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	if e.position != nil {
		if pos, err := e.position.Position(ctx); err == nil {
			e.observePosition(sess, pos)
		} else {
			e.logger.Debug("position read failed", logging.Error(err))
		}
	}

	e.mu.Lock()
	eligible := e.eligibleLocked(sess)
	if eligible {
		sess.submitted = true
	}
	e.mu.Unlock()

	if eligible {
		e.submit(ctx, sess, "threshold")
	}
}

func (e *Engine) observePosition(sess *session, pos time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != sess || sess.submitted {
		return
	}
	if sess.hasLastPosition {
		expected := time.Duration(e.cfg.SampleIntervalSeconds) * time.Second
		tolerance := time.Duration(e.cfg.SeekToleranceSeconds) * time.Second
		delta := pos - sess.lastPosition
		deviation := delta - expected
		if deviation < 0 {
			deviation = -deviation
		}
		if deviation > tolerance && !sess.seekDetected {
			sess.seekDetected = true
			e.logger.Debug("seek detected, falling back to absolute floor",
				logging.Duration("position_delta", delta))
		}
	}
	sess.lastPosition = pos
	sess.hasLastPosition = true
}

// eligibleLocked applies the timing policy. With a known duration and
// no seek, the threshold is the smaller of the percent mark and the
// absolute floor; seeking or an unknown duration falls back to the
// floor alone.
func (e *Engine) eligibleLocked(sess *session) bool {
	elapsed := e.now().Sub(sess.start)
	minSeconds := time.Duration(e.cfg.MinSeconds) * time.Second

	if sess.seekDetected || sess.track.Duration <= 0 {
		return elapsed >= minSeconds
	}

	percentThreshold := sess.track.Duration * time.Duration(e.cfg.Percent) / 100
	threshold := percentThreshold
	if minSeconds < threshold {
		threshold = minSeconds
	}
	return elapsed >= threshold
}

// ScrobbleNow forces submission of the current session, bypassing the
// timing check.
func (e *Engine) ScrobbleNow(ctx context.Context) bool {
	e.mu.Lock()
	sess := e.current
	if sess == nil || sess.submitted {
		e.mu.Unlock()
		return false
	}
	sess.submitted = true
	e.mu.Unlock()

	e.submit(ctx, sess, "manual")
	return true
}

func (e *Engine) submit(ctx context.Context, sess *session, trigger string) {
	identifiers := e.finalizeIdentifiers(ctx, sess)
	listen := e.buildListen(sess, identifiers)

	if err := e.deliverer.Enqueue(ctx, listen); err != nil {
		e.logger.Error("failed to queue listen",
			logging.String("track", sess.track.Title),
			logging.Error(err))
		return
	}
	e.logger.Info("scrobble queued",
		logging.String("artist", sess.track.Artist),
		logging.String("track", sess.track.Title),
		logging.String("trigger", trigger),
		logging.String("source", string(identifiers.Source)))
}

// finalizeIdentifiers prefers the session preload, then the cache, then
// a synchronous resolver call.
func (e *Engine) finalizeIdentifiers(ctx context.Context, sess *session) media.IdentifierSet {
	e.mu.Lock()
	preloaded := sess.preloaded
	e.mu.Unlock()
	if preloaded != nil {
		return *preloaded
	}
	if e.metadata == nil {
		return media.IdentifierSet{Source: media.SourceNone}
	}
	return e.metadata.Identify(ctx, sess.track)
}

func (e *Engine) buildListen(sess *session, identifiers media.IdentifierSet) listenbrainz.Listen {
	track := sess.track
	info := &listenbrainz.AdditionalInfo{
		RecordingMBID:           identifiers.RecordingMBID,
		ArtistMBIDs:             identifiers.ArtistMBIDs,
		ReleaseMBID:             identifiers.ReleaseMBID,
		ReleaseGroupMBID:        identifiers.ReleaseGroupMBID,
		TrackNumber:             track.TrackNumber,
		ISRC:                    track.ISRC,
		MediaPlayer:             "mpris",
		SubmissionClient:        e.clientName,
		SubmissionClientVersion: e.clientVersion,
	}
	if track.Duration > 0 {
		info.DurationMS = track.Duration.Milliseconds()
	}

	return listenbrainz.Listen{
		ListenedAt: sess.start.Unix(),
		TrackMetadata: listenbrainz.TrackMetadata{
			ArtistName:     track.Artist,
			TrackName:      track.Title,
			ReleaseName:    track.Album,
			AdditionalInfo: info,
		},
	}
}

// Current returns a snapshot of the active session for status surfaces.
func (e *Engine) Current() (media.Track, bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return media.Track{}, false, false
	}
	return e.current.track, e.current.playing, e.current.submitted
}
