package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"

	"scrobbled/internal/config"
	"scrobbled/internal/delivery"
	"scrobbled/internal/listenbrainz"
	"scrobbled/internal/logging"
	"scrobbled/internal/mbcache"
	"scrobbled/internal/media"
	"scrobbled/internal/metadata"
	"scrobbled/internal/musicbrainz"
	"scrobbled/internal/notifications"
	"scrobbled/internal/player"
	"scrobbled/internal/queue"
	"scrobbled/internal/scrobbler"
)

// Daemon wires the player monitor, decision engine, and delivery loop
// together and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	cache    *mbcache.Cache
	engine   *scrobbler.Engine
	worker   *delivery.Worker
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	monitor *player.Monitor
}

// Status represents daemon runtime information.
type Status struct {
	Running       bool
	Track         media.Track
	Playing       bool
	Submitted     bool
	QueuedListens int
	CacheEntries  int
	TokenSet      bool
	QueueDBPath   string
	LockFilePath  string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open queue store: %w", err)
	}

	cache := mbcache.New(
		cfg.CachePath(),
		time.Duration(cfg.Cache.TTLDays)*24*time.Hour,
		cfg.Cache.MaxEntries,
		logger,
	)

	resolver, err := musicbrainz.New(cfg.MusicBrainz, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build musicbrainz client: %w", err)
	}
	meta := metadata.NewService(cache, resolver, cfg.MusicBrainz.Enrichment, logger)

	submitter, err := listenbrainz.New(cfg.ListenBrainz, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("build listenbrainz client: %w", err)
	}

	notifier := notifications.NewService(cfg)
	worker := delivery.New(store, submitter, notifier, cfg.Queue.MaxRetries, logger)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		cache:    cache,
		worker:   worker,
		notifier: notifier,
		lockPath: filepath.Join(cfg.Paths.StateDir, "scrobbled.lock"),
	}
	d.lock = flock.New(d.lockPath)

	engineOpts := []scrobbler.Option{
		scrobbler.WithClientIdentity("scrobbled", "0.1.0"),
	}
	if !cfg.MusicBrainz.Preload {
		engineOpts = append(engineOpts, scrobbler.WithPreloadDisabled())
	}
	d.engine = scrobbler.New(cfg.Scrobble, meta, worker, d, logger, engineOpts...)

	return d, nil
}

// Position reads the current playback position from the player, when
// one is connected.
func (d *Daemon) Position(ctx context.Context) (time.Duration, error) {
	d.mu.Lock()
	monitor := d.monitor
	d.mu.Unlock()
	if monitor == nil {
		return 0, errors.New("player not connected")
	}
	return monitor.Position(ctx)
}

// Start acquires the daemon lock and launches the player monitor,
// sampling ticker, manual-trigger handler, and delivery loop.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another scrobbled instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.worker.Start(runCtx)

	monitor, err := player.Connect(d.cfg.Player, d.engine, d.logger)
	if err != nil {
		d.logger.Error("player connection failed, continuing without playback events",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "is the player running on the session bus?"),
			logging.String(logging.FieldImpact, "queued listens still drain, but no new scrobbles are tracked"))
	} else {
		d.mu.Lock()
		d.monitor = monitor
		d.mu.Unlock()
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := monitor.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("player monitor stopped", logging.Error(err))
			}
		}()
	}

	d.wg.Add(1)
	go d.sampleLoop(runCtx)

	d.wg.Add(1)
	go d.manualTriggerLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("scrobbled daemon started",
		logging.String("lock", d.lockPath),
		logging.String("player", d.cfg.Player.BusName))
	return nil
}

// sampleLoop drives the decision engine on the configured cadence.
func (d *Daemon) sampleLoop(ctx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Scrobble.SampleIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.engine.Tick(ctx)
		}
	}
}

// manualTriggerLoop forces a scrobble of the current session on SIGUSR1.
func (d *Daemon) manualTriggerLoop(ctx context.Context) {
	defer d.wg.Done()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGUSR1)
	defer signal.Stop(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case <-signals:
			if d.engine.ScrobbleNow(ctx) {
				d.logger.Info("manual scrobble triggered")
			} else {
				d.logger.Info("manual scrobble ignored: no eligible session")
			}
		}
	}
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.worker.Stop()

	d.mu.Lock()
	monitor := d.monitor
	d.monitor = nil
	d.mu.Unlock()
	if monitor != nil {
		if err := monitor.Close(); err != nil {
			d.logger.Warn("failed to close player connection", logging.Error(err))
		}
	}

	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("scrobbled daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ScrobbleNow forces submission of the current session.
func (d *Daemon) ScrobbleNow(ctx context.Context) bool {
	return d.engine.ScrobbleNow(ctx)
}

// Resume nudges the delivery loop, used after connectivity returns.
func (d *Daemon) Resume() {
	d.worker.Resume()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	track, playing, submitted := d.engine.Current()
	queued, err := d.store.Count(ctx)
	if err != nil {
		queued = 0
	}
	return Status{
		Running:       d.running.Load(),
		Track:         track,
		Playing:       playing,
		Submitted:     submitted,
		QueuedListens: queued,
		CacheEntries:  d.cache.Len(),
		TokenSet:      d.cfg.ListenBrainz.Token != "",
		QueueDBPath:   d.cfg.QueueDBPath(),
		LockFilePath:  d.lockPath,
	}
}
