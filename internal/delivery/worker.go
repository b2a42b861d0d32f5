package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"scrobbled/internal/listenbrainz"
	"scrobbled/internal/logging"
	"scrobbled/internal/notifications"
	"scrobbled/internal/queue"
)

// defaultBackoff is the escalating retry schedule indexed by prior
// attempt count. Retry counts beyond the schedule saturate at the last
// value.
var defaultBackoff = []time.Duration{
	5 * time.Second,
	15 * time.Second,
	60 * time.Second,
	300 * time.Second,
	900 * time.Second,
}

const (
	defaultInterSubmitPause = 500 * time.Millisecond
	defaultRecheckCap       = 30 * time.Second
)

// Worker drains the listen queue strictly in order, one submission in
// flight at a time. Only the head item is ever attempted; failed heads
// block the queue until their backoff elapses or their retry budget
// runs out.
type Worker struct {
	store      *queue.Store
	submitter  listenbrainz.Submitter
	notifier   notifications.Service
	logger     *slog.Logger
	maxRetries int

	backoff          []time.Duration
	interSubmitPause time.Duration
	recheckCap       time.Duration
	now              func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
	paused bool
}

// Option customizes worker timing, used by tests.
type Option func(*Worker)

// WithBackoffSchedule overrides the retry delay schedule.
func WithBackoffSchedule(schedule []time.Duration) Option {
	return func(w *Worker) {
		if len(schedule) > 0 {
			w.backoff = schedule
		}
	}
}

// WithInterSubmissionPause overrides the pause between successive deliveries.
func WithInterSubmissionPause(pause time.Duration) Option {
	return func(w *Worker) {
		w.interSubmitPause = pause
	}
}

// WithRecheckCap overrides the maximum deferral before the head is re-evaluated.
func WithRecheckCap(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.recheckCap = interval
		}
	}
}

// New creates a delivery worker over the given queue and submitter.
func New(store *queue.Store, submitter listenbrainz.Submitter, notifier notifications.Service, maxRetries int, logger *slog.Logger, opts ...Option) *Worker {
	if notifier == nil {
		notifier = notifications.NewNop()
	}
	w := &Worker{
		store:            store,
		submitter:        submitter,
		notifier:         notifier,
		logger:           logging.NewComponentLogger(logger, "delivery"),
		maxRetries:       maxRetries,
		backoff:          defaultBackoff,
		interSubmitPause: defaultInterSubmitPause,
		recheckCap:       defaultRecheckCap,
		now:              time.Now,
		wake:             make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the processing loop. Calling Start on a running
// worker is a no-op.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	w.cancel = cancel
	w.done = done
	go w.run(runCtx, done)
}

// Stop halts the processing loop and clears any pending timer. It
// blocks until the loop has exited.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Resume nudges an idle or paused loop, used after enqueueing and when
// credentials or connectivity come back.
func (w *Worker) Resume() {
	w.mu.Lock()
	w.paused = false
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Enqueue appends a listen to the durable queue and wakes the loop.
func (w *Worker) Enqueue(ctx context.Context, listen listenbrainz.Listen) error {
	item, evicted, err := w.store.Add(ctx, listen)
	if err != nil {
		return err
	}
	if evicted > 0 {
		w.logger.Warn("queue at capacity, dropped oldest listens",
			logging.Int("evicted", evicted))
	}
	w.logger.Info("listen queued",
		logging.String(logging.FieldListenID, item.ID),
		logging.String("artist", item.ArtistName),
		logging.String("track", item.TrackName))
	w.Resume()
	return nil
}

func (w *Worker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		if ctx.Err() != nil {
			return
		}
		wait, idle := w.step(ctx)
		if idle {
			select {
			case <-ctx.Done():
				return
			case <-w.wake:
			}
			continue
		}
		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-w.wake:
				timer.Stop()
			case <-timer.C:
			}
		}
	}
}

// step evaluates the head item once. It returns how long to wait before
// the next evaluation, or idle=true when there is nothing to do until
// an external wake.
func (w *Worker) step(ctx context.Context) (time.Duration, bool) {
	if !w.submitter.Configured() {
		w.notePaused(ctx)
		return 0, true
	}

	head, err := w.store.Head(ctx)
	if err != nil {
		w.logger.Error("failed to read queue head", logging.Error(err))
		return w.recheckCap, false
	}
	if head == nil {
		return 0, true
	}

	if head.Attempted() {
		owed := w.backoffFor(head.RetryCount)
		elapsed := w.now().Sub(*head.LastAttemptAt)
		if elapsed < owed {
			return w.capWait(owed - elapsed), false
		}
	}

	attempt, err := w.store.RecordAttempt(ctx, head.ID)
	if err != nil || attempt == nil {
		w.logger.Error("failed to stamp delivery attempt",
			logging.String(logging.FieldListenID, head.ID),
			logging.Error(err))
		return w.recheckCap, false
	}

	submitErr := w.submitter.SubmitListen(ctx, attempt.Listen)
	if submitErr == nil {
		if _, err := w.store.Remove(ctx, attempt.ID); err != nil {
			w.logger.Error("failed to remove delivered listen",
				logging.String(logging.FieldListenID, attempt.ID),
				logging.Error(err))
		}
		w.logger.Info("listen delivered",
			logging.String(logging.FieldListenID, attempt.ID),
			logging.String("artist", attempt.ArtistName),
			logging.String("track", attempt.TrackName),
			logging.Int("attempts", attempt.RetryCount))
		if err := w.notifier.NotifyScrobbled(ctx, attempt.ArtistName, attempt.TrackName); err != nil {
			w.logger.Debug("scrobble notification failed", logging.Error(err))
		}
		return w.interSubmitPause, false
	}

	if attempt.RetryCount >= w.maxRetries {
		if _, err := w.store.Remove(ctx, attempt.ID); err != nil {
			w.logger.Error("failed to remove abandoned listen",
				logging.String(logging.FieldListenID, attempt.ID),
				logging.Error(err))
		}
		w.logger.Warn("listen abandoned after exhausting retries",
			logging.String(logging.FieldListenID, attempt.ID),
			logging.String("artist", attempt.ArtistName),
			logging.String("track", attempt.TrackName),
			logging.Int("attempts", attempt.RetryCount),
			logging.Error(submitErr),
			logging.String(logging.FieldImpact, "this listen is dropped"))
		if err := w.notifier.NotifyAbandoned(ctx, attempt.ArtistName, attempt.TrackName, attempt.RetryCount); err != nil {
			w.logger.Debug("abandon notification failed", logging.Error(err))
		}
		return 0, false
	}

	delay := w.backoffFor(attempt.RetryCount)
	w.logger.Warn("listen delivery failed, will retry",
		logging.String(logging.FieldListenID, attempt.ID),
		logging.String("track", attempt.TrackName),
		logging.Int("attempts", attempt.RetryCount),
		logging.Duration("retry_in", delay),
		logging.Error(submitErr))
	return w.capWait(delay), false
}

func (w *Worker) notePaused(ctx context.Context) {
	w.mu.Lock()
	alreadyPaused := w.paused
	w.paused = true
	w.mu.Unlock()
	if alreadyPaused {
		return
	}

	queued, err := w.store.Count(ctx)
	if err != nil {
		queued = 0
	}
	w.logger.Info("delivery paused: no submission token configured",
		logging.Int("queued", queued))
	if queued > 0 {
		if err := w.notifier.NotifyQueuePaused(ctx, queued); err != nil {
			w.logger.Debug("pause notification failed", logging.Error(err))
		}
	}
}

// backoffFor returns the delay owed after the given number of attempts.
func (w *Worker) backoffFor(retries int) time.Duration {
	if retries <= 0 {
		return 0
	}
	idx := retries - 1
	if idx >= len(w.backoff) {
		idx = len(w.backoff) - 1
	}
	return w.backoff[idx]
}

// capWait bounds a deferral so the head is re-evaluated at least every
// recheck interval, tolerating clock and sleep drift.
func (w *Worker) capWait(wait time.Duration) time.Duration {
	if wait > w.recheckCap {
		return w.recheckCap
	}
	return wait
}
