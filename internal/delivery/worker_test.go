package delivery_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"scrobbled/internal/delivery"
	"scrobbled/internal/listenbrainz"
	"scrobbled/internal/logging"
	"scrobbled/internal/queue"
)

type scriptedSubmitter struct {
	mu         sync.Mutex
	configured bool
	failures   int
	calls      []string
}

func (s *scriptedSubmitter) Configured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.configured
}

func (s *scriptedSubmitter) SubmitListen(ctx context.Context, listen listenbrainz.Listen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, listen.TrackMetadata.TrackName)
	if s.failures > 0 {
		s.failures--
		return errors.New("submission refused")
	}
	return nil
}

func (s *scriptedSubmitter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedSubmitter) callOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *scriptedSubmitter) setConfigured(configured bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configured = configured
}

func openTestStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "queue.db"), 100)
	if err != nil {
		t.Fatalf("OpenPath returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestWorker(t *testing.T, store *queue.Store, submitter listenbrainz.Submitter, maxRetries int) *delivery.Worker {
	t.Helper()
	worker := delivery.New(store, submitter, nil, maxRetries, logging.NewNop(),
		delivery.WithBackoffSchedule([]time.Duration{time.Millisecond, 2 * time.Millisecond}),
		delivery.WithInterSubmissionPause(time.Millisecond),
		delivery.WithRecheckCap(5*time.Millisecond),
	)
	t.Cleanup(worker.Stop)
	return worker
}

func listenFor(track string) listenbrainz.Listen {
	return listenbrainz.Listen{
		ListenedAt: 1756500000,
		TrackMetadata: listenbrainz.TrackMetadata{
			ArtistName: "Artist",
			TrackName:  track,
		},
	}
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDeliversQueuedListensInOrder(t *testing.T) {
	store := openTestStore(t)
	submitter := &scriptedSubmitter{configured: true}
	worker := newTestWorker(t, store, submitter, 5)
	ctx := context.Background()

	worker.Start(ctx)
	for _, track := range []string{"one", "two", "three"} {
		if err := worker.Enqueue(ctx, listenFor(track)); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	waitFor(t, "queue drain", func() bool {
		count, err := store.Count(ctx)
		return err == nil && count == 0
	})

	order := submitter.callOrder()
	if len(order) != 3 || order[0] != "one" || order[1] != "two" || order[2] != "three" {
		t.Fatalf("expected in-order delivery, got %v", order)
	}
}

func TestRetriesFailedHeadThenDelivers(t *testing.T) {
	store := openTestStore(t)
	submitter := &scriptedSubmitter{configured: true, failures: 2}
	worker := newTestWorker(t, store, submitter, 5)
	ctx := context.Background()

	worker.Start(ctx)
	if err := worker.Enqueue(ctx, listenFor("flaky")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	waitFor(t, "queue drain", func() bool {
		count, err := store.Count(ctx)
		return err == nil && count == 0
	})

	if got := submitter.callCount(); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestAbandonsAfterRetryBudget(t *testing.T) {
	store := openTestStore(t)
	// Exactly enough failures to exhaust the doomed head's budget.
	submitter := &scriptedSubmitter{configured: true, failures: 3}
	worker := newTestWorker(t, store, submitter, 3)
	ctx := context.Background()

	if err := worker.Enqueue(ctx, listenFor("doomed")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if err := worker.Enqueue(ctx, listenFor("survivor")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	worker.Start(ctx)

	waitFor(t, "queue drain", func() bool {
		count, err := store.Count(ctx)
		return err == nil && count == 0
	})

	order := submitter.callOrder()
	if len(order) != 4 {
		t.Fatalf("expected 3 doomed attempts plus 1 delivery, got %v", order)
	}
	for i := 0; i < 3; i++ {
		if order[i] != "doomed" {
			t.Fatalf("expected head to block until abandoned, got %v", order)
		}
	}
	if order[3] != "survivor" {
		t.Fatalf("expected survivor delivered after abandonment, got %v", order)
	}
}

func TestPausesWithoutTokenAndResumes(t *testing.T) {
	store := openTestStore(t)
	submitter := &scriptedSubmitter{configured: false}
	worker := newTestWorker(t, store, submitter, 5)
	ctx := context.Background()

	worker.Start(ctx)
	if err := worker.Enqueue(ctx, listenFor("waiting")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if got := submitter.callCount(); got != 0 {
		t.Fatalf("expected no attempts while paused, got %d", got)
	}
	count, err := store.Count(ctx)
	if err != nil || count != 1 {
		t.Fatalf("expected item retained while paused, got count=%d err=%v", count, err)
	}

	submitter.setConfigured(true)
	worker.Resume()

	waitFor(t, "queue drain after resume", func() bool {
		count, err := store.Count(ctx)
		return err == nil && count == 0
	})
}

type overlapDetectingSubmitter struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	delivered   int
}

func (s *overlapDetectingSubmitter) Configured() bool { return true }

func (s *overlapDetectingSubmitter) SubmitListen(ctx context.Context, listen listenbrainz.Listen) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	// Hold the submission open so any overlapping attempt would be seen.
	time.Sleep(2 * time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.delivered++
	s.mu.Unlock()
	return nil
}

func (s *overlapDetectingSubmitter) stats() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight, s.delivered
}

func TestSingleFlightUnderConcurrentEnqueues(t *testing.T) {
	store := openTestStore(t)
	submitter := &overlapDetectingSubmitter{}
	worker := newTestWorker(t, store, submitter, 5)
	ctx := context.Background()

	worker.Start(ctx)

	const producers = 8
	const perProducer = 3
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				if err := worker.Enqueue(ctx, listenFor("burst")); err != nil {
					t.Errorf("Enqueue returned error: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	waitFor(t, "queue drain", func() bool {
		count, err := store.Count(ctx)
		return err == nil && count == 0
	})

	maxInFlight, delivered := submitter.stats()
	if maxInFlight != 1 {
		t.Fatalf("expected at most one submission in flight, observed %d", maxInFlight)
	}
	if delivered != producers*perProducer {
		t.Fatalf("expected %d deliveries, got %d", producers*perProducer, delivered)
	}
}

func TestStopHaltsLoop(t *testing.T) {
	store := openTestStore(t)
	submitter := &scriptedSubmitter{configured: true, failures: 100}
	worker := newTestWorker(t, store, submitter, 100)
	ctx := context.Background()

	worker.Start(ctx)
	if err := worker.Enqueue(ctx, listenFor("stuck")); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	waitFor(t, "first attempt", func() bool { return submitter.callCount() > 0 })

	worker.Stop()
	attempts := submitter.callCount()
	time.Sleep(30 * time.Millisecond)
	if got := submitter.callCount(); got != attempts {
		t.Fatalf("expected no attempts after Stop, got %d then %d", attempts, got)
	}
}
