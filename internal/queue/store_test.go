package queue_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"scrobbled/internal/listenbrainz"
	"scrobbled/internal/queue"
)

func openTestStore(t *testing.T, maxItems int) *queue.Store {
	t.Helper()
	store, err := queue.OpenPath(filepath.Join(t.TempDir(), "queue.db"), maxItems)
	if err != nil {
		t.Fatalf("OpenPath returned error: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
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

func TestAddPreservesEnqueueOrder(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, _, err := store.Add(ctx, listenFor(fmt.Sprintf("track-%d", i))); err != nil {
			t.Fatalf("Add returned error: %v", err)
		}
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		want := fmt.Sprintf("track-%d", i)
		if item.TrackName != want {
			t.Fatalf("expected item %d to be %s, got %s", i, want, item.TrackName)
		}
	}
}

func TestHeadIsOldestItem(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	if head, err := store.Head(ctx); err != nil || head != nil {
		t.Fatalf("expected empty queue head, got %v err=%v", head, err)
	}

	store.Add(ctx, listenFor("first"))
	store.Add(ctx, listenFor("second"))

	head, err := store.Head(ctx)
	if err != nil {
		t.Fatalf("Head returned error: %v", err)
	}
	if head == nil || head.TrackName != "first" {
		t.Fatalf("expected first item at head, got %+v", head)
	}
}

func TestAddEvictsOldestAtCapacity(t *testing.T) {
	store := openTestStore(t, 2)
	ctx := context.Background()

	store.Add(ctx, listenFor("one"))
	store.Add(ctx, listenFor("two"))
	_, evicted, err := store.Add(ctx, listenFor("three"))
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items after eviction, got %d", len(items))
	}
	if items[0].TrackName != "two" || items[1].TrackName != "three" {
		t.Fatalf("expected oldest evicted, got %s, %s", items[0].TrackName, items[1].TrackName)
	}
}

func TestRecordAttemptIncrementsRetryCount(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	item, _, err := store.Add(ctx, listenFor("track"))
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if item.Attempted() || item.RetryCount != 0 {
		t.Fatalf("expected fresh item, got %+v", item)
	}

	updated, err := store.RecordAttempt(ctx, item.ID)
	if err != nil {
		t.Fatalf("RecordAttempt returned error: %v", err)
	}
	if updated.RetryCount != 1 || !updated.Attempted() {
		t.Fatalf("expected attempted item with retry count 1, got %+v", updated)
	}
}

func TestRemoveReportsMissingItems(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	item, _, err := store.Add(ctx, listenFor("track"))
	if err != nil {
		t.Fatalf("Add returned error: %v", err)
	}

	removed, err := store.Remove(ctx, item.ID)
	if err != nil || !removed {
		t.Fatalf("expected removal, got removed=%v err=%v", removed, err)
	}
	removed, err = store.Remove(ctx, item.ID)
	if err != nil || removed {
		t.Fatalf("expected missing item, got removed=%v err=%v", removed, err)
	}
}

func TestQueueSurvivesReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "queue.db")
	ctx := context.Background()

	first, err := queue.OpenPath(dbPath, 100)
	if err != nil {
		t.Fatalf("OpenPath returned error: %v", err)
	}
	listen := listenFor("persisted")
	listen.TrackMetadata.AdditionalInfo = &listenbrainz.AdditionalInfo{RecordingMBID: "rec-1"}
	if _, _, err := first.Add(ctx, listen); err != nil {
		t.Fatalf("Add returned error: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	second, err := queue.OpenPath(dbPath, 100)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer second.Close()

	head, err := second.Head(ctx)
	if err != nil {
		t.Fatalf("Head returned error: %v", err)
	}
	if head == nil || head.TrackName != "persisted" {
		t.Fatalf("expected persisted item, got %+v", head)
	}
	if head.Listen.TrackMetadata.AdditionalInfo == nil || head.Listen.TrackMetadata.AdditionalInfo.RecordingMBID != "rec-1" {
		t.Fatalf("expected listen payload round-trip, got %+v", head.Listen)
	}
}

func TestClearEmptiesQueue(t *testing.T) {
	store := openTestStore(t, 100)
	ctx := context.Background()

	store.Add(ctx, listenFor("one"))
	store.Add(ctx, listenFor("two"))

	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if cleared != 2 {
		t.Fatalf("expected 2 cleared, got %d", cleared)
	}
	count, err := store.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected empty queue, got count=%d err=%v", count, err)
	}
}
