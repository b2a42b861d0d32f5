package testsupport

import (
	"testing"

	"scrobbled/internal/config"
	"scrobbled/internal/queue"
)

// MustOpenStore opens a queue store for the supplied config and fails the
// test on error. The store is closed automatically on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
