package mbcache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"scrobbled/internal/logging"
	"scrobbled/internal/media"
)

// Entry represents a cached mapping from track fingerprint to the
// identifier set a previous resolution produced. Unresolved results are
// cached too, so known-unresolvable tracks are not re-queried.
type Entry struct {
	Fingerprint media.Fingerprint   `json:"fingerprint"`
	Identifiers media.IdentifierSet `json:"identifiers"`
	CachedAt    time.Time           `json:"cached_at"`
}

// Stats summarizes cache contents for inspection surfaces.
type Stats struct {
	EntryCount int
	Oldest     time.Time
	Newest     time.Time
}

// Cache provides thread-safe access to the persisted metadata cache.
// Persistence is best-effort: every failure degrades to in-memory
// operation for that cycle and is never surfaced to callers.
type Cache struct {
	path       string
	ttl        time.Duration
	maxEntries int
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	entries map[media.Fingerprint]Entry
}

// Option customizes cache construction.
type Option func(*Cache)

// WithNow overrides the clock, used by tests to exercise expiry.
func WithNow(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a cache backed by the JSON table at path. If path is empty
// the cache is disabled: every Get misses and Put is a no-op.
func New(path string, ttl time.Duration, maxEntries int, logger *slog.Logger, opts ...Option) *Cache {
	logger = logging.NewComponentLogger(logger, "mbcache")

	c := &Cache{
		path:       path,
		ttl:        ttl,
		maxEntries: maxEntries,
		logger:     logger,
		now:        time.Now,
		entries:    make(map[media.Fingerprint]Entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	if path == "" {
		return c
	}

	if err := c.load(); err != nil {
		logger.Warn("failed to load metadata cache",
			logging.String(logging.FieldEventType, "mbcache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "previously resolved tracks will be looked up again"))
	}

	return c
}

// Get returns the cached identifier set for a fingerprint. Expired
// entries are purged on access and reported as absent.
func (c *Cache) Get(fingerprint media.Fingerprint) (media.IdentifierSet, bool) {
	if fingerprint == "" || c.path == "" {
		return media.IdentifierSet{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, found := c.entries[fingerprint]
	if !found {
		return media.IdentifierSet{}, false
	}
	if c.expired(entry) {
		delete(c.entries, fingerprint)
		c.persistLocked()
		return media.IdentifierSet{}, false
	}
	return entry.Identifiers, true
}

// Put upserts a resolution result and persists the full table. When the
// table would exceed its maximum entry count the oldest entries are
// evicted first.
func (c *Cache) Put(fingerprint media.Fingerprint, identifiers media.IdentifierSet) {
	if fingerprint == "" || c.path == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fingerprint] = Entry{
		Fingerprint: fingerprint,
		Identifiers: identifiers,
		CachedAt:    c.now(),
	}
	c.evictLocked()
	c.persistLocked()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns entry count and age bounds.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{EntryCount: len(c.entries)}
	for _, entry := range c.entries {
		if stats.Oldest.IsZero() || entry.CachedAt.Before(stats.Oldest) {
			stats.Oldest = entry.CachedAt
		}
		if entry.CachedAt.After(stats.Newest) {
			stats.Newest = entry.CachedAt
		}
	}
	return stats
}

// Clear removes all entries and persists the empty table.
func (c *Cache) Clear() {
	if c.path == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[media.Fingerprint]Entry)
	c.persistLocked()
	c.logger.Debug("cleared metadata cache")
}

func (c *Cache) expired(entry Entry) bool {
	return c.ttl > 0 && c.now().Sub(entry.CachedAt) > c.ttl
}

// evictLocked drops the globally oldest entries until the table is back
// at its maximum size.
func (c *Cache) evictLocked() {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return
	}

	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.Before(entries[j].CachedAt)
	})

	for _, entry := range entries[:len(entries)-c.maxEntries] {
		delete(c.entries, entry.Fingerprint)
	}
}

func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // fresh start
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}

	c.entries = make(map[media.Fingerprint]Entry, len(entries))
	for _, entry := range entries {
		if entry.Fingerprint == "" || c.expired(entry) {
			continue
		}
		c.entries[entry.Fingerprint] = entry
	}
	c.evictLocked()

	c.logger.Debug("loaded metadata cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))

	return nil
}

// persistLocked writes the full table to disk atomically. Failures are
// logged and swallowed; the in-memory table stays authoritative.
func (c *Cache) persistLocked() {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.After(entries[j].CachedAt)
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		c.warnPersist(err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		c.warnPersist(err)
		return
	}

	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		c.warnPersist(err)
		return
	}
	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath)
		c.warnPersist(err)
	}
}

func (c *Cache) warnPersist(err error) {
	c.logger.Warn("failed to persist metadata cache",
		logging.String(logging.FieldEventType, "mbcache_persist_failed"),
		logging.Error(err),
		logging.String(logging.FieldImpact, "cache contents survive only for this process"))
}
