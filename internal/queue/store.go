package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"scrobbled/internal/config"
	"scrobbled/internal/listenbrainz"
)

// Store manages listen queue persistence backed by SQLite.
type Store struct {
	db       *sql.DB
	path     string
	maxItems int
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// Open initializes or connects to the listen queue database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueueDBPath(), cfg.Queue.MaxItems)
}

// OpenPath opens a queue database at an explicit path with the given
// capacity bound. A maxItems of zero disables capacity eviction.
func OpenPath(dbPath string, maxItems int) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, maxItems: maxItems}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Add appends a listen to the tail of the queue. When the queue is at
// capacity the oldest items are evicted first; the count of evicted
// items is returned alongside the stored item.
func (s *Store) Add(ctx context.Context, listen listenbrainz.Listen) (*Item, int, error) {
	ctx = ensureContext(ctx)

	listenJSON, err := json.Marshal(listen)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal listen: %w", err)
	}

	evicted := 0
	if s.maxItems > 0 {
		count, err := s.Count(ctx)
		if err != nil {
			return nil, 0, err
		}
		if overflow := count - s.maxItems + 1; overflow > 0 {
			res, err := s.execWithRetry(ctx,
				`DELETE FROM listens WHERE seq IN (SELECT seq FROM listens ORDER BY seq LIMIT ?)`,
				overflow,
			)
			if err != nil {
				return nil, 0, fmt.Errorf("evict oldest: %w", err)
			}
			if affected, err := res.RowsAffected(); err == nil {
				evicted = int(affected)
			}
		}
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO listens (id, listen_json, artist_name, track_name, retry_count, last_attempt_at, enqueued_at)
         VALUES (?, ?, ?, ?, 0, NULL, ?)`,
		id,
		string(listenJSON),
		listen.TrackMetadata.ArtistName,
		listen.TrackMetadata.TrackName,
		now,
	); err != nil {
		return nil, 0, fmt.Errorf("insert listen: %w", err)
	}

	item, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	return item, evicted, nil
}

const itemColumns = "seq, id, listen_json, artist_name, track_name, retry_count, last_attempt_at, enqueued_at"

// Head returns the oldest queued item, or nil when the queue is empty.
func (s *Store) Head(ctx context.Context) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM listens ORDER BY seq LIMIT 1`)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue head: %w", err)
	}
	return item, nil
}

// GetByID fetches a queued item by identifier.
func (s *Store) GetByID(ctx context.Context, id string) (*Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM listens WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// RecordAttempt stamps the item with an attempt: increments its retry
// count and sets last-attempt to now. Returns the updated item.
func (s *Store) RecordAttempt(ctx context.Context, id string) (*Item, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.execWithRetry(ensureContext(ctx),
		`UPDATE listens SET retry_count = retry_count + 1, last_attempt_at = ? WHERE id = ?`,
		now, id,
	); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	return s.GetByID(ctx, id)
}

// Remove deletes an item by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM listens WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete item: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Count returns the number of queued items.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ensureContext(ctx), `SELECT COUNT(1) FROM listens`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count listens: %w", err)
	}
	return count, nil
}

// List returns all queued items in enqueue order.
func (s *Store) List(ctx context.Context) ([]*Item, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+itemColumns+` FROM listens ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("list listens: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Clear removes all items from the queue.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ensureContext(ctx), `DELETE FROM listens`)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

func scanItem(scanner interface{ Scan(dest ...any) error }) (*Item, error) {
	var (
		seq           int64
		id            string
		listenJSON    string
		artistName    string
		trackName     string
		retryCount    int
		lastAttemptAt sql.NullString
		enqueuedRaw   string
	)

	if err := scanner.Scan(
		&seq,
		&id,
		&listenJSON,
		&artistName,
		&trackName,
		&retryCount,
		&lastAttemptAt,
		&enqueuedRaw,
	); err != nil {
		return nil, err
	}

	item := &Item{
		Seq:        seq,
		ID:         id,
		ArtistName: artistName,
		TrackName:  trackName,
		RetryCount: retryCount,
	}

	if err := json.Unmarshal([]byte(listenJSON), &item.Listen); err != nil {
		return nil, fmt.Errorf("decode listen %s: %w", id, err)
	}

	if enqueued, err := parseTimeString(enqueuedRaw); err == nil {
		item.EnqueuedAt = enqueued
	}
	if lastAttemptAt.Valid {
		if attempt, err := parseTimeString(lastAttemptAt.String); err == nil {
			item.LastAttemptAt = &attempt
		}
	}
	return item, nil
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
