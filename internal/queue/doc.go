// Package queue persists pending listen submissions in SQLite. Items are
// strictly FIFO by enqueue order, bounded in count with oldest-first
// eviction, and carry the retry bookkeeping the delivery loop needs to
// survive process restarts.
package queue
