// Package mbcache persists resolved MusicBrainz identifier sets keyed by
// track fingerprint. Entries expire after a TTL and the table is bounded,
// evicting the oldest entries first. A cache hit never triggers network
// I/O; persistence failures degrade to in-memory operation.
package mbcache
