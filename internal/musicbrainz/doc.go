// Package musicbrainz resolves track metadata to MusicBrainz identifiers
// via ISRC lookup with a fuzzy search fallback, throttled to one outbound
// request per rolling window.
package musicbrainz
