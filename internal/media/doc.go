// Package media defines the shared value types for playback metadata:
// track attributes as delivered by the host player, the derived cache
// fingerprint, and the MusicBrainz identifier set attached to a listen.
package media
