// Package delivery drains the durable listen queue against the
// ListenBrainz API with bounded, escalating retries.
package delivery
