// Package scrobbler implements the per-track decision engine: it samples
// playback on a fixed cadence, detects seeking, and hands eligible
// listens to the delivery queue exactly once per session.
package scrobbler
