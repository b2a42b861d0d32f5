package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks configuration values for internal consistency.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.StateDir) == "" {
		problems = append(problems, "paths.state_dir is required")
	}
	if c.ListenBrainz.BaseURL == "" {
		problems = append(problems, "listenbrainz.base_url is required")
	}
	if c.MusicBrainz.BaseURL == "" {
		problems = append(problems, "musicbrainz.base_url is required")
	}
	if c.MusicBrainz.MinScore < 0 || c.MusicBrainz.MinScore > 100 {
		problems = append(problems, fmt.Sprintf("musicbrainz.min_score must be within 0-100, got %d", c.MusicBrainz.MinScore))
	}
	if c.MusicBrainz.RateWindowSeconds < 1 {
		problems = append(problems, "musicbrainz.rate_window_seconds must be at least 1")
	}
	if c.Scrobble.Percent < 1 || c.Scrobble.Percent > 100 {
		problems = append(problems, fmt.Sprintf("scrobble.percent must be within 1-100, got %d", c.Scrobble.Percent))
	}
	if c.Scrobble.MinSeconds < 1 {
		problems = append(problems, "scrobble.min_seconds must be positive")
	}
	if c.Scrobble.SampleIntervalSeconds < 1 {
		problems = append(problems, "scrobble.sample_interval_seconds must be positive")
	}
	if c.Cache.TTLDays < 1 {
		problems = append(problems, "cache.ttl_days must be positive")
	}
	if c.Cache.MaxEntries < 1 {
		problems = append(problems, "cache.max_entries must be positive")
	}
	if c.Queue.MaxItems < 1 {
		problems = append(problems, "queue.max_items must be positive")
	}
	if c.Queue.MaxRetries < 1 {
		problems = append(problems, "queue.max_retries must be positive")
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
