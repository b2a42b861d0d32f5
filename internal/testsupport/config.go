package testsupport

import (
	"path/filepath"
	"testing"

	"scrobbled/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.ListenBrainz.Token = "test-token"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithToken sets the ListenBrainz token on the test config.
func WithToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.ListenBrainz.Token = token
	}
}

// WithEnrichmentDisabled turns off MusicBrainz enrichment.
func WithEnrichmentDisabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.MusicBrainz.Enrichment = false
	}
}
