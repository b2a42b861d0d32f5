package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	CacheDir string `toml:"cache_dir"`
	LogDir   string `toml:"log_dir"`
}

// ListenBrainz contains configuration for the listen submission endpoint.
type ListenBrainz struct {
	Token          string `toml:"token"`
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// MusicBrainz contains configuration for metadata identifier resolution.
type MusicBrainz struct {
	Enrichment        bool   `toml:"enrichment"`
	Preload           bool   `toml:"preload"`
	BaseURL           string `toml:"base_url"`
	UserAgent         string `toml:"user_agent"`
	MinScore          int    `toml:"min_score"`
	RateWindowSeconds int    `toml:"rate_window_seconds"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Scrobble contains the eligibility policy for the decision engine.
type Scrobble struct {
	Percent                int `toml:"percent"`
	MinSeconds             int `toml:"min_seconds"`
	SampleIntervalSeconds  int `toml:"sample_interval_seconds"`
	SeekToleranceSeconds   int `toml:"seek_tolerance_seconds"`
	PreloadSettleMilli     int `toml:"preload_settle_ms"`
	PreloadRetryDelayMilli int `toml:"preload_retry_delay_ms"`
}

// Cache contains configuration for the persisted metadata cache.
type Cache struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	TTLDays    int    `toml:"ttl_days"`
	MaxEntries int    `toml:"max_entries"`
}

// Queue contains configuration for the durable delivery queue.
type Queue struct {
	MaxItems   int `toml:"max_items"`
	MaxRetries int `toml:"max_retries"`
}

// Player contains configuration for the MPRIS host adapter.
type Player struct {
	BusName string `toml:"bus_name"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scrobbled.
//
// Configuration sections by subsystem:
//   - Paths: state, cache, and log directories
//   - ListenBrainz: submission endpoint and token
//   - MusicBrainz: identifier resolution and rate limiting
//   - Scrobble: eligibility thresholds and sampling cadence
//   - Cache: persisted fingerprint cache bounds
//   - Queue: delivery queue bounds
//   - Player: MPRIS bus selection
//   - Notifications: ntfy activity notifications
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	ListenBrainz  ListenBrainz  `toml:"listenbrainz"`
	MusicBrainz   MusicBrainz   `toml:"musicbrainz"`
	Scrobble      Scrobble      `toml:"scrobble"`
	Cache         Cache         `toml:"cache"`
	Queue         Queue         `toml:"queue"`
	Player        Player        `toml:"player"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scrobbled/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scrobbled.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.CacheDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// QueueDBPath returns the path of the durable listen queue database.
func (c *Config) QueueDBPath() string {
	return filepath.Join(c.Paths.StateDir, "queue.db")
}

// CachePath returns the metadata cache file path, honoring an explicit override.
func (c *Config) CachePath() string {
	if !c.Cache.Enabled {
		return ""
	}
	if strings.TrimSpace(c.Cache.Path) != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.Paths.CacheDir, "mbid_cache.json")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
