package config

import "strings"

// normalize expands paths and trims string fields so validation and
// downstream consumers see canonical values.
func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.StateDir, &c.Paths.CacheDir, &c.Paths.LogDir, &c.Cache.Path} {
		trimmed := strings.TrimSpace(*field)
		if trimmed == "" {
			*field = ""
			continue
		}
		expanded, err := expandPath(trimmed)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.ListenBrainz.Token = strings.TrimSpace(c.ListenBrainz.Token)
	c.ListenBrainz.BaseURL = strings.TrimRight(strings.TrimSpace(c.ListenBrainz.BaseURL), "/")
	c.MusicBrainz.BaseURL = strings.TrimRight(strings.TrimSpace(c.MusicBrainz.BaseURL), "/")
	c.MusicBrainz.UserAgent = strings.TrimSpace(c.MusicBrainz.UserAgent)
	c.Player.BusName = strings.TrimSpace(c.Player.BusName)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))

	return nil
}
