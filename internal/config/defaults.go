package config

const (
	defaultStateDir             = "~/.local/share/scrobbled"
	defaultCacheDir             = "~/.cache/scrobbled"
	defaultLogDir               = "~/.local/share/scrobbled/logs"
	defaultListenBrainzBaseURL  = "https://api.listenbrainz.org"
	defaultListenBrainzTimeout  = 15
	defaultMusicBrainzBaseURL   = "https://musicbrainz.org"
	defaultMusicBrainzUserAgent = "scrobbled/0.1.0"
	defaultMusicBrainzMinScore  = 85
	defaultMusicBrainzRateSecs  = 1
	defaultMusicBrainzTimeout   = 10
	defaultScrobblePercent      = 50
	defaultScrobbleMinSeconds   = 240
	defaultSampleInterval       = 2
	defaultSeekTolerance        = 5
	defaultPreloadSettleMS      = 1000
	defaultPreloadRetryDelayMS  = 1500
	defaultCacheTTLDays         = 30
	defaultCacheMaxEntries      = 1000
	defaultQueueMaxItems        = 100
	defaultQueueMaxRetries      = 5
	defaultPlayerBusName        = "org.mpris.MediaPlayer2.cider"
	defaultNtfyRequestTimeout   = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			CacheDir: defaultCacheDir,
			LogDir:   defaultLogDir,
		},
		ListenBrainz: ListenBrainz{
			BaseURL:        defaultListenBrainzBaseURL,
			TimeoutSeconds: defaultListenBrainzTimeout,
		},
		MusicBrainz: MusicBrainz{
			Enrichment:        true,
			Preload:           true,
			BaseURL:           defaultMusicBrainzBaseURL,
			UserAgent:         defaultMusicBrainzUserAgent,
			MinScore:          defaultMusicBrainzMinScore,
			RateWindowSeconds: defaultMusicBrainzRateSecs,
			TimeoutSeconds:    defaultMusicBrainzTimeout,
		},
		Scrobble: Scrobble{
			Percent:                defaultScrobblePercent,
			MinSeconds:             defaultScrobbleMinSeconds,
			SampleIntervalSeconds:  defaultSampleInterval,
			SeekToleranceSeconds:   defaultSeekTolerance,
			PreloadSettleMilli:     defaultPreloadSettleMS,
			PreloadRetryDelayMilli: defaultPreloadRetryDelayMS,
		},
		Cache: Cache{
			Enabled:    true,
			TTLDays:    defaultCacheTTLDays,
			MaxEntries: defaultCacheMaxEntries,
		},
		Queue: Queue{
			MaxItems:   defaultQueueMaxItems,
			MaxRetries: defaultQueueMaxRetries,
		},
		Player: Player{
			BusName: defaultPlayerBusName,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
