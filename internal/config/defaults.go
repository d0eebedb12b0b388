package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	defaultConfigPath              = "~/.config/releasekit/config.toml"
	defaultLogDir                  = "~/.local/share/releasekit/logs"
	defaultStateDir                = "~/.local/share/releasekit"
	defaultTorrentDir              = "~/.local/share/releasekit/torrents"
	defaultLogFormat               = "console"
	defaultLogLevel                = "info"
	defaultScreenshotCount         = 4
	defaultStopTimeoutSeconds      = 10
	defaultTMDBBaseURL             = "https://api.themoviedb.org/3"
	defaultTMDBLanguage            = "en-US"
	defaultImageHostRatePerMinute  = 30
	defaultImageHostTimeoutSeconds = 60
	defaultNotifyRequestTimeout    = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			CacheDir:   defaultCacheDir(),
			LogDir:     defaultLogDir,
			StateDir:   defaultStateDir,
			TorrentDir: defaultTorrentDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Jobs: Jobs{
			ScreenshotCount:    defaultScreenshotCount,
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
		},
		TMDB: TMDB{
			BaseURL:  defaultTMDBBaseURL,
			Language: defaultTMDBLanguage,
		},
		ImageHost: ImageHost{
			RequestsPerMinute: defaultImageHostRatePerMinute,
			TimeoutSeconds:    defaultImageHostTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Trackers: map[string]Tracker{},
	}
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "releasekit")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/releasekit"
	}
	return filepath.Join(home, ".cache", "releasekit")
}
