package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeJobs()
	c.normalizeTMDB()
	c.normalizeImageHost()
	return c.normalizeTrackers()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TorrentDir) == "" {
		c.Paths.TorrentDir = defaultTorrentDir
	}
	if c.Paths.TorrentDir, err = expandPath(c.Paths.TorrentDir); err != nil {
		return fmt.Errorf("paths.torrent_dir: %w", err)
	}
	if c.Client.WatchDir, err = expandPath(strings.TrimSpace(c.Client.WatchDir)); err != nil {
		return fmt.Errorf("client.watch_dir: %w", err)
	}
	if exe := strings.TrimSpace(c.Jobs.ProcessWorkerExecutable); exe != "" {
		if c.Jobs.ProcessWorkerExecutable, err = expandPath(exe); err != nil {
			return fmt.Errorf("jobs.process_worker_executable: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeJobs() {
	if c.Jobs.StopTimeoutSeconds == 0 {
		c.Jobs.StopTimeoutSeconds = defaultStopTimeoutSeconds
	}
}

func (c *Config) normalizeTMDB() {
	if c.TMDB.APIKey == "" {
		if value, ok := os.LookupEnv("TMDB_API_KEY"); ok {
			c.TMDB.APIKey = value
		}
	}
	c.TMDB.APIKey = strings.TrimSpace(c.TMDB.APIKey)
	c.TMDB.BaseURL = strings.TrimRight(strings.TrimSpace(c.TMDB.BaseURL), "/")
	if c.TMDB.BaseURL == "" {
		c.TMDB.BaseURL = defaultTMDBBaseURL
	}
	c.TMDB.Language = strings.TrimSpace(c.TMDB.Language)
}

func (c *Config) normalizeImageHost() {
	c.ImageHost.UploadURL = strings.TrimSpace(c.ImageHost.UploadURL)
	c.ImageHost.APIKey = strings.TrimSpace(c.ImageHost.APIKey)
	if c.ImageHost.TimeoutSeconds == 0 {
		c.ImageHost.TimeoutSeconds = defaultImageHostTimeoutSeconds
	}
}

// normalizeTrackers lowercases tracker names so lookups from the command line
// are case insensitive.
func (c *Config) normalizeTrackers() error {
	if len(c.Trackers) == 0 {
		c.Trackers = map[string]Tracker{}
		return nil
	}
	normalized := make(map[string]Tracker, len(c.Trackers))
	for name, tracker := range c.Trackers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return fmt.Errorf("trackers: empty tracker name")
		}
		if _, dup := normalized[key]; dup {
			return fmt.Errorf("trackers.%s: defined more than once", key)
		}
		tracker.AnnounceURL = strings.TrimSpace(tracker.AnnounceURL)
		tracker.APIURL = strings.TrimSpace(tracker.APIURL)
		tracker.APIKey = strings.TrimSpace(tracker.APIKey)
		tracker.Source = strings.TrimSpace(tracker.Source)
		normalized[key] = tracker
	}
	c.Trackers = normalized
	return nil
}
