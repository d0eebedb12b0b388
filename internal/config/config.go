package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
	StateDir   string `toml:"state_dir"`
	TorrentDir string `toml:"torrent_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Jobs contains knobs shared by every pipeline job.
type Jobs struct {
	// IgnoreCache forces every job to execute even when a cached result exists.
	IgnoreCache bool `toml:"ignore_cache"`
	// ScreenshotCount is the number of screenshots taken from the main video.
	ScreenshotCount int `toml:"screenshot_count"`
	// ProcessWorkerExecutable overrides the binary re-executed for process
	// workers. Empty means the running executable.
	ProcessWorkerExecutable string `toml:"process_worker_executable"`
	// StopTimeoutSeconds bounds how long a stopped worker may take to exit.
	StopTimeoutSeconds int `toml:"stop_timeout_seconds"`
}

// TMDB contains configuration for The Movie Database API.
type TMDB struct {
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
	Language string `toml:"language"`
}

// ImageHost contains configuration for screenshot uploads.
type ImageHost struct {
	UploadURL         string `toml:"upload_url"`
	APIKey            string `toml:"api_key"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
}

// Client contains configuration for handing torrents to a BitTorrent client.
type Client struct {
	WatchDir string `toml:"watch_dir"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Tracker describes one submission target.
type Tracker struct {
	AnnounceURL string   `toml:"announce_url"`
	APIURL      string   `toml:"api_url"`
	APIKey      string   `toml:"api_key"`
	Source      string   `toml:"source"`
	Private     bool     `toml:"private"`
	Exclude     []string `toml:"exclude"`
	Screenshots bool     `toml:"screenshots"`
	Search      bool     `toml:"search"`
	AddToClient bool     `toml:"add_to_client"`
}

// Config encapsulates all configuration values for releasekit.
//
// Configuration sections by subsystem:
//   - Paths: cache, log, state and torrent output directories
//   - Logging: log format and level
//   - Jobs: cache behaviour and worker settings shared by all jobs
//   - TMDB: title lookup via The Movie Database
//   - ImageHost: screenshot upload endpoint
//   - Client: BitTorrent client watch directory
//   - Notifications: ntfy push notification settings
//   - Trackers: one table per submission target
type Config struct {
	Paths         Paths              `toml:"paths"`
	Logging       Logging            `toml:"logging"`
	Jobs          Jobs               `toml:"jobs"`
	TMDB          TMDB               `toml:"tmdb"`
	ImageHost     ImageHost          `toml:"imghost"`
	Client        Client             `toml:"client"`
	Notifications Notifications      `toml:"notifications"`
	Trackers      map[string]Tracker `toml:"trackers"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("releasekit.toml")
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

// EnsureDirectories creates the directories every run writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.CacheDir, c.Paths.LogDir, c.Paths.StateDir, c.Paths.TorrentDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Tracker returns the named tracker configuration.
func (c *Config) Tracker(name string) (Tracker, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	tracker, ok := c.Trackers[name]
	return tracker, ok
}

// TrackerNames returns configured tracker names in sorted order.
func (c *Config) TrackerNames() []string {
	names := make([]string, 0, len(c.Trackers))
	for name := range c.Trackers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FFmpegBinary returns the ffmpeg executable name used for screenshots.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
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
