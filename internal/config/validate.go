package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateJobs(); err != nil {
		return err
	}
	if err := c.validateImageHost(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return c.validateTrackers()
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateJobs() error {
	if c.Jobs.ScreenshotCount < 0 || c.Jobs.ScreenshotCount > 20 {
		return errors.New("jobs.screenshot_count must be between 0 and 20")
	}
	if c.Jobs.StopTimeoutSeconds <= 0 {
		return errors.New("jobs.stop_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateImageHost() error {
	if c.ImageHost.UploadURL == "" {
		return nil
	}
	if err := validateURL("imghost.upload_url", c.ImageHost.UploadURL); err != nil {
		return err
	}
	if c.ImageHost.RequestsPerMinute <= 0 {
		return errors.New("imghost.requests_per_minute must be positive")
	}
	if c.ImageHost.TimeoutSeconds <= 0 {
		return errors.New("imghost.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateTrackers() error {
	for _, name := range c.TrackerNames() {
		tracker := c.Trackers[name]
		if tracker.AnnounceURL == "" {
			return fmt.Errorf("trackers.%s.announce_url must be set", name)
		}
		if err := validateURL("trackers."+name+".announce_url", tracker.AnnounceURL); err != nil {
			return err
		}
		if tracker.APIURL != "" {
			if err := validateURL("trackers."+name+".api_url", tracker.APIURL); err != nil {
				return err
			}
			if tracker.APIKey == "" {
				return fmt.Errorf("trackers.%s.api_key must be set when api_url is set", name)
			}
		}
		for _, pattern := range tracker.Exclude {
			if _, err := filepath.Match(pattern, ""); err != nil {
				return fmt.Errorf("trackers.%s.exclude: invalid pattern %q: %w", name, pattern, err)
			}
		}
	}
	return nil
}

func validateURL(field, raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL, got %q", field, raw)
	}
	return nil
}
