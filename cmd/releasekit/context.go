package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"releasekit/internal/config"
	"releasekit/internal/httpcache"
	"releasekit/internal/identification/tmdb"
	"releasekit/internal/imghost"
	"releasekit/internal/job"
	"releasekit/internal/jobcache"
	"releasekit/internal/logging"
	"releasekit/internal/services"
)

// httpCacheMaxAge bounds how long a cached web database response is served.
const httpCacheMaxAge = 7 * 24 * time.Hour

type globalFlags struct {
	config      string
	ignoreCache bool
	logLevel    string
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if c.flags.ignoreCache {
			cfg.Jobs.IgnoreCache = true
		}
		if level := strings.TrimSpace(c.flags.logLevel); level != "" {
			cfg.Logging.Level = level
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			c.loggerErr = fmt.Errorf("setup logging: %w", err)
			return
		}
		c.logger = logger
	})
	return c.logger, c.loggerErr
}

// runContext tags the command's context with a fresh run id and returns a
// logger carrying it.
func (c *commandContext) runContext(cmd *cobra.Command) (context.Context, *slog.Logger, error) {
	logger, err := c.ensureLogger()
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithRunID(ctx, uuid.NewString())
	return ctx, logging.WithContext(ctx, logger), nil
}

func (c *commandContext) jobCacheDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.CacheDir, "jobs")
}

func (c *commandContext) httpCachePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.CacheDir, "http.db")
}

// jobOptions returns the options shared by every job of a run.
func (c *commandContext) jobOptions(cfg *config.Config, logger *slog.Logger) job.Options {
	return job.Options{
		Cache:       jobcache.New(c.jobCacheDir(cfg), logger),
		IgnoreCache: cfg.Jobs.IgnoreCache,
		Logger:      logger,
	}
}

func (c *commandContext) openHTTPCache(cfg *config.Config, logger *slog.Logger) (*httpcache.Store, error) {
	store, err := httpcache.Open(c.httpCachePath(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("open http cache: %w", err)
	}
	return store, nil
}

// tmdbClient routes TMDB lookups through the HTTP cache. --ignore-cache
// still records fresh responses.
func newTMDBClient(cfg *config.Config, store *httpcache.Store) (*tmdb.Client, error) {
	transport := &httpcache.Transport{
		Store:  store,
		MaxAge: httpCacheMaxAge,
		Bypass: cfg.Jobs.IgnoreCache,
	}
	client, err := tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.BaseURL, cfg.TMDB.Language,
		tmdb.WithHTTPClient(&http.Client{Timeout: 10 * time.Second, Transport: transport}))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "tmdb client",
			"set tmdb.api_key or TMDB_API_KEY", err)
	}
	return client, nil
}

func newUploader(cfg *config.Config) (*imghost.Client, error) {
	endpoint := strings.TrimSpace(cfg.ImageHost.UploadURL)
	if endpoint == "" {
		return nil, services.Wrap(services.ErrConfiguration, "cli", "image host",
			"imghost.upload_url is not configured", nil)
	}
	return imghost.New(endpoint, cfg.ImageHost.APIKey,
		imghost.WithTimeout(time.Duration(cfg.ImageHost.TimeoutSeconds)*time.Second),
		imghost.WithRequestsPerMinute(cfg.ImageHost.RequestsPerMinute),
	), nil
}

func lookupTracker(cfg *config.Config, name string) (config.Tracker, error) {
	tracker, ok := cfg.Tracker(name)
	if !ok {
		known := strings.Join(cfg.TrackerNames(), ", ")
		if known == "" {
			known = "none configured"
		}
		return config.Tracker{}, services.Wrap(services.ErrConfiguration, "cli", "tracker",
			fmt.Sprintf("unknown tracker %q (known: %s)", name, known), nil)
	}
	return tracker, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
