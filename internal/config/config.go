// Package config handles application configuration from a TOML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Catalog backends.
const (
	CatalogSpotify = "spotify"
	CatalogRSS     = "rss"
)

const maxPageSize = 50

// Config holds the application configuration.
type Config struct {
	Catalog             string   `toml:"catalog"`
	SpotifyClientID     string   `toml:"spotify_client_id"`
	SpotifyClientSecret string   `toml:"spotify_client_secret"`
	SpotifyMarket       string   `toml:"spotify_market"`
	RSSFeeds            []string `toml:"rss_feeds"`

	DatabasePath string `toml:"database_path"`
	LockDir      string `toml:"lock_dir"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	PageSize          int     `toml:"page_size"`
	MaxPages          int     `toml:"max_pages"`
	RequestsPerSecond float64 `toml:"requests_per_second"`

	TelegramBotToken string `toml:"telegram_bot_token"`
	TelegramChatID   int64  `toml:"telegram_chat_id"`

	// SchedulerTick is a Go duration string such as "1m".
	SchedulerTick string `toml:"scheduler_tick"`
	MetricsAddr   string `toml:"metrics_addr"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Catalog:       CatalogSpotify,
		DatabasePath:  "./data/podfinder.db",
		LogLevel:      "info",
		LogFormat:     "text",
		PageSize:      maxPageSize,
		SchedulerTick: "1m",
	}
}

// Load builds the configuration from defaults, the optional TOML file at path
// and environment variables, in that order, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer func() { _ = file.Close() }()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Catalog, "CATALOG")
	setString(&c.SpotifyClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.SpotifyClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.SpotifyMarket, "SPOTIFY_MARKET")
	setString(&c.DatabasePath, "DATABASE_PATH")
	setString(&c.LockDir, "LOCK_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.TelegramBotToken, "TELEGRAM_BOT_TOKEN")
	setString(&c.SchedulerTick, "SCHEDULER_TICK")
	setString(&c.MetricsAddr, "METRICS_ADDR")

	if raw := os.Getenv("RSS_FEEDS"); raw != "" {
		c.RSSFeeds = strings.Split(raw, ",")
	}

	var errs []error
	if raw := os.Getenv("PAGE_SIZE"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid PAGE_SIZE %q: %w", raw, err))
		}
		c.PageSize = v
	}
	if raw := os.Getenv("MAX_PAGES"); raw != "" {
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid MAX_PAGES %q: %w", raw, err))
		}
		c.MaxPages = v
	}
	if raw := os.Getenv("REQUESTS_PER_SECOND"); raw != "" {
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid REQUESTS_PER_SECOND %q: %w", raw, err))
		}
		c.RequestsPerSecond = v
	}
	if raw := os.Getenv("TELEGRAM_CHAT_ID"); raw != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid TELEGRAM_CHAT_ID %q: %w", raw, err))
		}
		c.TelegramChatID = v
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) normalize() {
	c.Catalog = strings.ToLower(strings.TrimSpace(c.Catalog))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.SpotifyClientID = strings.TrimSpace(c.SpotifyClientID)
	c.SpotifyClientSecret = strings.TrimSpace(c.SpotifyClientSecret)
	c.SpotifyMarket = strings.ToUpper(strings.TrimSpace(c.SpotifyMarket))

	feeds := make([]string, 0, len(c.RSSFeeds))
	for _, f := range c.RSSFeeds {
		if f = strings.TrimSpace(f); f != "" {
			feeds = append(feeds, f)
		}
	}
	c.RSSFeeds = feeds
}

// LockPath returns the directory holding per-query run locks. Unless set
// explicitly it is a "locks" directory next to the database.
func (c *Config) LockPath() string {
	if c.LockDir != "" {
		return c.LockDir
	}
	return filepath.Join(filepath.Dir(c.DatabasePath), "locks")
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var problems []string

	switch c.Catalog {
	case CatalogSpotify:
	case CatalogRSS:
		if len(c.RSSFeeds) == 0 {
			problems = append(problems, "rss_feeds must list at least one feed when catalog is rss")
		}
	default:
		problems = append(problems, fmt.Sprintf("catalog must be %q or %q, got %q", CatalogSpotify, CatalogRSS, c.Catalog))
	}

	if c.DatabasePath == "" {
		problems = append(problems, "database_path must be set")
	}
	if c.PageSize < 1 || c.PageSize > maxPageSize {
		problems = append(problems, fmt.Sprintf("page_size must be between 1 and %d", maxPageSize))
	}
	if c.MaxPages < 0 {
		problems = append(problems, "max_pages must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		problems = append(problems, "requests_per_second must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format must be text or json, got %q", c.LogFormat))
	}

	if d, err := time.ParseDuration(c.SchedulerTick); err != nil || d <= 0 {
		problems = append(problems, fmt.Sprintf("scheduler_tick must be a positive duration, got %q", c.SchedulerTick))
	}

	if (c.TelegramBotToken == "") != (c.TelegramChatID == 0) {
		problems = append(problems, "telegram_bot_token and telegram_chat_id must be set together")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// RequireSpotify checks the credentials needed to talk to the Spotify API.
func (c *Config) RequireSpotify() error {
	if c.SpotifyClientID == "" || c.SpotifyClientSecret == "" {
		return errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET are required")
	}
	return nil
}

// Tick returns the scheduler interval.
func (c *Config) Tick() time.Duration {
	d, err := time.ParseDuration(c.SchedulerTick)
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// NotificationsEnabled reports whether Telegram delivery is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != 0
}
