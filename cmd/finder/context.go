package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"podfinder/internal/catalog"
	"podfinder/internal/config"
	"podfinder/internal/feedsource"
	"podfinder/internal/model"
	"podfinder/internal/querylock"
	"podfinder/internal/search"
	"podfinder/internal/spotify"
	"podfinder/internal/storage"
)

const feedTimeout = 30 * time.Second

type commandContext struct {
	configFlag *string
	dbFlag     *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
	log        *slog.Logger
}

func newCommandContext(configFlag, dbFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		dbFlag:     dbFlag,
	}
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if c.dbFlag != nil && strings.TrimSpace(*c.dbFlag) != "" {
			cfg.DatabasePath = strings.TrimSpace(*c.dbFlag)
		}
		c.config = cfg
		c.log = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	})
	return c.config, c.configErr
}

// withStore opens the database for the duration of fn.
func (c *commandContext) withStore(ctx context.Context, fn func(*storage.SQLite) error) error {
	if dir := filepath.Dir(c.config.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(ctx, c.config.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", c.config.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	return fn(store)
}

func (c *commandContext) newProvider() (catalog.Provider, error) {
	switch c.config.Catalog {
	case config.CatalogRSS:
		return feedsource.New(&http.Client{Timeout: feedTimeout}, c.config.RSSFeeds, c.log), nil
	default:
		if err := c.config.RequireSpotify(); err != nil {
			return nil, err
		}
		client, err := spotify.New(c.config.SpotifyClientID, c.config.SpotifyClientSecret,
			spotify.WithRateLimit(c.config.RequestsPerSecond),
			spotify.WithLogger(c.log),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func (c *commandContext) newEngine(store storage.Storage) (*search.Engine, error) {
	provider, err := c.newProvider()
	if err != nil {
		return nil, err
	}
	return search.New(store, provider, c.log, search.WithLocker(querylock.New(c.config.LockPath()))), nil
}

func (c *commandContext) defaultOptions() search.Options {
	return search.Options{
		Market:   c.config.SpotifyMarket,
		PageSize: c.config.PageSize,
		MaxPages: c.config.MaxPages,
	}
}

func parseQueryID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid query id %q", arg)
	}
	return id, nil
}

func getQuery(ctx context.Context, store storage.Storage, id int64) (*model.Query, error) {
	q, err := store.GetQuery(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("search query #%d not found", id)
	}
	return q, err
}
