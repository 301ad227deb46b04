package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"podfinder/internal/metrics"
	"podfinder/internal/notify"
	"podfinder/internal/scheduler"
	"podfinder/internal/storage"
)

const shutdownTimeout = 5 * time.Second

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run due queries on a schedule and notify about new episodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.config
			log := ctx.log

			return ctx.withStore(cmd.Context(), func(store *storage.SQLite) error {
				engine, err := ctx.newEngine(store)
				if err != nil {
					return err
				}

				sched := scheduler.New(store, engine, ctx.defaultOptions(), log)
				sched.SetTickInterval(cfg.Tick())

				if cfg.NotificationsEnabled() {
					n, err := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, log)
					if err != nil {
						return err
					}
					sched.SetNotifier(n)
				}

				if cfg.MetricsAddr != "" {
					stop := serveMetrics(cfg.MetricsAddr, log)
					defer stop()
				}

				log.Info("starting daemon", "catalog", cfg.Catalog, "tick", cfg.Tick(), "notifications", cfg.NotificationsEnabled())
				sched.Run(cmd.Context())
				log.Info("daemon stopped")
				return nil
			})
		},
	}
}

// serveMetrics exposes the Prometheus registry on addr until the returned
// function is called.
func serveMetrics(addr string, log *slog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", "error", fmt.Errorf("listen %s: %w", addr, err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("metrics server shutdown", "error", err)
		}
	}
}
