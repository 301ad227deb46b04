// Package search runs a stored query against a catalog and records what it finds.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"podfinder/internal/catalog"
	"podfinder/internal/filter"
	"podfinder/internal/metrics"
	"podfinder/internal/model"
	"podfinder/internal/querylock"
	"podfinder/internal/storage"
)

// ErrRunInProgress is returned when another run of the same query holds its lock.
var ErrRunInProgress = errors.New("query run already in progress")

// Options parameterises one run.
type Options struct {
	Market   string
	PageSize int
	MaxPages int
}

// Summary describes the outcome of one run.
type Summary struct {
	RunID         string
	QueryID       int64
	Term          string
	PreviousCount int
	CurrentCount  int
	NewEpisodes   []model.Episode
	Processed     int
	Skipped       int
	RunAt         time.Time
}

// Engine executes runs.
type Engine struct {
	store    storage.Storage
	provider catalog.Provider
	locks    *querylock.Locker
	log      *slog.Logger
	now      func() time.Time
}

// Option customises Engine construction.
type Option func(*Engine)

// WithLocker makes runs take a per-query lock before touching the store.
func WithLocker(l *querylock.Locker) Option {
	return func(e *Engine) {
		e.locks = l
	}
}

// WithClock overrides the time source used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine.
func New(store storage.Storage, provider catalog.Provider, log *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		provider: provider,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run searches the catalog for q.Term, filters the hits through the query's
// patterns and upserts the survivors. All store writes of a run commit
// together; on error the store is left as it was.
func (e *Engine) Run(ctx context.Context, q model.Query, opts Options) (Summary, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := e.log.With("query_id", q.ID, "term", q.Term, "run_id", runID)

	if e.locks != nil {
		lock, err := e.locks.TryLock(q.ID)
		if err != nil {
			if errors.Is(err, querylock.ErrHeld) {
				metrics.Runs.WithLabelValues("busy").Inc()
				return Summary{}, fmt.Errorf("query %d: %w", q.ID, ErrRunInProgress)
			}
			return Summary{}, fmt.Errorf("lock query %d: %w", q.ID, err)
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				log.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	summary, err := e.run(ctx, q, opts, log)
	metrics.Runs.WithLabelValues(resultLabel(err)).Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		log.Error("run failed", "error", err)
		return Summary{}, err
	}
	summary.RunID = runID

	metrics.RunEpisodes.WithLabelValues("new").Add(float64(len(summary.NewEpisodes)))
	metrics.RunEpisodes.WithLabelValues("processed").Add(float64(summary.Processed))
	metrics.RunEpisodes.WithLabelValues("skipped").Add(float64(summary.Skipped))
	log.Info("run complete",
		"previous", summary.PreviousCount,
		"current", summary.CurrentCount,
		"new", len(summary.NewEpisodes),
		"processed", summary.Processed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

func (e *Engine) run(ctx context.Context, q model.Query, opts Options, log *slog.Logger) (Summary, error) {
	set := filter.NewSet(q.Patterns)
	for _, p := range set.Inert() {
		log.Warn("ignoring invalid pattern", "pattern", p.Raw, "error", p.Err)
	}

	previous, err := e.store.CountEpisodes(ctx, q.ID)
	if err != nil {
		return Summary{}, err
	}

	var hits []model.Episode
	var ids []string
	searchOpts := catalog.SearchOptions{Market: opts.Market, PageSize: opts.PageSize, MaxPages: opts.MaxPages}
	for ep, err := range e.provider.SearchEpisodes(ctx, q.Term, searchOpts) {
		if err != nil {
			return Summary{}, err
		}
		hits = append(hits, ep)
		if ep.ExternalID != "" {
			ids = append(ids, ep.ExternalID)
		}
	}
	log.Debug("search finished", "hits", len(hits))

	details, err := e.provider.GetEpisodes(ctx, ids, opts.Market)
	if err != nil {
		return Summary{}, err
	}
	byID := make(map[string]model.Episode, len(details))
	for _, d := range details {
		byID[d.ExternalID] = d
	}

	summary := Summary{
		QueryID:       q.ID,
		Term:          q.Term,
		PreviousCount: previous,
		RunAt:         e.now().UTC().Truncate(time.Second),
	}

	err = e.store.InTx(ctx, func(tx storage.Tx) error {
		for _, hit := range hits {
			ep := hit
			if d, ok := byID[hit.ExternalID]; ok && hit.ExternalID != "" {
				ep = d
			}
			if ep.ExternalID == "" {
				continue
			}

			reason := set.Evaluate(filter.Item{Show: ep.ShowName, Title: ep.Name, Description: ep.Description})
			if reason != filter.ReasonNone {
				summary.Skipped++
				log.Debug("episode filtered", "episode_id", ep.ExternalID, "reason", string(reason))
				continue
			}
			summary.Processed++

			_, err := tx.FindEpisode(ctx, q.ID, ep.ExternalID)
			switch {
			case err == nil:
				if err := tx.UpdateEpisode(ctx, q.ID, ep, summary.RunAt); err != nil {
					return err
				}
			case errors.Is(err, storage.ErrNotFound):
				if err := tx.InsertEpisode(ctx, q.ID, ep, summary.RunAt); err != nil {
					return err
				}
				summary.NewEpisodes = append(summary.NewEpisodes, ep)
			default:
				return err
			}
		}

		run := model.Run{
			QueryID:   q.ID,
			RunAt:     summary.RunAt,
			NewCount:  len(summary.NewEpisodes),
			Processed: summary.Processed,
		}
		if err := tx.InsertRun(ctx, &run); err != nil {
			return err
		}
		if err := tx.MarkQueryRun(ctx, q.ID, summary.RunAt); err != nil {
			return err
		}

		current, err := tx.CountEpisodes(ctx, q.ID)
		if err != nil {
			return err
		}
		summary.CurrentCount = current
		return nil
	})
	if err != nil {
		return Summary{}, fmt.Errorf("store run: %w", err)
	}
	return summary, nil
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, catalog.ErrAuth):
		return "auth_error"
	case errors.Is(err, catalog.ErrAPI):
		return "api_error"
	default:
		return "error"
	}
}
