// Package scheduler runs due queries on a fixed tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podfinder/internal/model"
	"podfinder/internal/search"
	"podfinder/internal/storage"
)

// Runner executes a single query run.
type Runner interface {
	Run(ctx context.Context, q model.Query, opts search.Options) (search.Summary, error)
}

// Notifier announces the outcome of a successful run.
type Notifier interface {
	Notify(ctx context.Context, s search.Summary) error
}

// Result is the outcome of one due query.
type Result struct {
	Query   model.Query
	Summary search.Summary
	Err     error
}

// Scheduler periodically runs the queries whose schedule says they are due.
type Scheduler struct {
	store    storage.Storage
	runner   Runner
	notifier Notifier
	opts     search.Options
	log      *slog.Logger
	tick     time.Duration
	now      func() time.Time
}

// New creates a Scheduler with a 1-minute tick.
func New(store storage.Storage, runner Runner, opts search.Options, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:  store,
		runner: runner,
		opts:   opts,
		log:    log,
		tick:   1 * time.Minute,
		now:    time.Now,
	}
}

// SetNotifier makes the scheduler announce new episodes after each run.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	if err := s.RunDue(ctx, nil); err != nil && ctx.Err() == nil {
		s.log.Error("run due queries", "error", err)
	}
}

// Due returns the queries whose schedule says they should run now.
func (s *Scheduler) Due(ctx context.Context) ([]model.Query, error) {
	queries, err := s.store.ListDueQueries(ctx, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("list due queries: %w", err)
	}
	return queries, nil
}

// RunDue runs every due query in ID order, one after another. visit, when
// non-nil, is called with the result of each query. A failing query does not
// stop the others; only listing the due queries can fail RunDue.
func (s *Scheduler) RunDue(ctx context.Context, visit func(Result)) error {
	queries, err := s.Due(ctx)
	if err != nil {
		return err
	}

	for _, q := range queries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		res := s.RunQuery(ctx, q)
		if visit != nil {
			visit(res)
		}
	}
	return nil
}

// RunQuery runs q and, when a notifier is set, announces the outcome.
func (s *Scheduler) RunQuery(ctx context.Context, q model.Query) Result {
	s.log.Debug("running query", "query_id", q.ID, "term", q.Term)

	summary, err := s.runner.Run(ctx, q, s.opts)
	switch {
	case errors.Is(err, search.ErrRunInProgress):
		s.log.Info("skipping query, run in progress", "query_id", q.ID, "term", q.Term)
		return Result{Query: q, Err: err}
	case err != nil:
		s.log.Error("run query", "query_id", q.ID, "term", q.Term, "error", err)
		return Result{Query: q, Err: err}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, summary); err != nil {
			s.log.Error("notify", "query_id", q.ID, "term", q.Term, "error", err)
		}
	}
	return Result{Query: q, Summary: summary}
}
