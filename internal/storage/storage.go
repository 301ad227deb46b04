// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"podfinder/internal/model"
)

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// EpisodeOrder selects the sort column of an episode listing.
type EpisodeOrder string

// Episode listing orders.
const (
	OrderRelease   EpisodeOrder = "release"
	OrderFirstSeen EpisodeOrder = "first"
	OrderLastSeen  EpisodeOrder = "last"
)

// EpisodeListOptions controls ListEpisodes. A zero Limit returns every row.
type EpisodeListOptions struct {
	Order      EpisodeOrder
	Descending bool
	Limit      int
}

// QueryPatch lists the query fields to change. Nil fields are left as is.
type QueryPatch struct {
	Term                *string
	Frequency           *string
	ExcludeShows        *[]string
	ExcludeTitles       *[]string
	ExcludeDescriptions *[]string
	IncludeShows        *[]string
	IncludeTitles       *[]string
	IncludeDescriptions *[]string
}

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateQuery(ctx context.Context, q *model.Query) error
	GetQuery(ctx context.Context, id int64) (*model.Query, error)
	FindQueryByTerm(ctx context.Context, term string) (*model.Query, error)
	ListQueries(ctx context.Context) ([]model.Query, error)
	ListDueQueries(ctx context.Context, now time.Time) ([]model.Query, error)
	UpdateQuery(ctx context.Context, id int64, patch QueryPatch) (*model.Query, error)
	DeleteQuery(ctx context.Context, id int64) error

	CountEpisodes(ctx context.Context, queryID int64) (int, error)
	ListEpisodes(ctx context.Context, queryID int64, opts EpisodeListOptions) ([]model.StoredEpisode, error)
	ListRecentRuns(ctx context.Context, limit int) ([]model.Run, error)

	// InTx runs fn in one transaction. It commits when fn returns nil and
	// rolls back otherwise.
	InTx(ctx context.Context, fn func(Tx) error) error

	Close() error
}

// Tx is the unit of work a sync run writes through.
type Tx interface {
	FindEpisode(ctx context.Context, queryID int64, externalID string) (*model.StoredEpisode, error)
	InsertEpisode(ctx context.Context, queryID int64, ep model.Episode, seenAt time.Time) error
	UpdateEpisode(ctx context.Context, queryID int64, ep model.Episode, seenAt time.Time) error
	CountEpisodes(ctx context.Context, queryID int64) (int, error)
	InsertRun(ctx context.Context, run *model.Run) error
	MarkQueryRun(ctx context.Context, queryID int64, at time.Time) error
}
