package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"podfinder/internal/model"
)

const episodeSelect = `SELECT id, query_id, episode_id, name, show_name, release_date, description,
	external_url, uri, duration_ms, raw_data, first_seen_at, last_seen_at
	FROM episodes`

type episodeRow struct {
	ID          int64          `db:"id"`
	QueryID     int64          `db:"query_id"`
	EpisodeID   string         `db:"episode_id"`
	Name        string         `db:"name"`
	ShowName    string         `db:"show_name"`
	ReleaseDate sql.NullString `db:"release_date"`
	Description sql.NullString `db:"description"`
	ExternalURL sql.NullString `db:"external_url"`
	URI         sql.NullString `db:"uri"`
	DurationMS  sql.NullInt64  `db:"duration_ms"`
	RawData     sql.NullString `db:"raw_data"`
	FirstSeenAt string         `db:"first_seen_at"`
	LastSeenAt  string         `db:"last_seen_at"`
}

func newEpisodeRow(queryID int64, ep model.Episode, seenAt time.Time) episodeRow {
	row := episodeRow{
		QueryID:     queryID,
		EpisodeID:   ep.ExternalID,
		Name:        ep.Name,
		ShowName:    ep.ShowName,
		ReleaseDate: nullString(ep.ReleaseDate),
		Description: nullString(ep.Description),
		ExternalURL: nullString(ep.ExternalURL),
		URI:         nullString(ep.URI),
		RawData:     nullString(string(ep.Raw)),
		FirstSeenAt: formatTime(seenAt),
		LastSeenAt:  formatTime(seenAt),
	}
	if ep.DurationMS != nil {
		row.DurationMS = sql.NullInt64{Int64: *ep.DurationMS, Valid: true}
	}
	return row
}

func (r episodeRow) toModel() model.StoredEpisode {
	ep := model.StoredEpisode{
		ID:      r.ID,
		QueryID: r.QueryID,
		Episode: model.Episode{
			ExternalID:  r.EpisodeID,
			Name:        r.Name,
			ShowName:    r.ShowName,
			ReleaseDate: r.ReleaseDate.String,
			Description: r.Description.String,
			ExternalURL: r.ExternalURL.String,
			URI:         r.URI.String,
		},
		FirstSeenAt: parseTime(r.FirstSeenAt),
		LastSeenAt:  parseTime(r.LastSeenAt),
	}
	if r.DurationMS.Valid {
		d := r.DurationMS.Int64
		ep.DurationMS = &d
	}
	if r.RawData.Valid {
		ep.Raw = []byte(r.RawData.String)
	}
	return ep
}

type runRow struct {
	ID           int64          `db:"id"`
	QueryID      int64          `db:"query_id"`
	RunAt        string         `db:"run_at"`
	NewCount     int            `db:"new_count"`
	TotalResults int            `db:"total_results"`
	Term         sql.NullString `db:"term"`
}

func (r runRow) toModel() model.Run {
	return model.Run{
		ID:        r.ID,
		QueryID:   r.QueryID,
		RunAt:     parseTime(r.RunAt),
		NewCount:  r.NewCount,
		Processed: r.TotalResults,
		Term:      r.Term.String,
	}
}

// CountEpisodes returns the number of episodes stored for a query.
func (s *SQLite) CountEpisodes(ctx context.Context, queryID int64) (int, error) {
	return countEpisodes(ctx, s.db, queryID)
}

func countEpisodes(ctx context.Context, q sqlx.QueryerContext, queryID int64) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM episodes WHERE query_id = ?`, queryID); err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

var episodeOrderColumns = map[EpisodeOrder]string{
	OrderRelease:   "release_date",
	OrderFirstSeen: "first_seen_at",
	OrderLastSeen:  "last_seen_at",
}

// ListEpisodes returns the episodes stored for a query in the requested order.
func (s *SQLite) ListEpisodes(ctx context.Context, queryID int64, opts EpisodeListOptions) ([]model.StoredEpisode, error) {
	if opts.Order == "" {
		opts.Order = OrderRelease
	}
	column, ok := episodeOrderColumns[opts.Order]
	if !ok {
		return nil, fmt.Errorf("unknown episode order %q", opts.Order)
	}
	dir := "ASC"
	if opts.Descending {
		dir = "DESC"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}

	query := fmt.Sprintf(`%s WHERE query_id = ? ORDER BY %s %s, id %s LIMIT ?`, episodeSelect, column, dir, dir)
	var rows []episodeRow
	if err := s.db.SelectContext(ctx, &rows, query, queryID, limit); err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	out := make([]model.StoredEpisode, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// ListRecentRuns returns the most recent runs across all queries, newest first.
func (s *SQLite) ListRecentRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT r.id, r.query_id, r.run_at, r.new_count, r.total_results, q.term
		 FROM search_runs r
		 LEFT JOIN search_queries q ON q.id = r.query_id
		 ORDER BY r.run_at DESC, r.id DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]model.Run, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

type sqliteTx struct {
	tx *sqlx.Tx
}

// FindEpisode looks up a stored episode by its catalog identifier.
func (t *sqliteTx) FindEpisode(ctx context.Context, queryID int64, externalID string) (*model.StoredEpisode, error) {
	var row episodeRow
	err := t.tx.GetContext(ctx, &row, episodeSelect+` WHERE query_id = ? AND episode_id = ?`, queryID, externalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("episode %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("find episode: %w", err)
	}
	ep := row.toModel()
	return &ep, nil
}

// InsertEpisode stores a newly discovered episode with both seen timestamps set to seenAt.
func (t *sqliteTx) InsertEpisode(ctx context.Context, queryID int64, ep model.Episode, seenAt time.Time) error {
	_, err := t.tx.NamedExecContext(ctx,
		`INSERT INTO episodes (
			query_id, episode_id, name, show_name, release_date, description,
			external_url, uri, duration_ms, raw_data, first_seen_at, last_seen_at
		) VALUES (
			:query_id, :episode_id, :name, :show_name, :release_date, :description,
			:external_url, :uri, :duration_ms, :raw_data, :first_seen_at, :last_seen_at
		)`,
		newEpisodeRow(queryID, ep, seenAt),
	)
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// UpdateEpisode overwrites the metadata of a stored episode and refreshes
// last_seen_at, never below first_seen_at. first_seen_at is left untouched.
func (t *sqliteTx) UpdateEpisode(ctx context.Context, queryID int64, ep model.Episode, seenAt time.Time) error {
	res, err := t.tx.NamedExecContext(ctx,
		`UPDATE episodes SET
			name = :name, show_name = :show_name, release_date = :release_date,
			description = :description, external_url = :external_url, uri = :uri,
			duration_ms = :duration_ms, raw_data = :raw_data,
			last_seen_at = MAX(first_seen_at, :last_seen_at)
		 WHERE query_id = :query_id AND episode_id = :episode_id`,
		newEpisodeRow(queryID, ep, seenAt),
	)
	if err != nil {
		return fmt.Errorf("update episode: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("episode %s: %w", ep.ExternalID, ErrNotFound)
	}
	return nil
}

func (t *sqliteTx) CountEpisodes(ctx context.Context, queryID int64) (int, error) {
	return countEpisodes(ctx, t.tx, queryID)
}

// InsertRun records a run and populates its ID.
func (t *sqliteTx) InsertRun(ctx context.Context, run *model.Run) error {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO search_runs (query_id, run_at, new_count, total_results) VALUES (?, ?, ?, ?)`,
		run.QueryID, formatTime(run.RunAt), run.NewCount, run.Processed,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	run.ID = id
	return nil
}

// MarkQueryRun sets last_run and updated_at of a query.
func (t *sqliteTx) MarkQueryRun(ctx context.Context, queryID int64, at time.Time) error {
	ts := formatTime(at)
	res, err := t.tx.ExecContext(ctx,
		`UPDATE search_queries SET last_run = ?, updated_at = ? WHERE id = ?`, ts, ts, queryID,
	)
	if err != nil {
		return fmt.Errorf("mark query run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("query %d: %w", queryID, ErrNotFound)
	}
	return nil
}
