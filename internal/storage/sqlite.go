package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"podfinder/internal/model"
	"podfinder/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const defaultFrequency = "weekly"

const querySelect = `SELECT id, term, frequency,
	exclude_shows, exclude_title_keywords, exclude_description_keywords,
	include_shows, include_title_keywords, include_description_keywords,
	created_at, updated_at, last_run
	FROM search_queries`

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(ctx context.Context, dsn string) (*SQLite, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=30000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now}, nil
}

// SetClock overrides the time source used for created/updated timestamps.
func (s *SQLite) SetClock(now func() time.Time) {
	s.now = now
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type queryRow struct {
	ID                  int64          `db:"id"`
	Term                string         `db:"term"`
	Frequency           string         `db:"frequency"`
	ExcludeShows        string         `db:"exclude_shows"`
	ExcludeTitles       string         `db:"exclude_title_keywords"`
	ExcludeDescriptions string         `db:"exclude_description_keywords"`
	IncludeShows        string         `db:"include_shows"`
	IncludeTitles       string         `db:"include_title_keywords"`
	IncludeDescriptions string         `db:"include_description_keywords"`
	CreatedAt           string         `db:"created_at"`
	UpdatedAt           string         `db:"updated_at"`
	LastRun             sql.NullString `db:"last_run"`
}

func newQueryRow(q *model.Query) queryRow {
	return queryRow{
		ID:                  q.ID,
		Term:                q.Term,
		Frequency:           q.Frequency,
		ExcludeShows:        model.EncodePatternList(q.Patterns.ExcludeShows),
		ExcludeTitles:       model.EncodePatternList(q.Patterns.ExcludeTitles),
		ExcludeDescriptions: model.EncodePatternList(q.Patterns.ExcludeDescriptions),
		IncludeShows:        model.EncodePatternList(q.Patterns.IncludeShows),
		IncludeTitles:       model.EncodePatternList(q.Patterns.IncludeTitles),
		IncludeDescriptions: model.EncodePatternList(q.Patterns.IncludeDescriptions),
		CreatedAt:           formatTime(q.CreatedAt),
		UpdatedAt:           formatTime(q.UpdatedAt),
		LastRun:             nullTime(q.LastRun),
	}
}

func (r queryRow) toModel() model.Query {
	q := model.Query{
		ID:        r.ID,
		Term:      r.Term,
		Frequency: r.Frequency,
		Patterns: model.Patterns{
			ExcludeShows:        model.ParsePatternList(r.ExcludeShows),
			ExcludeTitles:       model.ParsePatternList(r.ExcludeTitles),
			ExcludeDescriptions: model.ParsePatternList(r.ExcludeDescriptions),
			IncludeShows:        model.ParsePatternList(r.IncludeShows),
			IncludeTitles:       model.ParsePatternList(r.IncludeTitles),
			IncludeDescriptions: model.ParsePatternList(r.IncludeDescriptions),
		},
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
	if r.LastRun.Valid && r.LastRun.String != "" {
		t := parseTime(r.LastRun.String)
		q.LastRun = &t
	}
	return q
}

// CreateQuery validates and inserts a query and populates its ID and timestamps.
// An empty frequency defaults to weekly.
func (s *SQLite) CreateQuery(ctx context.Context, q *model.Query) error {
	q.Term = strings.TrimSpace(q.Term)
	if q.Term == "" {
		return errors.New("search term must not be empty")
	}
	q.Frequency = strings.TrimSpace(q.Frequency)
	if q.Frequency == "" {
		q.Frequency = defaultFrequency
	}
	q.Patterns = q.Patterns.Clean()
	now := s.stamp()
	q.CreatedAt, q.UpdatedAt, q.LastRun = now, now, nil

	res, err := s.db.NamedExecContext(ctx,
		`INSERT INTO search_queries (
			term, frequency,
			exclude_shows, exclude_title_keywords, exclude_description_keywords,
			include_shows, include_title_keywords, include_description_keywords,
			created_at, updated_at
		) VALUES (
			:term, :frequency,
			:exclude_shows, :exclude_title_keywords, :exclude_description_keywords,
			:include_shows, :include_title_keywords, :include_description_keywords,
			:created_at, :updated_at
		)`,
		newQueryRow(q),
	)
	if err != nil {
		return fmt.Errorf("insert query: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	q.ID = id
	return nil
}

// GetQuery returns a single query by its ID.
func (s *SQLite) GetQuery(ctx context.Context, id int64) (*model.Query, error) {
	var row queryRow
	if err := s.db.GetContext(ctx, &row, querySelect+` WHERE id = ?`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get query: %w", err)
	}
	q := row.toModel()
	return &q, nil
}

// FindQueryByTerm returns the first query whose term equals term, ignoring case.
func (s *SQLite) FindQueryByTerm(ctx context.Context, term string) (*model.Query, error) {
	term = strings.TrimSpace(term)
	var row queryRow
	err := s.db.GetContext(ctx, &row, querySelect+` WHERE lower(term) = lower(?) ORDER BY id LIMIT 1`, term)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("query %q: %w", term, ErrNotFound)
		}
		return nil, fmt.Errorf("find query: %w", err)
	}
	q := row.toModel()
	return &q, nil
}

// ListQueries returns all queries ordered by ID.
func (s *SQLite) ListQueries(ctx context.Context) ([]model.Query, error) {
	var rows []queryRow
	if err := s.db.SelectContext(ctx, &rows, querySelect+` ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	queries := make([]model.Query, 0, len(rows))
	for _, r := range rows {
		queries = append(queries, r.toModel())
	}
	return queries, nil
}

// ListDueQueries returns the scheduled queries that are due at now.
func (s *SQLite) ListDueQueries(ctx context.Context, now time.Time) ([]model.Query, error) {
	all, err := s.ListQueries(ctx)
	if err != nil {
		return nil, err
	}
	var due []model.Query
	for _, q := range all {
		if q.IsDue(now) {
			due = append(due, q)
		}
	}
	return due, nil
}

// UpdateQuery applies patch to the query and refreshes updated_at.
func (s *SQLite) UpdateQuery(ctx context.Context, id int64, patch QueryPatch) (*model.Query, error) {
	q, err := s.GetQuery(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Term != nil {
		term := strings.TrimSpace(*patch.Term)
		if term == "" {
			return nil, errors.New("search term must not be empty")
		}
		q.Term = term
	}
	if patch.Frequency != nil {
		q.Frequency = strings.TrimSpace(*patch.Frequency)
		if q.Frequency == "" {
			q.Frequency = defaultFrequency
		}
	}
	applyList(&q.Patterns.ExcludeShows, patch.ExcludeShows)
	applyList(&q.Patterns.ExcludeTitles, patch.ExcludeTitles)
	applyList(&q.Patterns.ExcludeDescriptions, patch.ExcludeDescriptions)
	applyList(&q.Patterns.IncludeShows, patch.IncludeShows)
	applyList(&q.Patterns.IncludeTitles, patch.IncludeTitles)
	applyList(&q.Patterns.IncludeDescriptions, patch.IncludeDescriptions)
	q.UpdatedAt = s.stamp()

	_, err = s.db.NamedExecContext(ctx,
		`UPDATE search_queries SET
			term = :term, frequency = :frequency,
			exclude_shows = :exclude_shows,
			exclude_title_keywords = :exclude_title_keywords,
			exclude_description_keywords = :exclude_description_keywords,
			include_shows = :include_shows,
			include_title_keywords = :include_title_keywords,
			include_description_keywords = :include_description_keywords,
			updated_at = :updated_at
		 WHERE id = :id`,
		newQueryRow(q),
	)
	if err != nil {
		return nil, fmt.Errorf("update query: %w", err)
	}
	return q, nil
}

func applyList(dst *[]string, src *[]string) {
	if src != nil {
		*dst = model.CleanPatterns(*src)
	}
}

// DeleteQuery removes a query together with its episodes and runs.
func (s *SQLite) DeleteQuery(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM episodes WHERE query_id = ?`, id); err != nil {
		return fmt.Errorf("delete episodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM search_runs WHERE query_id = ?`, id); err != nil {
		return fmt.Errorf("delete runs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM search_queries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete query: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("query %d: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

// InTx runs fn inside a transaction.
func (s *SQLite) InTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *SQLite) stamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

// parseTime accepts the storage layout and RFC 3339 values written by other tools.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	t, _ := time.Parse("2006-01-02T15:04:05", s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
