package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"podfinder/internal/model"
)

var ignoreQueryTS = cmpopts.IgnoreFields(model.Query{}, "CreatedAt", "UpdatedAt", "LastRun")

var baseTime = time.Date(2024, 3, 10, 9, 30, 0, 0, time.UTC)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	s.SetClock(func() time.Time { return baseTime })
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createQuery(t *testing.T, s *SQLite, q model.Query) model.Query {
	t.Helper()
	if err := s.CreateQuery(context.Background(), &q); err != nil {
		t.Fatalf("create query: %v", err)
	}
	return q
}

func emptyPatterns() model.Patterns {
	return model.Patterns{}.Clean()
}

func TestQueryCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	tests := []struct {
		name  string
		query model.Query
		want  model.Query
	}{
		{
			name:  "defaults",
			query: model.Query{Term: "  Jane Doe  "},
			want:  model.Query{Term: "Jane Doe", Frequency: "weekly", Patterns: emptyPatterns()},
		},
		{
			name: "patterns cleaned",
			query: model.Query{
				Term:      "history",
				Frequency: " daily ",
				Patterns: model.Patterns{
					ExcludeTitles: []string{" *bonus* ", ""},
					IncludeShows:  []string{"Lex Fridman Podcast"},
				},
			},
			want: model.Query{
				Term:      "history",
				Frequency: "daily",
				Patterns: model.Patterns{
					ExcludeShows:        []string{},
					ExcludeTitles:       []string{"*bonus*"},
					ExcludeDescriptions: []string{},
					IncludeShows:        []string{"Lex Fridman Podcast"},
					IncludeTitles:       []string{},
					IncludeDescriptions: []string{},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := createQuery(t, s, tt.query)
			if q.ID == 0 {
				t.Fatal("expected non-zero ID")
			}

			got, err := s.GetQuery(ctx, q.ID)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			want := tt.want
			want.ID = q.ID
			if diff := cmp.Diff(want, *got, ignoreQueryTS); diff != "" {
				t.Errorf("GetQuery mismatch (-want +got):\n%s", diff)
			}
			if !got.CreatedAt.Equal(baseTime) || !got.UpdatedAt.Equal(baseTime) {
				t.Errorf("timestamps = %v/%v, want %v", got.CreatedAt, got.UpdatedAt, baseTime)
			}
			if got.LastRun != nil {
				t.Errorf("LastRun = %v, want nil", got.LastRun)
			}
		})
	}
}

func TestCreateQueryRejectsEmptyTerm(t *testing.T) {
	s := newTestDB(t)
	q := model.Query{Term: "   "}
	if err := s.CreateQuery(context.Background(), &q); err == nil {
		t.Fatal("expected error for empty term")
	}
}

func TestGetQueryNotFound(t *testing.T) {
	s := newTestDB(t)
	_, err := s.GetQuery(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestFindQueryByTerm(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{Term: "Jane Doe"})

	tests := []struct {
		term    string
		wantErr error
	}{
		{term: "jane doe"},
		{term: " JANE DOE "},
		{term: "john", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, err := s.FindQueryByTerm(ctx, tt.term)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			if got.ID != q.ID {
				t.Errorf("ID = %d, want %d", got.ID, q.ID)
			}
		})
	}
}

func TestUpdateQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{
		Term:     "history",
		Patterns: model.Patterns{ExcludeShows: []string{"Old Show"}, IncludeTitles: []string{"war"}},
	})

	later := baseTime.Add(time.Hour)
	s.SetClock(func() time.Time { return later })

	freq := "monthly"
	titles := []string{" *bonus* ", ""}
	got, err := s.UpdateQuery(ctx, q.ID, QueryPatch{Frequency: &freq, ExcludeTitles: &titles})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := model.Query{
		ID:        q.ID,
		Term:      "history",
		Frequency: "monthly",
		Patterns: model.Patterns{
			ExcludeShows:        []string{"Old Show"},
			ExcludeTitles:       []string{"*bonus*"},
			ExcludeDescriptions: []string{},
			IncludeShows:        []string{},
			IncludeTitles:       []string{"war"},
			IncludeDescriptions: []string{},
		},
	}
	if diff := cmp.Diff(want, *got, ignoreQueryTS); diff != "" {
		t.Errorf("UpdateQuery result mismatch (-want +got):\n%s", diff)
	}

	stored, err := s.GetQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if diff := cmp.Diff(want, *stored, ignoreQueryTS); diff != "" {
		t.Errorf("stored query mismatch (-want +got):\n%s", diff)
	}
	if !stored.UpdatedAt.Equal(later) || !stored.CreatedAt.Equal(baseTime) {
		t.Errorf("timestamps created=%v updated=%v", stored.CreatedAt, stored.UpdatedAt)
	}

	empty := ""
	if _, err := s.UpdateQuery(ctx, q.ID, QueryPatch{Term: &empty}); err == nil {
		t.Error("expected error for empty term")
	}
	if _, err := s.UpdateQuery(ctx, 999, QueryPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestLegacyPatternColumns(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{Term: "legacy"})

	_, err := s.db.ExecContext(ctx,
		`UPDATE search_queries SET exclude_shows = ?, exclude_title_keywords = ?, include_shows = ? WHERE id = ?`,
		"Show A, Show B", `"single"`, `{"not":"a list"}`, q.ID)
	if err != nil {
		t.Fatalf("raw update: %v", err)
	}

	got, err := s.GetQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := model.Patterns{
		ExcludeShows:        []string{"Show A", "Show B"},
		ExcludeTitles:       []string{"single"},
		ExcludeDescriptions: []string{},
		IncludeShows:        []string{},
		IncludeTitles:       []string{},
		IncludeDescriptions: []string{},
	}
	if diff := cmp.Diff(want, got.Patterns); diff != "" {
		t.Errorf("patterns mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteQueryCascade(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{Term: "doomed"})
	other := createQuery(t, s, model.Query{Term: "survivor"})

	err := s.InTx(ctx, func(tx Tx) error {
		for _, id := range []int64{q.ID, other.ID} {
			if err := tx.InsertEpisode(ctx, id, model.Episode{ExternalID: "e1", Name: "Ep"}, baseTime); err != nil {
				return err
			}
			if err := tx.InsertRun(ctx, &model.Run{QueryID: id, RunAt: baseTime, NewCount: 1, Processed: 1}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	if err := s.DeleteQuery(ctx, q.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.GetQuery(ctx, q.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("get deleted query: %v", err)
	}
	if n, _ := s.CountEpisodes(ctx, q.ID); n != 0 {
		t.Errorf("episodes left = %d, want 0", n)
	}
	if n, _ := s.CountEpisodes(ctx, other.ID); n != 1 {
		t.Errorf("other query episodes = %d, want 1", n)
	}
	runs, err := s.ListRecentRuns(ctx, 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].QueryID != other.ID {
		t.Errorf("runs = %+v, want only the surviving query's run", runs)
	}

	if err := s.DeleteQuery(ctx, q.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete error = %v, want ErrNotFound", err)
	}
}

func TestEpisodeInsertUpdate(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{Term: "history"})

	dur := int64(3_600_000)
	ep := model.Episode{
		ExternalID:  "e1",
		Name:        "First",
		ShowName:    "Show",
		ReleaseDate: "2024-01-01",
		ExternalURL: "https://example.com/e1",
		DurationMS:  &dur,
		Raw:         []byte(`{"id":"e1"}`),
	}
	if err := s.InTx(ctx, func(tx Tx) error {
		return tx.InsertEpisode(ctx, q.ID, ep, baseTime)
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}

	later := baseTime.Add(24 * time.Hour)
	ep.Name = "Renamed"
	ep.DurationMS = nil
	var found *model.StoredEpisode
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.UpdateEpisode(ctx, q.ID, ep, later); err != nil {
			return err
		}
		var err error
		found, err = tx.FindEpisode(ctx, q.ID, "e1")
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}

	want := model.StoredEpisode{
		ID:      found.ID,
		QueryID: q.ID,
		Episode: model.Episode{
			ExternalID:  "e1",
			Name:        "Renamed",
			ShowName:    "Show",
			ReleaseDate: "2024-01-01",
			ExternalURL: "https://example.com/e1",
			Raw:         []byte(`{"id":"e1"}`),
		},
		FirstSeenAt: baseTime,
		LastSeenAt:  later,
	}
	if diff := cmp.Diff(want, *found); diff != "" {
		t.Errorf("episode mismatch (-want +got):\n%s", diff)
	}

	err = s.InTx(ctx, func(tx Tx) error {
		_, err := tx.FindEpisode(ctx, q.ID, "missing")
		return err
	})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("find missing error = %v, want ErrNotFound", err)
	}
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{Term: "history"})

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertEpisode(ctx, q.ID, model.Episode{ExternalID: "e1"}, baseTime); err != nil {
			return err
		}
		if err := tx.MarkQueryRun(ctx, q.ID, baseTime); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("error = %v, want boom", err)
	}

	if n, _ := s.CountEpisodes(ctx, q.ID); n != 0 {
		t.Errorf("episodes = %d, want 0", n)
	}
	got, err := s.GetQuery(ctx, q.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.LastRun != nil {
		t.Errorf("LastRun = %v, want nil", got.LastRun)
	}
}

func TestDuplicateEpisodeRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{Term: "history"})

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.InsertEpisode(ctx, q.ID, model.Episode{ExternalID: "e1"}, baseTime); err != nil {
			return err
		}
		return tx.InsertEpisode(ctx, q.ID, model.Episode{ExternalID: "e1"}, baseTime)
	})
	if err == nil {
		t.Fatal("expected unique constraint error")
	}
}

func TestListEpisodesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	q := createQuery(t, s, model.Query{Term: "history"})

	seed := []struct {
		id      string
		release string
		seen    time.Time
	}{
		{id: "a", release: "2024-02-01", seen: baseTime.Add(2 * time.Hour)},
		{id: "b", release: "2023-12-01", seen: baseTime},
		{id: "c", release: "2024-05-01", seen: baseTime.Add(time.Hour)},
	}
	err := s.InTx(ctx, func(tx Tx) error {
		for _, e := range seed {
			if err := tx.InsertEpisode(ctx, q.ID, model.Episode{ExternalID: e.id, ReleaseDate: e.release}, e.seen); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	tests := []struct {
		name string
		opts EpisodeListOptions
		want []string
	}{
		{name: "release ascending", opts: EpisodeListOptions{}, want: []string{"b", "a", "c"}},
		{name: "release descending", opts: EpisodeListOptions{Descending: true}, want: []string{"c", "a", "b"}},
		{name: "first seen", opts: EpisodeListOptions{Order: OrderFirstSeen}, want: []string{"b", "c", "a"}},
		{name: "last seen limited", opts: EpisodeListOptions{Order: OrderLastSeen, Descending: true, Limit: 2}, want: []string{"a", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eps, err := s.ListEpisodes(ctx, q.ID, tt.opts)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var got []string
			for _, e := range eps {
				got = append(got, e.ExternalID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}

	if _, err := s.ListEpisodes(ctx, q.ID, EpisodeListOptions{Order: "random"}); err == nil {
		t.Error("expected error for unknown order")
	}
}

func TestListRecentRuns(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)
	a := createQuery(t, s, model.Query{Term: "alpha"})
	b := createQuery(t, s, model.Query{Term: "beta"})

	err := s.InTx(ctx, func(tx Tx) error {
		runs := []model.Run{
			{QueryID: a.ID, RunAt: baseTime, NewCount: 3, Processed: 3},
			{QueryID: b.ID, RunAt: baseTime.Add(time.Hour), NewCount: 0, Processed: 5},
			{QueryID: a.ID, RunAt: baseTime.Add(2 * time.Hour), NewCount: 1, Processed: 4},
		}
		for i := range runs {
			if err := tx.InsertRun(ctx, &runs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.ListRecentRuns(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []model.Run{
		{QueryID: a.ID, RunAt: baseTime.Add(2 * time.Hour), NewCount: 1, Processed: 4, Term: "alpha"},
		{QueryID: b.ID, RunAt: baseTime.Add(time.Hour), NewCount: 0, Processed: 5, Term: "beta"},
	}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.Run{}, "ID")); diff != "" {
		t.Errorf("runs mismatch (-want +got):\n%s", diff)
	}
}

func TestListDueQueries(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	never := createQuery(t, s, model.Query{Term: "never ran", Frequency: "daily"})
	createQuery(t, s, model.Query{Term: "manual", Frequency: "manual"})
	recent := createQuery(t, s, model.Query{Term: "recent", Frequency: "weekly"})
	stale := createQuery(t, s, model.Query{Term: "stale", Frequency: "daily"})

	err := s.InTx(ctx, func(tx Tx) error {
		if err := tx.MarkQueryRun(ctx, recent.ID, baseTime.Add(-24*time.Hour)); err != nil {
			return err
		}
		return tx.MarkQueryRun(ctx, stale.ID, baseTime.Add(-25*time.Hour))
	})
	if err != nil {
		t.Fatalf("mark runs: %v", err)
	}

	due, err := s.ListDueQueries(ctx, baseTime)
	if err != nil {
		t.Fatalf("list due: %v", err)
	}
	var got []int64
	for _, q := range due {
		got = append(got, q.ID)
	}
	if diff := cmp.Diff([]int64{never.ID, stale.ID}, got); diff != "" {
		t.Errorf("due queries mismatch (-want +got):\n%s", diff)
	}
}
