package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseFrequency(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		want   time.Duration
		wantOK bool
	}{
		{name: "daily", in: "daily", want: 24 * time.Hour, wantOK: true},
		{name: "weekly mixed case", in: " Weekly ", want: 7 * 24 * time.Hour, wantOK: true},
		{name: "biweekly", in: "biweekly", want: 14 * 24 * time.Hour, wantOK: true},
		{name: "monthly", in: "monthly", want: 30 * 24 * time.Hour, wantOK: true},
		{name: "quarterly", in: "quarterly", want: 91 * 24 * time.Hour, wantOK: true},
		{name: "days suffix", in: "14d", want: 14 * 24 * time.Hour, wantOK: true},
		{name: "weeks suffix", in: "3w", want: 21 * 24 * time.Hour, wantOK: true},
		{name: "empty", in: "", wantOK: false},
		{name: "manual", in: "manual", wantOK: false},
		{name: "bare suffix", in: "d", wantOK: false},
		{name: "signed", in: "-3d", wantOK: false},
		{name: "hours unsupported", in: "12h", wantOK: false},
		{name: "zero days", in: "0d", wantOK: false},
		{name: "zero weeks", in: "000w", wantOK: false},
		{name: "century of weeks", in: "5214w", want: 5214 * 7 * 24 * time.Hour, wantOK: true},
		{name: "beyond a century", in: "36501d", wantOK: false},
		{name: "overflowing count", in: "9999999999999d", wantOK: false},
		{name: "beyond int range", in: "99999999999999999999w", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFrequency(tt.in)
			if diff := cmp.Diff(tt.wantOK, ok); diff != "" {
				t.Fatalf("ok mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("duration mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestQueryIsDue(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ago := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tests := []struct {
		name  string
		query Query
		want  bool
	}{
		{name: "never ran", query: Query{Frequency: "weekly"}, want: true},
		{name: "ran recently", query: Query{Frequency: "weekly", LastRun: ago(time.Hour)}, want: false},
		{name: "exactly due", query: Query{Frequency: "daily", LastRun: ago(24 * time.Hour)}, want: true},
		{name: "overdue", query: Query{Frequency: "2d", LastRun: ago(72 * time.Hour)}, want: true},
		{name: "manual never due", query: Query{Frequency: "manual"}, want: false},
		{name: "zero interval never due", query: Query{Frequency: "0d", LastRun: ago(time.Hour)}, want: false},
		{name: "huge interval never due", query: Query{Frequency: "9999999999999d", LastRun: ago(time.Hour)}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.query.IsDue(now)); diff != "" {
				t.Errorf("IsDue mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNextRunDue(t *testing.T) {
	last := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	q := Query{Frequency: "weekly", LastRun: &last}

	got := q.NextRunDue()
	if got == nil {
		t.Fatal("expected next run time")
	}
	if diff := cmp.Diff(last.Add(7*24*time.Hour), *got); diff != "" {
		t.Errorf("NextRunDue mismatch (-want +got):\n%s", diff)
	}

	q.Frequency = "whenever"
	if q.NextRunDue() != nil {
		t.Error("expected nil for manual schedule")
	}
}

func TestParsePatternList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: []string{}},
		{name: "json array", in: `["  a ", "", "b"]`, want: []string{"a", "b"}},
		{name: "json array with numbers", in: `["x", 42, null]`, want: []string{"x", "42"}},
		{name: "json string", in: `" solo "`, want: []string{"solo"}},
		{name: "blank json string", in: `"  "`, want: []string{}},
		{name: "json object ignored", in: `{"a": 1}`, want: []string{}},
		{name: "comma separated legacy", in: "one, two ,,three", want: []string{"one", "two", "three"}},
		{name: "single legacy word", in: "bonus", want: []string{"bonus"}},
		{name: "regex survives", in: `["/^Joe Rogan.*$/"]`, want: []string{"/^Joe Rogan.*$/"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePatternList(tt.in)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParsePatternList mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPatternsCleanNeverNil(t *testing.T) {
	got := Patterns{IncludeTitles: []string{" x ", " "}}.Clean()
	want := Patterns{
		ExcludeShows:        []string{},
		ExcludeTitles:       []string{},
		ExcludeDescriptions: []string{},
		IncludeShows:        []string{},
		IncludeTitles:       []string{"x"},
		IncludeDescriptions: []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Clean mismatch (-want +got):\n%s", diff)
	}
}

func TestEpisodeLink(t *testing.T) {
	e := Episode{URI: "spotify:episode:1"}
	if diff := cmp.Diff("spotify:episode:1", e.Link()); diff != "" {
		t.Errorf("Link mismatch (-want +got):\n%s", diff)
	}
	e.ExternalURL = "https://open.spotify.com/episode/1"
	if diff := cmp.Diff("https://open.spotify.com/episode/1", e.Link()); diff != "" {
		t.Errorf("Link mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("Unknown", e.FormattedReleaseDate()); diff != "" {
		t.Errorf("FormattedReleaseDate mismatch (-want +got):\n%s", diff)
	}
}
