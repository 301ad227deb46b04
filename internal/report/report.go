// Package report renders queries, episodes and runs for the command line.
package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"podfinder/internal/model"
	"podfinder/internal/search"
	"podfinder/internal/storage"
)

const dateTimeLayout = "2006-01-02 15:04"

// Style selects between boxed tables and tab-separated text.
type Style int

// Output styles.
const (
	StylePlain Style = iota
	StyleTable
)

// StyleFor returns StyleTable when w is a terminal.
func StyleFor(w io.Writer) Style {
	file, ok := w.(*os.File)
	if !ok {
		return StylePlain
	}
	fd := file.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return StyleTable
	}
	return StylePlain
}

// FormatDateTime formats t in minutes resolution, or "never" when nil.
func FormatDateTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(dateTimeLayout)
}

// FormatEpisode renders one episode on a single line.
func FormatEpisode(ep model.Episode) string {
	show := ep.ShowName
	if show == "" {
		show = "Unknown show"
	}
	parts := []string{
		fmt.Sprintf("%s [%s]", ep.Name, show),
		"Release date: " + ep.FormattedReleaseDate(),
	}
	if link := ep.Link(); link != "" {
		parts = append(parts, "Link: "+link)
	}
	return strings.Join(parts, " | ")
}

// RunSummary describes the outcome of a run. The first run of a query only
// reports how many episodes were indexed.
func RunSummary(s search.Summary) string {
	if s.PreviousCount == 0 {
		return fmt.Sprintf("Found and indexed %d base episodes for your search query: %s\n", s.Processed, s.Term)
	}
	if len(s.NewEpisodes) == 0 {
		return fmt.Sprintf("No new episodes found for '%s'. Processed %d episodes (skipped %d).\n", s.Term, s.Processed, s.Skipped)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d new episodes for '%s':\n", len(s.NewEpisodes), s.Term)
	for _, ep := range s.NewEpisodes {
		fmt.Fprintf(&b, "  - %s\n", FormatEpisode(ep))
	}
	fmt.Fprintf(&b, "Processed %d episodes (skipped %d based on filters).\n", s.Processed, s.Skipped)
	return b.String()
}

// Queries renders the stored queries with their schedule.
func Queries(queries []model.Query, now time.Time, style Style) string {
	if len(queries) == 0 {
		return "No search queries stored. Use 'add-query' to create one.\n"
	}

	headers := []string{"ID", "Search Term", "Frequency", "Last Run", "Next Run Due"}
	rows := make([][]string, 0, len(queries))
	for _, q := range queries {
		rows = append(rows, []string{
			strconv.FormatInt(q.ID, 10),
			truncate(q.Term, 33),
			q.Frequency,
			relative(q.LastRun, now, style),
			nextDue(q, now, style),
		})
	}
	return render(headers, rows, []columnAlignment{alignRight}, style)
}

func nextDue(q model.Query, now time.Time, style Style) string {
	if _, ok := model.ParseFrequency(q.Frequency); !ok {
		return "manual"
	}
	next := q.NextRunDue()
	if next == nil || !next.After(now) {
		return "now"
	}
	return relative(next, now, style)
}

// Episodes renders stored episodes.
func Episodes(eps []model.StoredEpisode, style Style) string {
	if len(eps) == 0 {
		return "No episodes stored for this query yet.\n"
	}

	if style == StylePlain {
		var b strings.Builder
		for _, ep := range eps {
			show := ep.ShowName
			if show == "" {
				show = "Unknown show"
			}
			fmt.Fprintf(&b, "- %s [%s] | Release: %s | Indexed: %s | %s\n",
				ep.Name, show, ep.FormattedReleaseDate(), ep.FirstSeenAt.UTC().Format(time.RFC3339), ep.Link())
		}
		return b.String()
	}

	headers := []string{"Episode", "Show", "Release", "Length", "First Seen", "Link"}
	rows := make([][]string, 0, len(eps))
	for _, ep := range eps {
		rows = append(rows, []string{
			truncate(ep.Name, 48),
			truncate(ep.ShowName, 32),
			ep.FormattedReleaseDate(),
			formatDuration(ep.DurationMS),
			ep.FirstSeenAt.UTC().Format(dateTimeLayout),
			ep.Link(),
		})
	}
	return render(headers, rows, []columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}, style)
}

// Runs renders the run history.
func Runs(runs []model.Run, now time.Time, style Style) string {
	if len(runs) == 0 {
		return "No runs have been recorded yet.\n"
	}

	headers := []string{"ID", "Query", "Run At", "New Episodes", "Processed"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		runAt := r.RunAt
		rows = append(rows, []string{
			strconv.FormatInt(r.ID, 10),
			truncate(r.Term, 33),
			relative(&runAt, now, style),
			strconv.Itoa(r.NewCount),
			strconv.Itoa(r.Processed),
		})
	}
	return render(headers, rows, []columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight}, style)
}

func relative(t *time.Time, now time.Time, style Style) string {
	if t == nil || style == StylePlain {
		return FormatDateTime(t)
	}
	return fmt.Sprintf("%s (%s)", FormatDateTime(t), humanize.RelTime(*t, now, "ago", "from now"))
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return ""
	}
	return (time.Duration(*ms) * time.Millisecond).Round(time.Second).String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// EpisodeOrder parses the --order flag value.
func EpisodeOrder(v string) (storage.EpisodeOrder, error) {
	switch o := storage.EpisodeOrder(strings.ToLower(strings.TrimSpace(v))); o {
	case storage.OrderRelease, storage.OrderFirstSeen, storage.OrderLastSeen:
		return o, nil
	default:
		return "", fmt.Errorf("invalid order %q, use: release, first, last", v)
	}
}
