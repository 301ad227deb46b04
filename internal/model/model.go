// Package model defines the domain types used across the application.
package model

import "time"

// Query is a stored catalog search definition.
type Query struct {
	ID        int64
	Term      string
	Frequency string
	Patterns  Patterns
	CreatedAt time.Time
	UpdatedAt time.Time
	LastRun   *time.Time
}

// NextRunDue returns when the query is next due to run based on its frequency.
// It returns nil for queries that never ran or have a manual schedule.
func (q Query) NextRunDue() *time.Time {
	if q.LastRun == nil {
		return nil
	}
	d, ok := ParseFrequency(q.Frequency)
	if !ok {
		return nil
	}
	next := q.LastRun.Add(d)
	return &next
}

// IsDue reports whether a scheduled query should run at now.
// Manual queries are never due.
func (q Query) IsDue(now time.Time) bool {
	if _, ok := ParseFrequency(q.Frequency); !ok {
		return false
	}
	next := q.NextRunDue()
	return next == nil || !next.After(now)
}

// Patterns holds the raw include/exclude pattern lists of a query.
type Patterns struct {
	ExcludeShows        []string
	ExcludeTitles       []string
	ExcludeDescriptions []string
	IncludeShows        []string
	IncludeTitles       []string
	IncludeDescriptions []string
}

// Clean returns a copy with every list trimmed, empties dropped and nil lists
// replaced by empty ones.
func (p Patterns) Clean() Patterns {
	return Patterns{
		ExcludeShows:        CleanPatterns(p.ExcludeShows),
		ExcludeTitles:       CleanPatterns(p.ExcludeTitles),
		ExcludeDescriptions: CleanPatterns(p.ExcludeDescriptions),
		IncludeShows:        CleanPatterns(p.IncludeShows),
		IncludeTitles:       CleanPatterns(p.IncludeTitles),
		IncludeDescriptions: CleanPatterns(p.IncludeDescriptions),
	}
}

// Episode is a catalog item as returned by a provider.
type Episode struct {
	ExternalID  string
	Name        string
	ShowName    string
	ReleaseDate string
	Description string
	ExternalURL string
	URI         string
	DurationMS  *int64
	// Raw is the provider payload the episode was extracted from.
	Raw []byte
}

// FormattedReleaseDate returns the release date or "Unknown".
func (e Episode) FormattedReleaseDate() string {
	if e.ReleaseDate == "" {
		return "Unknown"
	}
	return e.ReleaseDate
}

// Link returns the canonical link, falling back to the URI.
func (e Episode) Link() string {
	if e.ExternalURL != "" {
		return e.ExternalURL
	}
	return e.URI
}

// StoredEpisode is an episode persisted for one query.
type StoredEpisode struct {
	ID      int64
	QueryID int64
	Episode
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Run records one execution of a query.
type Run struct {
	ID        int64
	QueryID   int64
	RunAt     time.Time
	NewCount  int
	Processed int
	// Term is populated by listings joined with the owning query.
	Term string
}
