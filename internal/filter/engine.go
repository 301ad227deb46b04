// Package filter implements the episode matching engine.
package filter

import (
	"strings"

	"podfinder/internal/model"
)

// Item is the part of an episode the filters look at.
type Item struct {
	Show        string
	Title       string
	Description string
}

// Reason names the check that rejected an item.
type Reason string

// Rejection reasons, in evaluation order. ReasonNone means accepted.
const (
	ReasonNone               Reason = ""
	ReasonExcludeShow        Reason = "exclude_show"
	ReasonExcludeTitle       Reason = "exclude_title"
	ReasonExcludeDescription Reason = "exclude_description"
	ReasonIncludeShow        Reason = "include_show"
	ReasonIncludeTitle       Reason = "include_title"
	ReasonIncludeDescription Reason = "include_description"
)

// category holds the compiled patterns of one field and direction.
type category struct {
	exact      []Pattern
	globs      []Pattern
	regexes    []Pattern
	configured bool
	substring  bool
}

func newCategory(raw []string, substring bool) category {
	c := category{substring: substring}
	for _, r := range model.CleanPatterns(raw) {
		c.configured = true
		p := Compile(r)
		switch p.Kind {
		case KindExact:
			c.exact = append(c.exact, p)
		case KindGlob:
			c.globs = append(c.globs, p)
		case KindRegex:
			c.regexes = append(c.regexes, p)
		}
	}
	return c
}

// matches tests exact, then glob, then regex patterns.
func (c category) matches(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range c.exact {
		if p.matchExact(lower, c.substring) {
			return true
		}
	}
	for _, p := range c.globs {
		if p.re.MatchString(lower) {
			return true
		}
	}
	for _, p := range c.regexes {
		if p.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Set is the compiled include/exclude rules of one query.
type Set struct {
	excludeShow        category
	excludeTitle       category
	excludeDescription category
	includeShow        category
	includeTitle       category
	includeDescription category
	inert              []Pattern
}

// NewSet compiles the six pattern lists of a query. Show literals match the
// whole name; title and description literals match as substrings.
func NewSet(p model.Patterns) *Set {
	s := &Set{
		excludeShow:        newCategory(p.ExcludeShows, false),
		excludeTitle:       newCategory(p.ExcludeTitles, true),
		excludeDescription: newCategory(p.ExcludeDescriptions, true),
		includeShow:        newCategory(p.IncludeShows, false),
		includeTitle:       newCategory(p.IncludeTitles, true),
		includeDescription: newCategory(p.IncludeDescriptions, true),
	}
	for _, list := range [][]string{
		p.ExcludeShows, p.ExcludeTitles, p.ExcludeDescriptions,
		p.IncludeShows, p.IncludeTitles, p.IncludeDescriptions,
	} {
		for _, r := range model.CleanPatterns(list) {
			if c := Compile(r); c.Kind == KindInert {
				s.inert = append(s.inert, c)
			}
		}
	}
	return s
}

// Inert returns the patterns that failed to compile and never match.
func (s *Set) Inert() []Pattern {
	return s.inert
}

// Evaluate returns ReasonNone when the item passes every exclude check and
// every configured include category, or the first check that rejected it.
func (s *Set) Evaluate(item Item) Reason {
	switch {
	case s.excludeShow.matches(item.Show):
		return ReasonExcludeShow
	case s.excludeTitle.matches(item.Title):
		return ReasonExcludeTitle
	case s.excludeDescription.matches(item.Description):
		return ReasonExcludeDescription
	case s.includeShow.configured && !s.includeShow.matches(item.Show):
		return ReasonIncludeShow
	case s.includeTitle.configured && !s.includeTitle.matches(item.Title):
		return ReasonIncludeTitle
	case s.includeDescription.configured && !s.includeDescription.matches(item.Description):
		return ReasonIncludeDescription
	}
	return ReasonNone
}

// Match reports whether an item passes the filters.
// With no patterns configured every item passes.
func (s *Set) Match(item Item) bool {
	return s.Evaluate(item) == ReasonNone
}
