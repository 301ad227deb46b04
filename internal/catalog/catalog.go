// Package catalog defines the contracts between the sync engine and the
// episode providers it can search.
package catalog

import (
	"context"
	"iter"

	"podfinder/internal/model"
)

// SearchOptions parameterises one paginated search.
type SearchOptions struct {
	// Market is an optional region qualifier.
	Market string
	// PageSize is clamped to the provider's maximum. Zero or a negative
	// value selects that maximum.
	PageSize int
	// MaxPages stops the walk after that many pages; zero means no cap.
	MaxPages int
}

// Searcher walks a provider's search endpoint page by page.
//
// The returned sequence is lazy and one-pass. It yields each search hit in
// provider order and stops after the first error, which is yielded with a
// zero Episode.
type Searcher interface {
	SearchEpisodes(ctx context.Context, term string, opts SearchOptions) iter.Seq2[model.Episode, error]
}

// DetailFetcher resolves episode identifiers to fully populated episodes.
// Identifiers the provider reports as unavailable are dropped.
type DetailFetcher interface {
	GetEpisodes(ctx context.Context, ids []string, market string) ([]model.Episode, error)
}

// Provider is a catalog that can both search and resolve details.
type Provider interface {
	Searcher
	DetailFetcher
}

// Collect drains a search sequence into a slice.
func Collect(seq iter.Seq2[model.Episode, error]) ([]model.Episode, error) {
	var out []model.Episode
	for ep, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, nil
}
