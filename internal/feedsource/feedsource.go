// Package feedsource implements a catalog backed by podcast RSS feeds.
package feedsource

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/mmcdole/gofeed"

	"podfinder/internal/catalog"
	"podfinder/internal/metrics"
	"podfinder/internal/model"
)

const (
	maxFeedBytes    = 5 * 1024 * 1024
	defaultPageSize = 50
	endpointFeed    = "feed"
)

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Source searches the items of a fixed list of feeds.
type Source struct {
	client HTTPClient
	feeds  []string
	log    *slog.Logger

	mu   sync.Mutex
	seen map[string]model.Episode
}

// New creates a Source over the given feed URLs.
func New(client HTTPClient, feeds []string, log *slog.Logger) *Source {
	return &Source{
		client: client,
		feeds:  feeds,
		log:    log,
		seen:   make(map[string]model.Episode),
	}
}

// Fetch downloads and parses one feed.
func (s *Source) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &catalog.APIError{Endpoint: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", "podfinder/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		metrics.ObserveRequest(endpointFeed, 0)
		return nil, &catalog.APIError{Endpoint: url, Err: fmt.Errorf("http get: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()
	metrics.ObserveRequest(endpointFeed, resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return nil, &catalog.APIError{Endpoint: url, Status: resp.StatusCode, Body: http.StatusText(resp.StatusCode)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
	if err != nil {
		return nil, &catalog.APIError{Endpoint: url, Err: fmt.Errorf("read body: %w", err)}
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &catalog.APIError{Endpoint: url, Err: fmt.Errorf("parse feed: %w", err)}
	}
	return feed, nil
}

// SearchEpisodes yields the items of every feed whose title or description
// contains term, ignoring case. Feeds are fetched one at a time in order and
// the walk stops once MaxPages pages of PageSize items were yielded.
func (s *Source) SearchEpisodes(ctx context.Context, term string, opts catalog.SearchOptions) iter.Seq2[model.Episode, error] {
	return func(yield func(model.Episode, error) bool) {
		needle := strings.ToLower(strings.TrimSpace(term))
		if needle == "" {
			yield(model.Episode{}, fmt.Errorf("search term must not be empty"))
			return
		}

		pageSize := opts.PageSize
		if pageSize <= 0 || pageSize > defaultPageSize {
			pageSize = defaultPageSize
		}
		limit := -1
		if opts.MaxPages > 0 {
			limit = opts.MaxPages * pageSize
		}

		found := make(map[string]model.Episode)
		defer func() {
			s.mu.Lock()
			s.seen = found
			s.mu.Unlock()
		}()

		yielded := 0
		for _, url := range s.feeds {
			feed, err := s.Fetch(ctx, url)
			if err != nil {
				yield(model.Episode{}, err)
				return
			}
			s.log.Debug("fetched feed", "url", url, "items", len(feed.Items))

			for _, item := range feed.Items {
				if !matches(item, needle) {
					continue
				}
				if limit >= 0 && yielded >= limit {
					return
				}
				ep := toEpisode(feed, item)
				found[ep.ExternalID] = ep
				yielded++
				if !yield(ep, nil) {
					return
				}
			}
		}
	}
}

// GetEpisodes resolves ids seen by the most recent search. Unknown ids are dropped.
func (s *Source) GetEpisodes(_ context.Context, ids []string, _ string) ([]model.Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Episode, 0, len(ids))
	for _, id := range ids {
		if ep, ok := s.seen[id]; ok {
			out = append(out, ep)
		}
	}
	return out, nil
}

func matches(item *gofeed.Item, needle string) bool {
	return strings.Contains(strings.ToLower(item.Title), needle) ||
		strings.Contains(strings.ToLower(item.Description), needle)
}

func toEpisode(feed *gofeed.Feed, item *gofeed.Item) model.Episode {
	ep := model.Episode{
		ExternalID:  ItemGUID(item),
		Name:        item.Title,
		ShowName:    feed.Title,
		ReleaseDate: releaseDate(item),
		Description: item.Description,
		ExternalURL: item.Link,
	}
	if len(item.Enclosures) > 0 {
		ep.URI = item.Enclosures[0].URL
	}
	if item.ITunesExt != nil {
		if d, ok := ParseDuration(item.ITunesExt.Duration); ok {
			ms := d.Milliseconds()
			ep.DurationMS = &ms
		}
	}
	if raw, err := json.Marshal(item); err == nil {
		ep.Raw = raw
	}
	return ep
}

func releaseDate(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format("2006-01-02")
	}
	return item.Published
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ParseDuration reads an itunes:duration value given as seconds, MM:SS or HH:MM:SS.
func ParseDuration(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	parts := strings.Split(v, ":")
	if len(parts) > 3 {
		return 0, false
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second, true
}
