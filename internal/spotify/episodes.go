package spotify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"podfinder/internal/catalog"
	"podfinder/internal/model"
)

type searchResponse struct {
	Episodes *struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
	} `json:"episodes"`
}

type episodesResponse struct {
	Episodes []json.RawMessage `json:"episodes"`
}

type episodeObject struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	ReleaseDate  string `json:"release_date"`
	DurationMS   *int64 `json:"duration_ms"`
	URI          string `json:"uri"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	Show *struct {
		Name string `json:"name"`
	} `json:"show"`
}

// ExtractEpisode maps a raw episode object to the domain type. Missing fields
// become empty strings; the show name is empty when the object has no show.
func ExtractEpisode(raw []byte) (model.Episode, error) {
	var obj episodeObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return model.Episode{}, fmt.Errorf("decode episode: %w", err)
	}
	ep := model.Episode{
		ExternalID:  obj.ID,
		Name:        obj.Name,
		ReleaseDate: obj.ReleaseDate,
		Description: obj.Description,
		ExternalURL: obj.ExternalURLs.Spotify,
		URI:         obj.URI,
		DurationMS:  obj.DurationMS,
		Raw:         append([]byte(nil), raw...),
	}
	if obj.Show != nil {
		ep.ShowName = obj.Show.Name
	}
	return ep, nil
}

// SearchEpisodes walks the search endpoint with offset paging. It stops when
// the response has no episodes object, a page is empty, the offset reaches the
// reported total or MaxPages pages were fetched.
func (c *Client) SearchEpisodes(ctx context.Context, term string, opts catalog.SearchOptions) iter.Seq2[model.Episode, error] {
	return func(yield func(model.Episode, error) bool) {
		term = strings.TrimSpace(term)
		if term == "" {
			yield(model.Episode{}, errors.New("search term must not be empty"))
			return
		}

		limit := clampPageSize(opts.PageSize)
		offset, pages := 0, 0
		for {
			params := url.Values{}
			params.Set("q", term)
			params.Set("type", "episode")
			params.Set("limit", strconv.Itoa(limit))
			params.Set("offset", strconv.Itoa(offset))
			if opts.Market != "" {
				params.Set("market", opts.Market)
			}

			var resp searchResponse
			if err := c.getJSON(ctx, endpointSearch, params, &resp); err != nil {
				yield(model.Episode{}, err)
				return
			}
			if resp.Episodes == nil {
				return
			}

			items := resp.Episodes.Items
			c.log.Debug("fetched search page", "term", term, "offset", offset, "items", len(items), "total", resp.Episodes.Total)
			for _, raw := range items {
				if isNull(raw) {
					continue
				}
				ep, err := ExtractEpisode(raw)
				if err != nil {
					yield(model.Episode{}, &catalog.APIError{Endpoint: endpointSearch, Err: err})
					return
				}
				if !yield(ep, nil) {
					return
				}
			}

			offset += len(items)
			pages++
			if len(items) == 0 || offset >= resp.Episodes.Total {
				return
			}
			if opts.MaxPages > 0 && pages >= opts.MaxPages {
				return
			}
		}
	}
}

// GetEpisodes resolves ids in batches of MaxBatchSize. Entries the API
// returns as null are dropped, so the result may be shorter than ids.
func (c *Client) GetEpisodes(ctx context.Context, ids []string, market string) ([]model.Episode, error) {
	ids = uniqueIDs(ids)
	out := make([]model.Episode, 0, len(ids))
	for start := 0; start < len(ids); start += MaxBatchSize {
		end := min(start+MaxBatchSize, len(ids))

		params := url.Values{}
		params.Set("ids", strings.Join(ids[start:end], ","))
		if market != "" {
			params.Set("market", market)
		}

		var resp episodesResponse
		if err := c.getJSON(ctx, endpointEpisodes, params, &resp); err != nil {
			return nil, err
		}
		for _, raw := range resp.Episodes {
			if isNull(raw) {
				continue
			}
			ep, err := ExtractEpisode(raw)
			if err != nil {
				return nil, &catalog.APIError{Endpoint: endpointEpisodes, Err: err}
			}
			out = append(out, ep)
		}
	}
	return out, nil
}

// clampPageSize treats n <= 0 as unset and returns MaxPageSize.
func clampPageSize(n int) int {
	if n <= 0 || n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
