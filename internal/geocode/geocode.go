// Package geocode is the search collaborator: free-text and reverse lookups
// against one or more ArcGIS geocode servers.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-servicearea/internal/arcgis"
)

// Precedence picks which candidate wins across sources.
type Precedence string

const (
	// First takes the first candidate of the first source that has one.
	First Precedence = "first"
	// Last takes the first candidate of the last source that has one.
	Last Precedence = "last"
)

// Candidate is one point result with a display label.
type Candidate struct {
	Point  orb.Point `json:"point"`
	Label  string    `json:"label"`
	Score  float64   `json:"score,omitempty"`
	Source string    `json:"source,omitempty"`
}

// Source is one geocode server.
type Source struct {
	Name string
	URL  string
}

// Client queries sources in order.
type Client struct {
	Sources    []Source
	Precedence Precedence
	// MaxLocations caps candidates per source for free-text search.
	MaxLocations int

	api *arcgis.Client
}

// New returns a client for the given geocode server URLs.
func New(api *arcgis.Client, urls []string, precedence Precedence) *Client {
	c := &Client{Precedence: precedence, MaxLocations: 5, api: api}
	for i, u := range urls {
		c.Sources = append(c.Sources, Source{Name: fmt.Sprintf("source-%d", i), URL: strings.TrimRight(u, "/")})
	}
	return c
}

type findResponse struct {
	Candidates []struct {
		Address  string  `json:"address"`
		Score    float64 `json:"score"`
		Location struct {
			X float64 `json:"x"`
			Y float64 `json:"y"`
		} `json:"location"`
	} `json:"candidates"`
}

type reverseResponse struct {
	Address struct {
		MatchAddr string `json:"Match_addr"`
		LongLabel string `json:"LongLabel"`
	} `json:"address"`
	Location *struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"location"`
}

// Search runs a free-text query against every source and returns the
// candidates per source, in source order. It fails only if every source fails.
func (c *Client) Search(ctx context.Context, text string) ([][]Candidate, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	return c.each(ctx, func(ctx context.Context, src Source) ([]Candidate, error) {
		params := url.Values{}
		params.Set("SingleLine", text)
		params.Set("outSR", "4326")
		params.Set("maxLocations", strconv.Itoa(c.MaxLocations))
		params.Set("outFields", "Match_addr")

		var resp findResponse
		if err := c.api.Get(ctx, src.URL+"/findAddressCandidates", params, &resp); err != nil {
			return nil, err
		}
		out := make([]Candidate, 0, len(resp.Candidates))
		for _, cand := range resp.Candidates {
			out = append(out, Candidate{
				Point:  orb.Point{cand.Location.X, cand.Location.Y},
				Label:  cand.Address,
				Score:  cand.Score,
				Source: src.Name,
			})
		}
		return out, nil
	})
}

// Reverse looks up the address nearest p in every source.
func (c *Client) Reverse(ctx context.Context, p orb.Point) ([][]Candidate, error) {
	return c.each(ctx, func(ctx context.Context, src Source) ([]Candidate, error) {
		params := url.Values{}
		params.Set("location", strconv.FormatFloat(p.X(), 'f', -1, 64)+","+strconv.FormatFloat(p.Y(), 'f', -1, 64))
		params.Set("outSR", "4326")

		var resp reverseResponse
		err := c.api.Get(ctx, src.URL+"/reverseGeocode", params, &resp)
		var apiErr *arcgis.Error
		if errors.As(err, &apiErr) && apiErr.Code == 400 {
			// "Unable to find address for the specified location."
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if resp.Location == nil {
			return nil, nil
		}
		label := resp.Address.LongLabel
		if label == "" {
			label = resp.Address.MatchAddr
		}
		return []Candidate{{
			Point:  orb.Point{resp.Location.X, resp.Location.Y},
			Label:  label,
			Source: src.Name,
		}}, nil
	})
}

func (c *Client) each(ctx context.Context, query func(context.Context, Source) ([]Candidate, error)) ([][]Candidate, error) {
	results := make([][]Candidate, len(c.Sources))
	var errs []error
	for i, src := range c.Sources {
		cands, err := query(ctx, src)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		results[i] = cands
	}
	if len(c.Sources) > 0 && len(errs) == len(c.Sources) {
		return nil, errors.Join(errs...)
	}
	return results, nil
}

// Find searches and selects one candidate by the client's precedence.
func (c *Client) Find(ctx context.Context, text string) (*Candidate, error) {
	results, err := c.Search(ctx, text)
	if err != nil {
		return nil, err
	}
	return Select(results, c.Precedence), nil
}

// FindNearest reverse-geocodes and selects one candidate by precedence.
func (c *Client) FindNearest(ctx context.Context, p orb.Point) (*Candidate, error) {
	results, err := c.Reverse(ctx, p)
	if err != nil {
		return nil, err
	}
	return Select(results, c.Precedence), nil
}

// Select returns the first candidate of the first (or last) source with a
// non-empty result, or nil when every source came back empty.
func Select(perSource [][]Candidate, precedence Precedence) *Candidate {
	if precedence == Last {
		for i := len(perSource) - 1; i >= 0; i-- {
			if len(perSource[i]) > 0 {
				c := perSource[i][0]
				return &c
			}
		}
		return nil
	}
	for _, cands := range perSource {
		if len(cands) > 0 {
			c := cands[0]
			return &c
		}
	}
	return nil
}
