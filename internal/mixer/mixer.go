// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mixer merges the per-provider Results of a search into one
// ranked, paginated view. Mixers only read results; the engine applies the
// mark-read side effect afterwards.
package mixer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/pdiddy/metasearch/pkg/types"
)

// ErrUnknownMixer is returned for an unregistered mixer tag.
var ErrUnknownMixer = errors.New("unknown mixer")

// DefaultPageSize is used when neither the options nor the search request a size.
const DefaultPageSize = 10

// Options select the page to build.
type Options struct {
	// Page is 1-based; values below 1 mean the first page.
	Page int

	// PageSize defaults to the search's ResultsRequested.
	PageSize int

	// Explain keeps score explanations on the returned items.
	Explain bool

	// Provider restricts items to one provider, by ID or name.
	Provider string

	// MarkRead asks the engine to mark the returned items read.
	MarkRead bool
}

// Item is one record of the mixed view with its provenance.
type Item struct {
	types.Record `yaml:",inline"`

	ResultID   string `json:"result_id" yaml:"result_id"`
	ProviderID string `json:"provider_id" yaml:"provider_id"`
	Provider   string `json:"provider" yaml:"provider"`
}

// ProviderInfo summarizes one provider's Result.
type ProviderInfo struct {
	Provider        string             `json:"provider" yaml:"provider"`
	Status          types.ResultStatus `json:"status" yaml:"status"`
	Found           int                `json:"found" yaml:"found"`
	Retrieved       int                `json:"retrieved" yaml:"retrieved"`
	QueryToProvider string             `json:"query_to_provider,omitempty" yaml:"query_to_provider,omitempty"`
	Messages        []string           `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// Page is the externally visible output of a mixer.
type Page struct {
	SearchID       string             `json:"search_id" yaml:"search_id"`
	Query          string             `json:"query" yaml:"query"`
	Mixer          string             `json:"mixer" yaml:"mixer"`
	Status         types.SearchStatus `json:"status" yaml:"status"`
	Page           int                `json:"page" yaml:"page"`
	PageSize       int                `json:"page_size" yaml:"page_size"`
	TotalRetrieved int                `json:"total_retrieved" yaml:"total_retrieved"`
	TotalItems     int                `json:"total_items" yaml:"total_items"`
	Info           []ProviderInfo     `json:"info" yaml:"info"`
	Items          []Item             `json:"items" yaml:"items"`
	Messages       []string           `json:"messages,omitempty" yaml:"messages,omitempty"`
}

// Mixer orders candidate items. Results arrive in provider priority order.
type Mixer interface {
	Name() string
	Mix(s *types.Search, results []*types.Result, opts Options) Page
}

var registry = map[string]func() Mixer{
	"relevancy":   func() Mixer { return relevancyMixer{} },
	"round_robin": func() Mixer { return roundRobinMixer{} },
	"date":        func() Mixer { return dateMixer{} },
}

// Known reports whether name is a registered mixer.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered mixer tags.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the mixer registered under name.
func Lookup(name string) (Mixer, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMixer, name)
	}
	return f(), nil
}

// candidate is an item plus the provider priority used for tie-breaks.
type candidate struct {
	Item
	priority int
}

// gather collects the non-duplicate records of READY results that pass the
// provider filter, and the info block for every result.
func gather(results []*types.Result, opts Options) ([]candidate, []ProviderInfo, int) {
	var cands []candidate
	var info []ProviderInfo
	total := 0
	for prio, res := range results {
		info = append(info, ProviderInfo{
			Provider:        res.ProviderName,
			Status:          res.Status,
			Found:           res.Found,
			Retrieved:       res.Retrieved,
			QueryToProvider: res.QueryToProvider,
			Messages:        res.Messages,
		})
		if res.Status != types.ResultReady {
			continue
		}
		total += res.Retrieved
		if opts.Provider != "" && opts.Provider != res.ProviderID && opts.Provider != res.ProviderName {
			continue
		}
		for _, rec := range res.Records {
			if rec.DuplicateOf != "" {
				continue
			}
			cands = append(cands, candidate{
				Item: Item{
					Record:     rec,
					ResultID:   res.ID,
					ProviderID: res.ProviderID,
					Provider:   res.ProviderName,
				},
				priority: prio,
			})
		}
	}
	return cands, info, total
}

// byScore orders by score descending, then per-provider rank, then
// provider priority.
func byScore(c []candidate) func(i, j int) bool {
	return func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		if c[i].Rank != c[j].Rank {
			return c[i].Rank < c[j].Rank
		}
		return c[i].priority < c[j].priority
	}
}

// paginate builds the page envelope around an ordered candidate list.
func paginate(name string, s *types.Search, ordered []candidate, info []ProviderInfo, total int, opts Options) Page {
	size := opts.PageSize
	if size <= 0 {
		size = s.ResultsRequested
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	page := opts.Page
	if page < 1 {
		page = 1
	}

	p := Page{
		SearchID:       s.ID,
		Query:          s.QueryString,
		Mixer:          name,
		Status:         s.Status,
		Page:           page,
		PageSize:       size,
		TotalRetrieved: total,
		TotalItems:     len(ordered),
		Info:           info,
		Items:          []Item{},
		Messages:       s.Messages,
	}

	start := (page - 1) * size
	if start >= len(ordered) {
		return p
	}
	end := min(start+size, len(ordered))
	for _, c := range ordered[start:end] {
		it := c.Item
		if !opts.Explain {
			it.Explain = nil
		}
		p.Items = append(p.Items, it)
	}
	return p
}

type relevancyMixer struct{}

func (relevancyMixer) Name() string { return "relevancy" }

func (m relevancyMixer) Mix(s *types.Search, results []*types.Result, opts Options) Page {
	cands, info, total := gather(results, opts)
	sort.SliceStable(cands, byScore(cands))
	return paginate(m.Name(), s, cands, info, total, opts)
}

// roundRobinMixer takes one item from each provider in priority order,
// each provider's items ordered by score.
type roundRobinMixer struct{}

func (roundRobinMixer) Name() string { return "round_robin" }

func (m roundRobinMixer) Mix(s *types.Search, results []*types.Result, opts Options) Page {
	cands, info, total := gather(results, opts)

	var queues [][]candidate
	idx := make(map[int]int)
	for _, c := range cands {
		q, ok := idx[c.priority]
		if !ok {
			q = len(queues)
			idx[c.priority] = q
			queues = append(queues, nil)
		}
		queues[q] = append(queues[q], c)
	}
	for _, q := range queues {
		sort.SliceStable(q, byScore(q))
	}

	ordered := make([]candidate, 0, len(cands))
	for round := 0; len(ordered) < len(cands); round++ {
		for _, q := range queues {
			if round < len(q) {
				ordered = append(ordered, q[round])
			}
		}
	}
	return paginate(m.Name(), s, ordered, info, total, opts)
}

// dateMixer orders by date_published descending; undated records follow
// in score order.
type dateMixer struct{}

func (dateMixer) Name() string { return "date" }

func (m dateMixer) Mix(s *types.Search, results []*types.Result, opts Options) Page {
	cands, info, total := gather(results, opts)
	score := byScore(cands)
	sort.SliceStable(cands, func(i, j int) bool {
		di, dj := cands[i].DatePublished, cands[j].DatePublished
		switch {
		case di == "" && dj == "":
			return score(i, j)
		case di == "":
			return false
		case dj == "":
			return true
		case di != dj:
			return di > dj
		}
		return score(i, j)
	})
	return paginate(m.Name(), s, cands, info, total, opts)
}
