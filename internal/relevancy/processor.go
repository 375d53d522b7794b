// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package relevancy scores, highlights and explains provider records
// against the processed query. Strategies are registered by tag:
//
//	lexical  marker-count scoring over title, body, url and author
//	cosine   embedding similarity over title, body and author with match boosts
package relevancy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/pdiddy/metasearch/internal/embed"
	"github.com/pdiddy/metasearch/pkg/types"
)

// ErrUnknownProcessor is returned for an unregistered strategy tag.
var ErrUnknownProcessor = errors.New("unknown relevancy processor")

// Processor scores every record of a search's results in place. It returns
// the number of records updated. A search in a status the processor does
// not accept is skipped with zero updates and no error.
type Processor interface {
	Name() string
	Process(ctx context.Context, status types.SearchStatus, query string, results []*types.Result) (int, error)
}

// Option configures a processor.
type Option func(*options)

type options struct {
	logger      *slog.Logger
	concurrency int
}

// WithLogger sets the processor logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConcurrency bounds concurrent embedding calls (default 8).
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

type factory func(cfg types.RelevancyConfig, e embed.Embedder, o options) Processor

var registry = map[string]factory{
	"lexical": newLexical,
	"cosine":  newCosine,
}

// Known reports whether name is a registered strategy.
func Known(name string) bool {
	_, ok := registry[name]
	return ok
}

// Names returns the registered strategy tags.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the strategy registered under name. The embedder is only used
// by embedding strategies and may be nil for lexical scoring.
func New(name string, cfg types.RelevancyConfig, e embed.Embedder, opts ...Option) (Processor, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcessor, name)
	}
	if name == "cosine" && e == nil {
		return nil, fmt.Errorf("relevancy processor %q requires an embedder", name)
	}
	o := options{logger: slog.Default(), concurrency: 8}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "relevancy", "processor", name)
	return f(cfg, e, o), nil
}

func round(x float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}
