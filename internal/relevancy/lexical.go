// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevancy

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pdiddy/metasearch/internal/embed"
	"github.com/pdiddy/metasearch/pkg/types"
)

var lexicalFields = []string{"title", "body", "url", "author"}

// Lexical scores a record by counting highlighted matches: +1 for a field
// with a match, +1 more when the field has two or more, +2 when the field
// is the title. The maximum score is 10.
type Lexical struct {
	hl       Highlighter
	maxField int
	logger   *slog.Logger
}

func newLexical(cfg types.RelevancyConfig, _ embed.Embedder, o options) Processor {
	return &Lexical{hl: NewHighlighter(cfg), maxField: cfg.MaxFieldLen, logger: o.logger}
}

func (p *Lexical) Name() string { return "lexical" }

func (p *Lexical) Process(_ context.Context, status types.SearchStatus, query string, results []*types.Result) (int, error) {
	if status != types.StatusPostResultProcessing {
		p.logger.Warn("skipping search", "status", status, "requires", types.StatusPostResultProcessing)
		return 0, nil
	}

	terms := Terms(query)
	updated := 0
	for _, res := range results {
		for i := range res.Records {
			p.score(&res.Records[i], terms)
			updated++
		}
	}
	return updated, nil
}

func (p *Lexical) score(r *types.Record, terms []string) {
	termSet := make(map[string]bool, len(terms))
	for _, t := range terms {
		termSet[t] = true
	}

	var score float64
	ex := &types.Explain{Matches: map[string][]string{}}
	var highlights []string

	for _, field := range lexicalFields {
		text := r.Field(field)
		if text == "" {
			continue
		}
		text = p.hl.Highlight(text, terms)
		r.SetField(field, text)

		hits := 0
		var matched []string
		for _, frag := range p.hl.Fragments(text) {
			f := strings.ToLower(frag)
			if !termSet[f] {
				continue
			}
			hits++
			if !contains(matched, f) {
				matched = append(matched, f)
			}
		}
		if hits == 0 {
			continue
		}

		score++
		ex.Matches[field] = matched
		if hits >= 2 {
			score++
			ex.Boosts = append(ex.Boosts, "double_match:"+field)
		}
		if field == "title" {
			score += 2
			ex.Boosts = append(ex.Boosts, "title_match")
		}
		highlights = append(highlights, truncate(text, p.maxField))
	}

	r.Score = score
	r.Explain = ex
	r.Highlights = highlights
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
