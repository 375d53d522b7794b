// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevancy

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/metasearch/internal/embed"
	"github.com/pdiddy/metasearch/pkg/types"
)

// Diagnostic markers recorded in Explain.Boosts.
const (
	MarkerBlankEmbedding = "X_BLANK_EMBEDDING"
	MarkerCosineNaN      = "X_COSINE_NAN"
	MarkerWeightZero     = "X_WEIGHT_0"
	MarkerEmbeddingError = "X_EMBEDDING_ERROR"
)

// neutralSimilarity stands in for a similarity that cannot be computed.
const neutralSimilarity = 0.5

var cosineWeights = []struct {
	field  string
	weight float64
}{
	{"title", 3.0},
	{"body", 1.0},
	{"author", 2.0},
}

// Cosine scores a record by the weighted embedding similarity between the
// query and each field containing a query term, plus the largest of the
// term, phrase and all-terms boosts. Scores are clamped to [0, 1].
type Cosine struct {
	hl          Highlighter
	embedder    embed.Embedder
	maxField    int
	concurrency int
	logger      *slog.Logger
}

func newCosine(cfg types.RelevancyConfig, e embed.Embedder, o options) Processor {
	return &Cosine{
		hl:          NewHighlighter(cfg),
		embedder:    e,
		maxField:    cfg.MaxFieldLen,
		concurrency: o.concurrency,
		logger:      o.logger,
	}
}

func (p *Cosine) Name() string { return "cosine" }

// Process accepts POST_RESULT_PROCESSING and RESCORING. When rescoring,
// fields are not highlighted again.
func (p *Cosine) Process(ctx context.Context, status types.SearchStatus, query string, results []*types.Result) (int, error) {
	if status != types.StatusPostResultProcessing && status != types.StatusRescoring {
		p.logger.Warn("skipping search", "status", status, "requires", types.StatusPostResultProcessing)
		return 0, nil
	}

	q := scoringQuery{
		raw:       strings.Fields(strings.TrimSpace(query)),
		terms:     Terms(query),
		rescoring: status == types.StatusRescoring,
	}
	q.vec, q.err = p.embedder.Embed(ctx, cleanAlphanumeric(query))
	if q.err != nil {
		p.logger.Error("query embedding failed", "err", q.err)
	}

	g, gctx := errgroup.WithContext(ctx)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}
	updated := 0
	for _, res := range results {
		for i := range res.Records {
			rec := &res.Records[i]
			updated++
			g.Go(func() error {
				p.score(gctx, rec, q)
				return nil
			})
		}
	}
	g.Wait()
	if err := ctx.Err(); err != nil {
		return updated, err
	}
	return updated, nil
}

type scoringQuery struct {
	raw       []string
	terms     []string
	rescoring bool
	vec       []float32
	err       error
}

func (p *Cosine) score(ctx context.Context, r *types.Record, q scoringQuery) {
	var boosts []string
	matches := make(map[string][]string)
	bigrams := make(map[string]int)
	sims := make(map[string]float64)
	var highlights []string

	for _, fw := range cosineWeights {
		text := r.Field(fw.field)
		if text == "" {
			continue
		}
		if !q.rescoring {
			text = p.hl.Highlight(text, q.terms)
			r.SetField(fw.field, text)
		}

		plain := strings.ToLower(p.hl.Strip(text))
		marked := strings.ToLower(text)
		last := ""
		for _, term := range q.raw {
			tl := strings.ToLower(term)
			if strings.Contains(plain, tl) {
				matches[fw.field] = append(matches[fw.field], term)
			}
			if last != "" && tl != strings.ToLower(last) {
				pair := strings.ToLower(p.hl.Start + last + p.hl.End + " " + p.hl.Start + term + p.hl.End)
				key := last + "_" + term
				if strings.Contains(marked, pair) && !contains(matches[fw.field], key) {
					matches[fw.field] = append(matches[fw.field], key)
					bigrams[fw.field]++
				}
			}
			last = term
		}
		if len(matches[fw.field]) == 0 {
			continue
		}

		sim, marker := p.similarity(ctx, q, text)
		if marker != "" {
			boosts = append(boosts, marker)
		}
		sims[fw.field] = sim
		highlights = append(highlights, truncate(text, p.maxField))
	}

	var total, weight float64
	for _, fw := range cosineWeights {
		if s, ok := sims[fw.field]; ok {
			total += fw.weight * s
			weight += fw.weight
		}
	}
	weighted := neutralSimilarity
	if weight == 0 {
		boosts = append(boosts, MarkerWeightZero)
	} else {
		weighted = round(total/weight, 2)
	}

	queryLen := float64(len(q.raw))
	var termMatch, phraseMatch, allTerms int
	for field, hits := range matches {
		phrases := bigrams[field]
		termsField := len(hits) - phrases
		termMatch += termsField
		phraseMatch += phrases
		if termsField == len(q.raw) && len(q.raw) > 1 {
			allTerms++
		}
	}

	var termBoost, phraseBoost, allTermsBoost float64
	if queryLen > 0 {
		// A single term hit in a single field earns no term boost.
		if termMatch != 1 {
			termBoost = round(float64(termMatch)*0.1/queryLen, 2)
		}
		phraseBoost = round(float64(phraseMatch)*0.2/queryLen, 2)
		allTermsBoost = round(float64(allTerms)*0.1*queryLen, 2)
	}
	if termBoost > 0 {
		boosts = append(boosts, "term_match "+formatBoost(termBoost))
	}
	if phraseBoost > 0 {
		boosts = append(boosts, "phrase_match "+formatBoost(phraseBoost))
	}
	if allTermsBoost > 0 {
		boosts = append(boosts, "all_terms "+formatBoost(allTermsBoost))
	}

	score := round(weighted+math.Max(termBoost, math.Max(phraseBoost, allTermsBoost)), 2)
	r.Score = math.Min(1.0, math.Max(0.0, score))
	r.Explain = &types.Explain{Matches: matches, Similarity: weighted, Boosts: boosts}
	r.Highlights = highlights
}

// similarity embeds the field and compares it with the query vector,
// returning a neutral value and a diagnostic marker when that is impossible.
func (p *Cosine) similarity(ctx context.Context, q scoringQuery, text string) (float64, string) {
	if q.err != nil {
		return neutralSimilarity, MarkerEmbeddingError
	}
	vec, err := p.embedder.Embed(ctx, cleanAlphanumeric(p.hl.Strip(text)))
	if err != nil {
		p.logger.Warn("field embedding failed", "err", err)
		return neutralSimilarity, MarkerEmbeddingError
	}
	if allZero(vec) || allZero(q.vec) {
		return neutralSimilarity, MarkerBlankEmbedding
	}
	s := CosineSimilarity(q.vec, vec)
	if math.IsNaN(s) {
		return neutralSimilarity, MarkerCosineNaN
	}
	return round(s, 3), ""
}

// CosineSimilarity returns the cosine of the angle between a and b, or NaN
// when it is undefined (different lengths or a zero-length vector).
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.NaN()
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	den := math.Sqrt(na) * math.Sqrt(nb)
	if den == 0 {
		return math.NaN()
	}
	return dot / den
}

func allZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func formatBoost(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
