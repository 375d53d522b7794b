// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package dedup marks records that repeat an earlier record of another
// provider in the same search. Nothing is removed: a duplicate keeps its
// place and carries DuplicateOf so mixers can hide it.
package dedup

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/pdiddy/metasearch/pkg/types"
)

// Deduper compares records by an exact key field and by term-frequency
// similarity over the configured fields.
type Deduper struct {
	cfg     types.DedupConfig
	markers []string
	logger  *slog.Logger
}

// Option configures a Deduper.
type Option func(*Deduper)

// WithLogger sets the deduper logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Deduper) { d.logger = l }
}

// WithMarkers lists highlight markers to strip before comparing.
func WithMarkers(markers ...string) Option {
	return func(d *Deduper) { d.markers = markers }
}

// New returns a Deduper for cfg. A zero threshold disables fuzzy matching.
func New(cfg types.DedupConfig, opts ...Option) *Deduper {
	d := &Deduper{cfg: cfg, logger: slog.Default()}
	for _, o := range opts {
		o(d)
	}
	d.logger = d.logger.With("component", "dedup")
	return d
}

// RecordRef identifies a record as "<result id>#<rank>".
func RecordRef(res *types.Result, r *types.Record) string {
	return fmt.Sprintf("%s#%d", res.ID, r.Rank)
}

type seen struct {
	result int
	ref    string
	vec    map[string]float64
	norm   float64
}

// Mark walks results in the given (provider priority) order and sets
// DuplicateOf on every record matching an earlier record of a different
// Result. Previous marks are recomputed, so Mark is idempotent. It returns
// the number of duplicates.
func (d *Deduper) Mark(results []*types.Result) int {
	keys := make(map[string]seen)
	var kept []seen
	dups := 0

	for ri, res := range results {
		for i := range res.Records {
			rec := &res.Records[i]
			rec.DuplicateOf = ""
			ref := RecordRef(res, rec)

			key := d.key(rec)
			if key != "" {
				if s, ok := keys[key]; ok && s.result != ri {
					rec.DuplicateOf = s.ref
					dups++
					continue
				}
			}

			cur := seen{result: ri, ref: ref}
			if d.cfg.Threshold > 0 {
				cur.vec, cur.norm = termVector(d.similarityText(rec))
				if match := d.similar(cur, kept); match != "" {
					rec.DuplicateOf = match
					dups++
					continue
				}
			}

			if key != "" {
				if _, ok := keys[key]; !ok {
					keys[key] = cur
				}
			}
			kept = append(kept, cur)
		}
	}
	if dups > 0 {
		d.logger.Debug("marked duplicates", "count", dups)
	}
	return dups
}

func (d *Deduper) similar(cur seen, kept []seen) string {
	if cur.norm == 0 {
		return ""
	}
	for _, s := range kept {
		if s.result == cur.result || s.norm == 0 {
			continue
		}
		if dot(cur.vec, s.vec)/(cur.norm*s.norm) >= d.cfg.Threshold {
			return s.ref
		}
	}
	return ""
}

// key normalizes the key field: markers stripped, lowercase, trailing
// slash trimmed.
func (d *Deduper) key(r *types.Record) string {
	if d.cfg.KeyField == "" {
		return ""
	}
	v := strings.ToLower(strings.TrimSpace(d.strip(r.Field(d.cfg.KeyField))))
	return strings.TrimRight(v, "/")
}

func (d *Deduper) similarityText(r *types.Record) string {
	parts := make([]string, 0, len(d.cfg.SimilarityFields))
	for _, f := range d.cfg.SimilarityFields {
		parts = append(parts, d.strip(r.Field(f)))
	}
	return strings.Join(parts, " ")
}

func (d *Deduper) strip(s string) string {
	for _, m := range d.markers {
		if m != "" {
			s = strings.ReplaceAll(s, m, "")
		}
	}
	return s
}

func termVector(text string) (map[string]float64, float64) {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		return nil, 0
	}
	vec := make(map[string]float64, len(words))
	for _, w := range words {
		vec[w]++
	}
	var sq float64
	for _, v := range vec {
		sq += v * v
	}
	return vec, math.Sqrt(sq)
}

func dot(a, b map[string]float64) float64 {
	if len(b) < len(a) {
		a, b = b, a
	}
	var s float64
	for k, v := range a {
		s += v * b[k]
	}
	return s
}
