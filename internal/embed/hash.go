// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"
)

// Token and character trigram weights of the hash embedder.
const (
	tokenWeight = 0.7
	ngramWeight = 0.3
	ngramSize   = 3
)

var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashEmbedder produces deterministic bag-of-words vectors by hashing
// tokens and character trigrams into a fixed number of buckets. It needs
// no network and suits tests and offline deployments.
type HashEmbedder struct {
	dims int
}

// NewHashEmbedder returns a hash embedder with dims dimensions (default 256).
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

// Embed returns a unit vector, or an all-zero vector when text has no tokens.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dims)
	tokens := tokenRE.FindAllString(strings.ToLower(text), -1)
	if len(tokens) == 0 {
		return vec, nil
	}
	for _, tok := range tokens {
		vec[e.bucket(tok)] += tokenWeight
		padded := " " + tok + " "
		for i := 0; i+ngramSize <= len(padded); i++ {
			vec[e.bucket(padded[i:i+ngramSize])] += ngramWeight
		}
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec, nil
}

func (e *HashEmbedder) bucket(s string) int {
	h := fnv.New32a()
	h.Write([]byte(s))
	return int(h.Sum32() % uint32(e.dims))
}
