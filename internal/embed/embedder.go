// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed provides text embedding backends for relevancy scoring.
package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/metasearch/pkg/types"
)

// Embedder converts text to a vector. Text with no representable content
// may yield an all-zero vector; callers must handle that case.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrUnknownBackend is returned by New for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown embedding backend")

// New builds the embedder named by cfg.Backend, wrapped in an LRU cache
// when cfg.CacheSize is positive.
func New(cfg types.EmbeddingConfig) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch cfg.Backend {
	case "", "hash":
		e = NewHashEmbedder(cfg.Dimensions)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	return e, nil
}
