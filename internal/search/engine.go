// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search drives federated searches through their lifecycle:
// provider selection, concurrent dispatch, aggregation, deduplication,
// relevancy scoring and mixing.
//
// A search moves along
//
//	NEW_SEARCH -> DISPATCHED -> POST_RESULT_PROCESSING -> <MIXER>_READY
//
// with RESCORING and UPDATE_SEARCH re-entering from a ready status. Every
// dispatch bumps the search generation; provider completions from an older
// generation are discarded.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/pdiddy/metasearch/internal/connector"
	"github.com/pdiddy/metasearch/internal/dedup"
	"github.com/pdiddy/metasearch/internal/embed"
	"github.com/pdiddy/metasearch/internal/queue"
	"github.com/pdiddy/metasearch/internal/store"
	"github.com/pdiddy/metasearch/pkg/types"
)

// Store is the persistence collaborator.
type Store interface {
	SaveProvider(ctx context.Context, p *types.Provider) error
	GetProvider(ctx context.Context, id string) (*types.Provider, error)
	ListProviders(ctx context.Context, owner string) ([]*types.Provider, error)
	DeleteProvider(ctx context.Context, id string) error

	CreateSearch(ctx context.Context, s *types.Search) error
	UpdateSearch(ctx context.Context, s *types.Search) error
	GetSearch(ctx context.Context, id string) (*types.Search, error)
	ListSearches(ctx context.Context, f store.SearchFilter) ([]*types.Search, error)
	DeleteSearch(ctx context.Context, id string) error

	ListResults(ctx context.Context, searchID string) ([]*types.Result, error)
	CommitResult(ctx context.Context, r *types.Result) (bool, error)
	ReplaceResults(ctx context.Context, searchID string, results []*types.Result) error
	MarkRead(ctx context.Context, refs []store.RecordRef) (int, error)
}

// SessionSource supplies the session values bound into session credentials
// for a search owner.
type SessionSource interface {
	Session(ctx context.Context, owner string) (map[string]string, error)
}

// Engine owns the worker pool and coordinates searches.
type Engine struct {
	cfg      types.EngineConfig
	store    Store
	queue    queue.Queue
	pool     *ants.Pool
	searches *ants.Pool
	embedder embed.Embedder
	sessions SessionSource
	deduper  *dedup.Deduper
	client   *http.Client
	logger   *slog.Logger

	// baseLogger is handed to collaborators, which add their own component.
	baseLogger *slog.Logger

	mu    sync.Mutex
	locks map[string]*searchLock
}

// searchLock serializes state changes of one search. refs counts the
// holders and waiters; the entry leaves the map when it drops to zero.
type searchLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets the engine logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// WithEmbedder sets the embedding capability used by embedding scorers.
// Default is built from cfg.Embedding.
func WithEmbedder(em embed.Embedder) Option {
	return func(e *Engine) error {
		e.embedder = em
		return nil
	}
}

// WithSessions sets the session source for session-bound credentials.
func WithSessions(s SessionSource) Option {
	return func(e *Engine) error {
		e.sessions = s
		return nil
	}
}

// WithHTTPClient overrides the client connectors use.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) error {
		e.client = c
		return nil
	}
}

// New creates an engine. Call Close to release the worker pool.
func New(cfg types.EngineConfig, st Store, q queue.Queue, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, ErrStoreRequired
	}
	if q == nil {
		return nil, ErrQueueRequired
	}

	size := cfg.Dispatch.PoolSize
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	n := cfg.Dispatch.Searches
	if n < 1 {
		n = 1
	}
	searches, err := ants.NewPool(n)
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("creating search pool: %w", err)
	}

	e := &Engine{
		cfg:      cfg,
		store:    st,
		queue:    q,
		pool:     pool,
		searches: searches,
		logger:   slog.Default(),
		locks:    make(map[string]*searchLock),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			e.Close()
			return nil, err
		}
	}
	e.baseLogger = e.logger
	e.logger = e.logger.With("component", "search")

	if e.embedder == nil {
		em, err := embed.New(cfg.Embedding)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("creating embedder: %w", err)
		}
		e.embedder = em
	}
	e.deduper = dedup.New(cfg.Dedup,
		dedup.WithLogger(e.baseLogger),
		dedup.WithMarkers(cfg.Relevancy.HighlightStart, cfg.Relevancy.HighlightEnd))
	return e, nil
}

// Close releases the worker pools.
func (e *Engine) Close() {
	e.searches.Release()
	e.pool.Release()
}

// Serve consumes the task queue until ctx is done. Up to
// cfg.Dispatch.Searches tasks run at once; the consumer blocks while all
// of them are busy. Serve returns after the running tasks finish.
func (e *Engine) Serve(ctx context.Context) error {
	var wg sync.WaitGroup
	err := e.queue.Consume(ctx, func(ctx context.Context, t queue.Task) error {
		wg.Add(1)
		err := e.searches.Submit(func() {
			defer wg.Done()
			if err := e.Handle(ctx, t); err != nil {
				e.logger.Error("task failed", "search_id", t.SearchID, "kind", t.Kind, "err", err)
			}
		})
		if err != nil {
			wg.Done()
			return fmt.Errorf("submitting task: %w", err)
		}
		return nil
	})
	wg.Wait()
	return err
}

// Handle runs one queued task.
func (e *Engine) Handle(ctx context.Context, t queue.Task) error {
	switch t.Kind {
	case queue.KindRescore:
		return e.runRescore(ctx, t.SearchID)
	default:
		return e.Run(ctx, t.SearchID)
	}
}

// lock returns the held per-search mutex; call the returned func to unlock.
func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &searchLock{}
		e.locks[id] = l
	}
	l.refs++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(e.locks, id)
		}
		e.mu.Unlock()
	}
}

func (e *Engine) connectorOptions() []connector.Option {
	opts := []connector.Option{connector.WithLogger(e.baseLogger)}
	if e.client != nil {
		opts = append(opts, connector.WithClient(e.client))
	}
	return opts
}
