// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/metasearch/internal/mixer"
	"github.com/pdiddy/metasearch/internal/queue"
	"github.com/pdiddy/metasearch/internal/relevancy"
	"github.com/pdiddy/metasearch/internal/store"
	"github.com/pdiddy/metasearch/pkg/types"
)

// Request describes a new search.
type Request struct {
	Owner string
	Query string

	// Providers lists provider IDs, names or tags. Empty selects by the
	// query's tags and the default providers.
	Providers []string

	Sort             string
	Mixer            string
	Processor        string
	ResultsRequested int
}

// Create validates and stores a new search in NEW_SEARCH and enqueues it.
// Unknown mixer or processor tags are rejected here, not at mix time.
func (e *Engine) Create(ctx context.Context, req Request) (*types.Search, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	s := &types.Search{
		ID:               uuid.NewString(),
		Owner:            req.Owner,
		QueryString:      query,
		Providers:        req.Providers,
		Sort:             req.Sort,
		Mixer:            req.Mixer,
		Processor:        req.Processor,
		ResultsRequested: req.ResultsRequested,
		Status:           types.StatusNewSearch,
	}
	if s.Sort == "" {
		s.Sort = types.SortRelevancy
	}
	if s.Sort != types.SortRelevancy && s.Sort != types.SortDate {
		return nil, fmt.Errorf("unknown sort %q: expected %s or %s", s.Sort, types.SortRelevancy, types.SortDate)
	}
	if s.Mixer == "" {
		s.Mixer = e.cfg.DefaultMixer
	}
	if !mixer.Known(s.Mixer) {
		return nil, fmt.Errorf("%w: %q", mixer.ErrUnknownMixer, s.Mixer)
	}
	if s.Processor == "" {
		s.Processor = e.cfg.DefaultProcessor
	}
	if !relevancy.Known(s.Processor) {
		return nil, fmt.Errorf("%w: %q", relevancy.ErrUnknownProcessor, s.Processor)
	}
	if s.ResultsRequested <= 0 {
		s.ResultsRequested = e.cfg.ResultsRequested
	}

	pq := ParseQuery(query)
	s.QueryStringProcessed = pq.Text
	if pq.StartTag != "" {
		s.Tags = append(s.Tags, pq.StartTag)
	}
	s.Tags = append(s.Tags, pq.Tags...)

	now := time.Now().UTC()
	s.CreatedAt, s.UpdatedAt = now, now
	if err := e.store.CreateSearch(ctx, s); err != nil {
		return nil, err
	}
	e.logger.Info("search created", "search_id", s.ID, "owner", s.Owner, "query", s.QueryString)

	if err := e.Dispatch(ctx, s.ID); err != nil {
		return s, err
	}
	return s, nil
}

// Dispatch enqueues a search for a worker. It does not wait.
func (e *Engine) Dispatch(ctx context.Context, id string) error {
	return e.queue.Enqueue(ctx, queue.Task{SearchID: id, Kind: queue.KindSearch})
}

// Get returns a search owned by owner. An empty owner skips the check.
func (e *Engine) Get(ctx context.Context, id, owner string) (*types.Search, error) {
	s, err := e.store.GetSearch(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && s.Owner != owner {
		return nil, fmt.Errorf("search %s: %w", id, ErrForbidden)
	}
	return s, nil
}

// List returns searches matching f, newest first.
func (e *Engine) List(ctx context.Context, f store.SearchFilter) ([]*types.Search, error) {
	return e.store.ListSearches(ctx, f)
}

// Results returns the stored results of a search in provider order.
func (e *Engine) Results(ctx context.Context, id, owner string) ([]*types.Result, error) {
	s, err := e.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	results, err := e.store.ListResults(ctx, id)
	if err != nil {
		return nil, err
	}
	return orderResults(s, results), nil
}

// Rerun discards every result, resets the search to NEW_SEARCH under a new
// generation and dispatches it again. It is the only way out of an error
// status.
func (e *Engine) Rerun(ctx context.Context, id, owner string) (*types.Search, error) {
	unlock := e.lock(id)
	s, err := e.Get(ctx, id, owner)
	if err != nil {
		unlock()
		return nil, err
	}
	if err := e.store.ReplaceResults(ctx, id, nil); err != nil {
		unlock()
		return nil, err
	}
	s.Status = types.StatusNewSearch
	s.Generation++
	s.Messages = nil
	s.AddMessage("Rerun requested")
	s.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateSearch(ctx, s); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	e.logger.Info("search rerun", "search_id", id, "generation", s.Generation)
	return s, e.Dispatch(ctx, id)
}

// Rescore moves a ready search to RESCORING and enqueues post-processing
// over the stored results, without dispatching providers.
func (e *Engine) Rescore(ctx context.Context, id, owner string) (*types.Search, error) {
	s, err := e.reenter(ctx, id, owner, types.StatusRescoring, "Rescore requested")
	if err != nil {
		return nil, err
	}
	return s, e.queue.Enqueue(ctx, queue.Task{SearchID: id, Kind: queue.KindRescore})
}

// Update moves a ready search to UPDATE_SEARCH and dispatches it again.
// Ready results are kept and merged with fresh records; failed or missing
// ones are replaced.
func (e *Engine) Update(ctx context.Context, id, owner string) (*types.Search, error) {
	s, err := e.reenter(ctx, id, owner, types.StatusUpdateSearch, "Update requested")
	if err != nil {
		return nil, err
	}
	return s, e.Dispatch(ctx, id)
}

func (e *Engine) reenter(ctx context.Context, id, owner string, to types.SearchStatus, msg string) (*types.Search, error) {
	unlock := e.lock(id)
	defer unlock()

	s, err := e.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if err := s.Transition(to); err != nil {
		return nil, err
	}
	s.AddMessage("%s", msg)
	if err := e.store.UpdateSearch(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Destroy deletes a search and its results. Work still in flight for it
// is discarded on completion.
func (e *Engine) Destroy(ctx context.Context, id, owner string) error {
	defer e.lock(id)()
	if _, err := e.Get(ctx, id, owner); err != nil {
		return err
	}
	if err := e.store.DeleteSearch(ctx, id); err != nil {
		return err
	}
	e.logger.Info("search destroyed", "search_id", id)
	return nil
}

// WaitReady polls until the search reaches a ready or error status, ctx
// ends, or the configured ready wait elapses.
func (e *Engine) WaitReady(ctx context.Context, id string) (*types.Search, error) {
	wait := e.cfg.Dispatch.ReadyWait
	if wait <= 0 {
		wait = 20 * time.Second
	}
	interval := e.cfg.Dispatch.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s, err := e.store.GetSearch(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w %s", ErrWaitTimeout, id)
			}
			return nil, err
		}
		if s.Status.IsTerminal() {
			return s, nil
		}
		select {
		case <-ctx.Done():
			return s, fmt.Errorf("%w %s (status %s)", ErrWaitTimeout, id, s.Status)
		case <-ticker.C:
		}
	}
}
