// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/metasearch/internal/auth"
	"github.com/pdiddy/metasearch/internal/connector"
	"github.com/pdiddy/metasearch/internal/metrics"
	"github.com/pdiddy/metasearch/internal/relevancy"
	"github.com/pdiddy/metasearch/pkg/types"
)

// dispatch is one generation of provider work for a search.
type dispatch struct {
	search    *types.Search
	providers []*types.Provider
	session   map[string]string

	// previous holds the stored results of an update, by provider.
	previous map[string]*types.Result
}

// Run drives a NEW_SEARCH or UPDATE_SEARCH search through dispatch,
// aggregation and post-processing. Searches in any other status are left
// alone.
func (e *Engine) Run(ctx context.Context, id string) error {
	d, err := e.begin(ctx, id)
	if err != nil || d == nil {
		return err
	}
	e.collect(ctx, d)
	return e.finish(ctx, id, d.search.Generation)
}

// begin selects providers, bumps the generation and moves the search to
// DISPATCHED. It returns nil when there is nothing to dispatch.
func (e *Engine) begin(ctx context.Context, id string) (*dispatch, error) {
	unlock := e.lock(id)
	defer unlock()

	s, err := e.store.GetSearch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			e.logger.Warn("search vanished before dispatch", "search_id", id)
			return nil, nil
		}
		return nil, err
	}
	if s.Status != types.StatusNewSearch && s.Status != types.StatusUpdateSearch {
		e.logger.Warn("skipping dispatch", "search_id", id, "status", s.Status)
		return nil, nil
	}

	visible, err := e.store.ListProviders(ctx, s.Owner)
	if err != nil {
		return nil, err
	}
	var selected []*types.Provider
	switch {
	case s.Status == types.StatusUpdateSearch:
		selected = ResolveProviders(visible, s.Selected)
	case len(s.Providers) > 0:
		selected = ResolveProviders(visible, s.Providers)
	default:
		selected = SelectProviders(visible, ParseQuery(s.QueryString))
	}

	d := &dispatch{search: s, providers: selected}

	if s.Status == types.StatusNewSearch {
		if len(selected) == 0 {
			if err := s.Transition(types.StatusErrNoSearchProviders); err != nil {
				return nil, err
			}
			s.AddMessage("No active search providers matched the query")
			metrics.SearchesTotal.WithLabelValues(string(s.Status)).Inc()
			e.logger.Warn("no search providers", "search_id", id)
			return nil, e.store.UpdateSearch(ctx, s)
		}
		s.Selected = make([]string, len(selected))
		for i, p := range selected {
			s.Selected[i] = p.ID
		}
	} else {
		previous, err := e.store.ListResults(ctx, id)
		if err != nil {
			return nil, err
		}
		d.previous = make(map[string]*types.Result, len(previous))
		for _, r := range previous {
			d.previous[r.ProviderID] = r
		}
	}

	s.Generation++
	if err := s.Transition(types.StatusDispatched); err != nil {
		return nil, err
	}
	s.AddMessage("Dispatched to %d providers", len(selected))
	if err := e.store.UpdateSearch(ctx, s); err != nil {
		return nil, err
	}

	if e.sessions != nil {
		sess, err := e.sessions.Session(ctx, s.Owner)
		if err != nil {
			e.logger.Warn("loading session failed", "owner", s.Owner, "err", err)
		}
		d.session = sess
	}

	e.logger.Info("search dispatched", "search_id", id, "generation", s.Generation, "providers", len(selected))
	return d, nil
}

// collect runs one unit per provider on the pool and commits each result
// as it completes. Units still running when the search timeout elapses are
// committed as ERR_TIMEOUT; their late output is dropped.
func (e *Engine) collect(ctx context.Context, d *dispatch) {
	timeout := e.cfg.Dispatch.SearchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan *types.Result, len(d.providers))
	pending := make(map[string]*types.Provider, len(d.providers))
	for _, p := range d.providers {
		p := p.Clone()
		pending[p.ID] = &p
		err := e.pool.Submit(func() {
			done <- e.execute(runCtx, d.search, p, d.session)
		})
		if err != nil {
			r := e.newResult(d.search, &p)
			r.Status = types.ResultErrTransport
			r.Messages = append(r.Messages, fmt.Sprintf("worker pool: %v", err))
			done <- r
		}
	}

	for len(pending) > 0 {
		select {
		case r := <-done:
			delete(pending, r.ProviderID)
			e.commit(ctx, d, r)
		case <-runCtx.Done():
			for pid, p := range pending {
				r := e.newResult(d.search, p)
				r.Status = types.ResultErrTimeout
				r.Messages = append(r.Messages, fmt.Sprintf("no response within %s", timeout))
				metrics.DispatchesTotal.WithLabelValues(p.Name, string(r.Status)).Inc()
				e.commit(ctx, d, r)
				delete(pending, pid)
			}
		}
	}
}

func (e *Engine) newResult(s *types.Search, p *types.Provider) *types.Result {
	now := time.Now().UTC()
	return &types.Result{
		ID:           uuid.NewString(),
		SearchID:     s.ID,
		ProviderID:   p.ID,
		ProviderName: p.Name,
		Generation:   s.Generation,
		Status:       types.ResultQuerying,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// execute runs one provider. p is a private copy; the session is bound
// into a copy of the credential, never into the stored provider.
func (e *Engine) execute(ctx context.Context, s *types.Search, p types.Provider, session map[string]string) *types.Result {
	r := e.newResult(s, &p)
	logger := e.logger.With("search_id", s.ID, "provider", p.Name)

	fail := func(err error) *types.Result {
		r.Status = types.ResultErrConfiguration
		r.Messages = append(r.Messages, err.Error())
		logger.Error("provider misconfigured", "err", err)
		metrics.DispatchesTotal.WithLabelValues(p.Name, string(r.Status)).Inc()
		return r
	}

	cred, err := auth.Parse(p.Credentials)
	if err != nil {
		return fail(err)
	}
	cred, err = cred.Bind(session, p.EvalCredentials)
	if err != nil {
		return fail(err)
	}
	conn, err := connector.New(p.Connector, e.cfg.Connector, e.connectorOptions()...)
	if err != nil {
		return fail(err)
	}

	out := conn.Execute(ctx, connector.Request{
		Provider:   p,
		Credential: cred,
		Query:      s.QueryStringProcessed,
		Sort:       s.Sort,
	})
	r.Status = out.Status
	r.Found = out.Found
	r.Retrieved = out.Retrieved
	r.QueryToProvider = out.QueryToProvider
	r.Records = out.Records
	r.Messages = append(r.Messages, out.Messages...)
	r.UpdatedAt = time.Now().UTC()

	if r.Status.IsError() {
		logger.Warn("provider failed", "status", r.Status, "messages", r.Messages)
	} else {
		logger.Debug("provider ready", "found", r.Found, "retrieved", r.Retrieved)
	}
	metrics.DispatchesTotal.WithLabelValues(p.Name, string(r.Status)).Inc()
	return r
}

// commit stores a completion if its generation is still current. During
// an update a ready result is merged into the stored one, and a failure
// leaves the stored ready result in place with a message.
func (e *Engine) commit(ctx context.Context, d *dispatch, r *types.Result) {
	unlock := e.lock(r.SearchID)
	defer unlock()

	if prev := d.previous[r.ProviderID]; prev != nil && prev.Status == types.ResultReady {
		if r.Status == types.ResultReady {
			r = mergeUpdate(prev, r)
		} else {
			kept := *prev
			kept.Generation = r.Generation
			kept.Messages = append(append([]string(nil), prev.Messages...),
				fmt.Sprintf("update failed (%s), keeping previous results: %s", r.Status, lastMessage(r)))
			kept.UpdatedAt = time.Now().UTC()
			r = &kept
		}
	}

	ok, err := e.store.CommitResult(ctx, r)
	if err != nil {
		e.logger.Error("committing result failed", "search_id", r.SearchID, "provider", r.ProviderName, "err", err)
		return
	}
	if !ok {
		metrics.StaleCompletionsTotal.Inc()
		e.logger.Info("discarding stale completion", "search_id", r.SearchID, "provider", r.ProviderName, "generation", r.Generation)
	}
}

// mergeUpdate appends the fresh records whose URL the stored result does
// not have yet. Appended records are unread.
func mergeUpdate(prev, fresh *types.Result) *types.Result {
	out := *prev
	out.Records = append([]types.Record(nil), prev.Records...)
	out.Messages = append([]string(nil), prev.Messages...)

	have := make(map[string]bool, len(prev.Records))
	for _, rec := range prev.Records {
		have[rec.URL] = true
	}
	added := 0
	for _, rec := range fresh.Records {
		if rec.URL != "" && have[rec.URL] {
			continue
		}
		have[rec.URL] = true
		rec.Read = false
		rec.Rank = len(out.Records) + 1
		out.Records = append(out.Records, rec)
		added++
	}

	out.Generation = fresh.Generation
	out.QueryToProvider = fresh.QueryToProvider
	out.Found = max(prev.Found, fresh.Found)
	out.Retrieved = len(out.Records)
	out.Messages = append(out.Messages, fmt.Sprintf("update added %d new records", added))
	out.UpdatedAt = time.Now().UTC()
	return &out
}

func lastMessage(r *types.Result) string {
	if len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[len(r.Messages)-1]
}

// finish aggregates a completed dispatch: ERR_NO_RESULTS when no provider
// is ready, otherwise post-processing and the mixer's ready status.
func (e *Engine) finish(ctx context.Context, id string, generation int64) error {
	unlock := e.lock(id)
	defer unlock()

	s, err := e.store.GetSearch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.StaleCompletionsTotal.Inc()
			return nil
		}
		return err
	}
	if s.Generation != generation || s.Status != types.StatusDispatched {
		e.logger.Info("dispatch superseded", "search_id", id, "generation", generation, "current", s.Generation)
		return nil
	}

	results, err := e.store.ListResults(ctx, id)
	if err != nil {
		return err
	}
	results = orderResults(s, results)

	ready, failed := 0, 0
	for _, r := range results {
		switch {
		case r.Status == types.ResultReady:
			ready++
		case r.Status.IsError():
			failed++
		}
	}
	if ready == 0 {
		if err := s.Transition(types.StatusErrNoResults); err != nil {
			return err
		}
		s.AddMessage("No provider returned results (%d failed)", failed)
		metrics.SearchesTotal.WithLabelValues(string(s.Status)).Inc()
		return e.store.UpdateSearch(ctx, s)
	}

	if err := s.Transition(types.StatusPostResultProcessing); err != nil {
		return err
	}
	s.AddMessage("%d providers ready, %d failed", ready, failed)
	if err := e.store.UpdateSearch(ctx, s); err != nil {
		return err
	}
	return e.postProcess(ctx, s, results)
}

// runRescore re-runs post-processing for a RESCORING search.
func (e *Engine) runRescore(ctx context.Context, id string) error {
	unlock := e.lock(id)
	defer unlock()

	s, err := e.store.GetSearch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if s.Status != types.StatusRescoring {
		e.logger.Warn("skipping rescore", "search_id", id, "status", s.Status)
		return nil
	}
	results, err := e.store.ListResults(ctx, id)
	if err != nil {
		return err
	}
	return e.postProcess(ctx, s, orderResults(s, results))
}

// postProcess marks duplicates, scores records and moves the search from
// POST_RESULT_PROCESSING or RESCORING to its ready status. The caller
// holds the search lock.
func (e *Engine) postProcess(ctx context.Context, s *types.Search, results []*types.Result) error {
	start := time.Now()
	status := s.Status

	proc, err := relevancy.New(s.Processor, e.cfg.Relevancy, e.embedder, relevancy.WithLogger(e.baseLogger))
	if err == nil {
		dups := e.deduper.Mark(results)
		var n int
		n, err = proc.Process(ctx, status, s.QueryStringProcessed, results)
		if err == nil {
			s.AddMessage("%s scored %d records, %d duplicates", s.Processor, n, dups)
			err = e.store.ReplaceResults(ctx, s.ID, results)
		}
	}
	metrics.PostProcessingDuration.WithLabelValues(s.Processor).Observe(time.Since(start).Seconds())

	if err != nil {
		e.logger.Error("post-processing failed", "search_id", s.ID, "err", err)
		if terr := s.Transition(types.StatusErrPostProcessing); terr != nil {
			return terr
		}
		s.AddMessage("Post-processing failed: %v", err)
	} else if err := s.Transition(s.ReadyStatus()); err != nil {
		return err
	}

	metrics.SearchesTotal.WithLabelValues(string(s.Status)).Inc()
	e.logger.Info("search finished", "search_id", s.ID, "status", s.Status, "elapsed", time.Since(start))
	return e.store.UpdateSearch(ctx, s)
}

// orderResults sorts results by the search's provider priority. Results of
// providers no longer listed keep their order after the listed ones.
func orderResults(s *types.Search, results []*types.Result) []*types.Result {
	prio := make(map[string]int, len(s.Selected))
	for i, id := range s.Selected {
		prio[id] = i
	}
	rank := func(r *types.Result) int {
		if p, ok := prio[r.ProviderID]; ok {
			return p
		}
		return len(prio)
	}
	sorted := append([]*types.Result(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool { return rank(sorted[i]) < rank(sorted[j]) })
	return sorted
}
