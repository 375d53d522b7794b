// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/metasearch/internal/mixer"
	"github.com/pdiddy/metasearch/internal/queue"
	"github.com/pdiddy/metasearch/internal/store"
	"github.com/pdiddy/metasearch/pkg/types"
)

const owner = "alice"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type harness struct {
	eng   *Engine
	store *store.SQLite
	queue *queue.Memory
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	cfg := types.DefaultEngineConfig()
	cfg.Connector.PageDelay = 0
	cfg.Connector.Timeout = 5 * time.Second
	cfg.Dispatch.SearchTimeout = 5 * time.Second
	cfg.Dispatch.ReadyWait = 5 * time.Second
	cfg.Dispatch.PollInterval = 10 * time.Millisecond
	cfg.Embedding = types.EmbeddingConfig{Backend: "hash", Dimensions: 32}
	return newHarnessWithConfig(t, cfg, opts...)
}

func newHarnessWithConfig(t *testing.T, cfg types.EngineConfig, opts ...Option) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "metasearch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	q := queue.NewMemory(64, quiet)
	t.Cleanup(func() { q.Close() })

	eng, err := New(cfg, st, q, append([]Option{WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(eng.Close)
	return &harness{eng: eng, store: st, queue: q}
}

// item is one entry of a test provider response.
type item struct {
	Name    string `json:"name"`
	Snippet string `json:"snippet"`
	Link    string `json:"link"`
}

func items(name string, ids ...int) []item {
	out := make([]item, len(ids))
	for i, id := range ids {
		out[i] = item{
			Name:    fmt.Sprintf("golang %s paper %d", name, id),
			Snippet: fmt.Sprintf("%s snippet number %d", name, id),
			Link:    fmt.Sprintf("https://%s.example/%d", name, id),
		}
	}
	return out
}

func writeItems(w http.ResponseWriter, list []item) {
	json.NewEncoder(w).Encode(map[string]any{"total": len(list), "items": list})
}

// staticServer always answers with the given records.
func staticServer(t *testing.T, name string, ids ...int) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeItems(w, items(name, ids...))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func handlerServer(t *testing.T, h http.HandlerFunc) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts
}

func testProvider(name, url string) types.Provider {
	return types.Provider{
		Name:          name,
		Connector:     "RequestsGet",
		URL:           url,
		QueryTemplate: "{url}?q={query_string}",
		ResponseMappings: map[string]string{
			types.MappingFound:   "total",
			types.MappingResults: "items",
		},
		ResultMappings:  map[string]string{"title": "name", "body": "snippet", "url": "link"},
		ResultsPerQuery: 10,
		Default:         true,
		Active:          true,
	}
}

func (h *harness) addProvider(t *testing.T, name, url string) *types.Provider {
	t.Helper()
	p, err := h.eng.AddProvider(context.Background(), owner, testProvider(name, url))
	require.NoError(t, err)
	return p
}

// runSearch creates a search and runs it to completion on the calling goroutine.
func (h *harness) runSearch(t *testing.T, req Request) *types.Search {
	t.Helper()
	ctx := context.Background()
	if req.Owner == "" {
		req.Owner = owner
	}
	s, err := h.eng.Create(ctx, req)
	require.NoError(t, err)
	require.NoError(t, h.eng.Run(ctx, s.ID))
	s, err = h.eng.Get(ctx, s.ID, req.Owner)
	require.NoError(t, err)
	return s
}

func statuses(results []*types.Result) map[string]types.ResultStatus {
	out := make(map[string]types.ResultStatus, len(results))
	for _, r := range results {
		out[r.ProviderName] = r.Status
	}
	return out
}

func TestRun_PartialFailure(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1, 2, 3).URL)
	h.addProvider(t, "beta", staticServer(t, "beta", 1, 2).URL)
	h.addProvider(t, "gamma", staticServer(t, "gamma", 1).URL)
	h.addProvider(t, "down", handlerServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}).URL)
	broken := testProvider("broken", handlerServer(t, func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, `{"items": [{"name": "a", "link": "x"}], "meta": [{"total": 1}, {"total": 2}]}`)
	}).URL)
	broken.ResponseMappings[types.MappingFound] = "meta[*].total"
	_, err := h.eng.AddProvider(context.Background(), owner, broken)
	require.NoError(t, err)

	s := h.runSearch(t, Request{Query: "golang"})

	assert.Equal(t, types.SearchStatus("RELEVANCY_READY"), s.Status)
	assert.Equal(t, int64(1), s.Generation)
	assert.Len(t, s.Selected, 5)
	assert.Empty(t, s.Providers, "the caller asked for no providers")

	results, err := h.eng.Results(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, map[string]types.ResultStatus{
		"alpha":  types.ResultReady,
		"beta":   types.ResultReady,
		"gamma":  types.ResultReady,
		"down":   types.ResultErrTransport,
		"broken": types.ResultErrMapping,
	}, statuses(results))

	page, err := h.eng.Mix(context.Background(), s.ID, owner, "", mixer.Options{})
	require.NoError(t, err)
	assert.Equal(t, 6, page.TotalRetrieved)
	assert.Len(t, page.Items, 6)
	assert.Len(t, page.Info, 5)
	for _, it := range page.Items {
		assert.Contains(t, it.Title, "<em>golang</em>")
		assert.Nil(t, it.Explain)
	}
}

func TestRun_Timeout(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.Connector.PageDelay = 0
	cfg.Dispatch.SearchTimeout = 300 * time.Millisecond
	cfg.Embedding = types.EmbeddingConfig{Backend: "hash", Dimensions: 32}
	h := newHarnessWithConfig(t, cfg)

	h.addProvider(t, "fast", staticServer(t, "fast", 1).URL)
	h.addProvider(t, "slow", handlerServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}).URL)

	start := time.Now()
	s := h.runSearch(t, Request{Query: "golang"})
	assert.Less(t, time.Since(start), 3*time.Second)

	assert.True(t, s.Status.IsReady(), s.Status)
	results, err := h.store.ListResults(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ResultErrTimeout, statuses(results)["slow"])
	assert.Equal(t, types.ResultReady, statuses(results)["fast"])
}

func TestRun_StaleCompletionDiscarded(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	hit := make(chan struct{}, 4)
	h.addProvider(t, "held", handlerServer(t, func(w http.ResponseWriter, r *http.Request) {
		hit <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		writeItems(w, items("held", 1, 2))
	}).URL)

	ctx := context.Background()
	s, err := h.eng.Create(ctx, Request{Owner: owner, Query: "golang"})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- h.eng.Run(ctx, s.ID) }()

	select {
	case <-hit:
	case <-time.After(5 * time.Second):
		t.Fatal("provider never called")
	}
	_, err = h.eng.Rerun(ctx, s.ID, owner)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	got, err := h.eng.Get(ctx, s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNewSearch, got.Status)
	assert.Equal(t, int64(2), got.Generation)
	results, err := h.store.ListResults(ctx, s.ID)
	require.NoError(t, err)
	assert.Empty(t, results, "completion of the superseded dispatch is dropped")

	require.NoError(t, h.eng.Run(ctx, s.ID))
	got, err = h.eng.Get(ctx, s.ID, owner)
	require.NoError(t, err)
	assert.True(t, got.Status.IsReady())
	assert.Equal(t, int64(3), got.Generation)
}

func TestRun_NoProviders(t *testing.T) {
	h := newHarness(t)
	s := h.runSearch(t, Request{Query: "golang"})
	assert.Equal(t, types.StatusErrNoSearchProviders, s.Status)
	assert.NotEmpty(t, s.Messages)
}

func TestRun_AllFailed(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "down", handlerServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}).URL)

	s := h.runSearch(t, Request{Query: "golang"})
	assert.Equal(t, types.StatusErrNoResults, s.Status)

	_, err := h.eng.Rescore(context.Background(), s.ID, owner)
	var te *types.TransitionError
	assert.ErrorAs(t, err, &te)

	_, err = h.eng.Mix(context.Background(), s.ID, owner, "", mixer.Options{})
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRun_ZeroRecordsIsReady(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "empty", staticServer(t, "empty").URL)

	s := h.runSearch(t, Request{Query: "golang"})
	assert.True(t, s.Status.IsReady(), s.Status)

	page, err := h.eng.Mix(context.Background(), s.ID, owner, "", mixer.Options{})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotNil(t, page.Items)
}

func TestRun_ExplicitProviders(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1).URL)
	h.addProvider(t, "beta", staticServer(t, "beta", 1).URL)

	s := h.runSearch(t, Request{Query: "golang", Providers: []string{"beta"}})
	results, err := h.store.ListResults(context.Background(), s.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "beta", results[0].ProviderName)
}

type staticSessions map[string]string

func (s staticSessions) Session(context.Context, string) (map[string]string, error) { return s, nil }

func TestRun_SessionCredentials(t *testing.T) {
	keyed := func(t *testing.T) *httptest.Server {
		return handlerServer(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Api-Key") != "s3cret" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			writeItems(w, items("keyed", 1))
		})
	}
	provider := func(url string) types.Provider {
		p := testProvider("keyed", url)
		p.Credentials = "X-Api-Key={credentials}"
		p.EvalCredentials = "keyed-api-key"
		return p
	}

	t.Run("bound from session", func(t *testing.T) {
		h := newHarness(t, WithSessions(staticSessions{"keyed-api-key": "s3cret"}))
		_, err := h.eng.AddProvider(context.Background(), owner, provider(keyed(t).URL))
		require.NoError(t, err)
		s := h.runSearch(t, Request{Query: "golang"})
		assert.True(t, s.Status.IsReady(), s.Status)

		stored, err := h.eng.Providers(context.Background(), owner)
		require.NoError(t, err)
		assert.Equal(t, "X-Api-Key={credentials}", stored[0].Credentials, "stored provider is not modified")
	})

	t.Run("missing session value", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.eng.AddProvider(context.Background(), owner, provider(keyed(t).URL))
		require.NoError(t, err)
		s := h.runSearch(t, Request{Query: "golang"})
		assert.Equal(t, types.StatusErrNoResults, s.Status)

		results, err := h.store.ListResults(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, types.ResultErrConfiguration, results[0].Status)
	})
}

func TestRescore(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1, 2).URL)
	s := h.runSearch(t, Request{Query: "golang"})
	require.True(t, s.Status.IsReady())

	before, err := h.store.ListResults(context.Background(), s.ID)
	require.NoError(t, err)

	s, err = h.eng.Rescore(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, types.StatusRescoring, s.Status)

	require.NoError(t, h.eng.Handle(context.Background(), queue.Task{SearchID: s.ID, Kind: queue.KindRescore}))
	s, err = h.eng.Get(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, types.SearchStatus("RELEVANCY_READY"), s.Status)

	after, err := h.store.ListResults(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, before[0].Records[0].Score, after[0].Records[0].Score)
	assert.Equal(t, before[0].Records[0].Title, after[0].Records[0].Title)
}

func TestUpdate_MergesNewRecords(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.addProvider(t, "alpha", handlerServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeItems(w, items("alpha", 1, 2))
			return
		}
		writeItems(w, items("alpha", 2, 3))
	}).URL)

	ctx := context.Background()
	s := h.runSearch(t, Request{Query: "golang"})
	require.True(t, s.Status.IsReady())

	page, err := h.eng.Mix(ctx, s.ID, owner, "", mixer.Options{MarkRead: true})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.Items[0].Read)

	s, err = h.eng.Update(ctx, s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, types.StatusUpdateSearch, s.Status)
	require.NoError(t, h.eng.Run(ctx, s.ID))

	s, err = h.eng.Get(ctx, s.ID, owner)
	require.NoError(t, err)
	assert.True(t, s.Status.IsReady(), s.Status)

	results, err := h.store.ListResults(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	recs := results[0].Records
	require.Len(t, recs, 3)
	assert.True(t, recs[0].Read)
	assert.True(t, recs[1].Read)
	assert.False(t, recs[2].Read)
	assert.Equal(t, "https://alpha.example/3", recs[2].URL)
	assert.Equal(t, 3, recs[2].Rank)
	assert.Equal(t, 3, results[0].Retrieved)
	assert.Contains(t, strings.Join(results[0].Messages, " "), "update added 1 new records")
}

func TestUpdate_FailureKeepsPreviousResult(t *testing.T) {
	h := newHarness(t)
	var calls atomic.Int32
	h.addProvider(t, "alpha", handlerServer(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			writeItems(w, items("alpha", 1, 2))
			return
		}
		http.Error(w, "down", http.StatusBadGateway)
	}).URL)

	ctx := context.Background()
	s := h.runSearch(t, Request{Query: "golang"})
	_, err := h.eng.Update(ctx, s.ID, owner)
	require.NoError(t, err)
	require.NoError(t, h.eng.Run(ctx, s.ID))

	s, err = h.eng.Get(ctx, s.ID, owner)
	require.NoError(t, err)
	assert.True(t, s.Status.IsReady(), s.Status)

	results, err := h.store.ListResults(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ResultReady, results[0].Status)
	assert.Len(t, results[0].Records, 2)
	assert.Contains(t, strings.Join(results[0].Messages, " "), "keeping previous results")
}

func TestRerun_FromError(t *testing.T) {
	h := newHarness(t)
	s := h.runSearch(t, Request{Query: "golang"})
	require.Equal(t, types.StatusErrNoSearchProviders, s.Status)

	h.addProvider(t, "alpha", staticServer(t, "alpha", 1).URL)
	s, err := h.eng.Rerun(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, types.StatusNewSearch, s.Status)

	require.NoError(t, h.eng.Run(context.Background(), s.ID))
	s, err = h.eng.Get(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.True(t, s.Status.IsReady(), s.Status)
}

func TestRerun_SelectsAgain(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1).URL)
	s := h.runSearch(t, Request{Query: "golang"})
	require.True(t, s.Status.IsReady(), s.Status)
	require.Len(t, s.Selected, 1)

	beta := h.addProvider(t, "beta", staticServer(t, "beta", 1).URL)
	_, err := h.eng.Rerun(context.Background(), s.ID, owner)
	require.NoError(t, err)
	require.NoError(t, h.eng.Run(context.Background(), s.ID))

	s, err = h.eng.Get(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.True(t, s.Status.IsReady(), s.Status)
	assert.Len(t, s.Selected, 2)
	assert.Contains(t, s.Selected, beta.ID)
	assert.Empty(t, s.Providers)

	results, err := h.store.ListResults(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]types.ResultStatus{"alpha": types.ResultReady, "beta": types.ResultReady}, statuses(results))
}

func TestUpdate_KeepsSelection(t *testing.T) {
	h := newHarness(t)
	alpha := h.addProvider(t, "alpha", staticServer(t, "alpha", 1).URL)
	s := h.runSearch(t, Request{Query: "golang"})
	require.True(t, s.Status.IsReady(), s.Status)

	h.addProvider(t, "beta", staticServer(t, "beta", 1).URL)
	_, err := h.eng.Update(context.Background(), s.ID, owner)
	require.NoError(t, err)
	require.NoError(t, h.eng.Run(context.Background(), s.ID))

	s, err = h.eng.Get(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{alpha.ID}, s.Selected, "an update refreshes the providers already chosen")
}

func TestDestroy(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1).URL)
	s := h.runSearch(t, Request{Query: "golang"})

	assert.ErrorIs(t, h.eng.Destroy(context.Background(), s.ID, "mallory"), ErrForbidden)
	require.NoError(t, h.eng.Destroy(context.Background(), s.ID, owner))

	_, err := h.eng.Get(context.Background(), s.ID, owner)
	assert.ErrorIs(t, err, ErrNotFound)
	results, err := h.store.ListResults(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Empty(t, results)

	assert.NoError(t, h.eng.Run(context.Background(), s.ID), "a queued task for a destroyed search is dropped")
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.eng.Create(ctx, Request{Owner: owner, Query: "   "})
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = h.eng.Create(ctx, Request{Owner: owner, Query: "go", Mixer: "shuffle"})
	assert.ErrorIs(t, err, mixer.ErrUnknownMixer)

	_, err = h.eng.Create(ctx, Request{Owner: owner, Query: "go", Sort: "popularity"})
	assert.Error(t, err)

	s, err := h.eng.Create(ctx, Request{Owner: owner, Query: "papers: transformers"})
	require.NoError(t, err)
	assert.Equal(t, "transformers", s.QueryStringProcessed)
	assert.Equal(t, []string{"papers"}, s.Tags)
	assert.Equal(t, "relevancy", s.Mixer)
	assert.Equal(t, "lexical", s.Processor)
	assert.Equal(t, 10, s.ResultsRequested)
	assert.Equal(t, 1, h.queue.Len())
}

func TestWaitReady_WithWorker(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1, 2).URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.eng.Serve(ctx)

	s, err := h.eng.Create(ctx, Request{Owner: owner, Query: "golang", Mixer: "round_robin"})
	require.NoError(t, err)

	s, err = h.eng.WaitReady(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SearchStatus("ROUND_ROBIN_READY"), s.Status)

	page, err := h.eng.Mix(ctx, s.ID, owner, "", mixer.Options{})
	require.NoError(t, err)
	assert.Equal(t, "round_robin", page.Mixer)
	assert.Len(t, page.Items, 2)
}

func TestServe_SearchesRunConcurrently(t *testing.T) {
	h := newHarness(t)
	slow := handlerServer(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(2 * time.Second):
		}
		writeItems(w, items("slow", 1))
	})
	h.addProvider(t, "slow", slow.URL)
	h.addProvider(t, "fast", staticServer(t, "fast", 1, 2).URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.eng.Serve(ctx)

	slowSearch, err := h.eng.Create(ctx, Request{Owner: owner, Query: "golang", Providers: []string{"slow"}})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		s, err := h.store.GetSearch(ctx, slowSearch.ID)
		return err == nil && s.Status == types.StatusDispatched
	}, time.Second, 5*time.Millisecond)

	start := time.Now()
	fast, err := h.eng.Create(ctx, Request{Owner: owner, Query: "golang", Providers: []string{"fast"}})
	require.NoError(t, err)
	fast, err = h.eng.WaitReady(ctx, fast.ID)
	require.NoError(t, err)
	assert.True(t, fast.Status.IsReady(), fast.Status)
	assert.Less(t, time.Since(start), time.Second, "the fast search must not wait behind the slow one")

	s, err := h.store.GetSearch(ctx, slowSearch.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDispatched, s.Status)
}

func TestServe_SingleSearchSlot(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.Connector.PageDelay = 0
	cfg.Dispatch.Searches = 1
	cfg.Dispatch.ReadyWait = 5 * time.Second
	cfg.Dispatch.PollInterval = 10 * time.Millisecond
	cfg.Embedding = types.EmbeddingConfig{Backend: "hash", Dimensions: 32}
	h := newHarnessWithConfig(t, cfg)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1).URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.eng.Serve(ctx)

	var ids []string
	for i := 0; i < 3; i++ {
		s, err := h.eng.Create(ctx, Request{Owner: owner, Query: "golang"})
		require.NoError(t, err)
		ids = append(ids, s.ID)
	}
	for _, id := range ids {
		s, err := h.eng.WaitReady(ctx, id)
		require.NoError(t, err)
		assert.True(t, s.Status.IsReady(), s.Status)
	}
}

func TestLock_EntriesReleased(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1).URL)
	s := h.runSearch(t, Request{Query: "golang"})
	_, err := h.eng.Rerun(context.Background(), s.ID, owner)
	require.NoError(t, err)
	require.NoError(t, h.eng.Run(context.Background(), s.ID))
	require.NoError(t, h.eng.Destroy(context.Background(), s.ID, owner))

	var wg sync.WaitGroup
	var inside, overlap int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := h.eng.lock("shared")
			if atomic.AddInt32(&inside, 1) > 1 {
				atomic.StoreInt32(&overlap, 1)
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Zero(t, atomic.LoadInt32(&overlap), "holders of one search lock must not overlap")
	h.eng.mu.Lock()
	defer h.eng.mu.Unlock()
	assert.Empty(t, h.eng.locks)
}

func TestWaitReady_Timeout(t *testing.T) {
	cfg := types.DefaultEngineConfig()
	cfg.Dispatch.ReadyWait = 50 * time.Millisecond
	cfg.Dispatch.PollInterval = 10 * time.Millisecond
	cfg.Embedding = types.EmbeddingConfig{Backend: "hash", Dimensions: 32}
	h := newHarnessWithConfig(t, cfg)

	s, err := h.eng.Create(context.Background(), Request{Owner: owner, Query: "golang"})
	require.NoError(t, err)

	_, err = h.eng.WaitReady(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrWaitTimeout)
}

func TestProviders_Ownership(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p := testProvider("private", "https://example.com")
	p.Credentials = "bearer=tok"
	mine, err := h.eng.AddProvider(ctx, owner, p)
	require.NoError(t, err)

	shared := testProvider("shared", "https://example.com")
	shared.Credentials = "bearer=tok"
	shared.Shared = true
	_, err = h.eng.AddProvider(ctx, owner, shared)
	require.NoError(t, err)

	bobs, err := h.eng.Providers(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	assert.Equal(t, "shared", bobs[0].Name)
	assert.Empty(t, bobs[0].Credentials)

	_, err = h.eng.Provider(ctx, mine.ID, "bob")
	assert.ErrorIs(t, err, ErrForbidden)

	steal := testProvider("private", "https://evil.example")
	steal.ID = mine.ID
	_, err = h.eng.AddProvider(ctx, "bob", steal)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, h.eng.RemoveProvider(ctx, mine.ID, "bob"), ErrForbidden)
	require.NoError(t, h.eng.RemoveProvider(ctx, mine.ID, owner))

	bad := testProvider("bad", "https://example.com")
	bad.Connector = "Carrier"
	_, err = h.eng.AddProvider(ctx, owner, bad)
	assert.Error(t, err)
}

func TestImportProviders(t *testing.T) {
	h := newHarness(t)
	path := filepath.Join(t.TempDir(), "providers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`providers:
  - name: Example
    connector: RequestsGet
    url: https://api.example.com/search
    query_template: "{url}?q={query_string}"
    response_mappings:
      RESULTS: items
    result_mappings:
      title: name
    default: true
    active: true
    tags: [web]
`), 0o644))

	saved, err := h.eng.ImportProviders(context.Background(), owner, path)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.NotEmpty(t, saved[0].ID)
	assert.Equal(t, owner, saved[0].Owner)
	assert.Equal(t, []string{"web"}, saved[0].Tags)

	_, err = h.eng.ImportProviders(context.Background(), owner, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestSnapshot_RoundTrip(t *testing.T) {
	h := newHarness(t)
	h.addProvider(t, "alpha", staticServer(t, "alpha", 1, 2, 3).URL)
	h.addProvider(t, "down", handlerServer(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}).URL)
	s := h.runSearch(t, Request{Query: "golang", ResultsRequested: 1})

	snap, err := h.eng.Snapshot(context.Background(), s.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Summary.Total, "snapshot is not limited to one page")
	assert.Len(t, snap.Summary.ProviderErrors, 1)

	path := filepath.Join(t.TempDir(), "snapshot.yaml")
	require.NoError(t, WriteSnapshot(path, snap))
	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, s.ID, loaded.Search.ID)
	assert.Equal(t, "golang", loaded.Search.Query)
	require.Len(t, loaded.Page.Items, 3)
	assert.Equal(t, snap.Page.Items[0].URL, loaded.Page.Items[0].URL)
	assert.NotNil(t, loaded.Page.Items[0].Explain)
}

func TestOrderResults(t *testing.T) {
	s := &types.Search{Selected: []string{"b", "a"}}
	got := orderResults(s, []*types.Result{{ProviderID: "x"}, {ProviderID: "a"}, {ProviderID: "b"}})
	assert.Equal(t, "b", got[0].ProviderID)
	assert.Equal(t, "a", got[1].ProviderID)
	assert.Equal(t, "x", got[2].ProviderID)
}

func TestMergeUpdate(t *testing.T) {
	prev := &types.Result{Records: []types.Record{{URL: "u1", Rank: 1, Read: true}}, Found: 5}
	fresh := &types.Result{Generation: 4, Records: []types.Record{{URL: "u1", Rank: 1}, {URL: "u2", Rank: 2, Read: true}}, Found: 3}

	got := mergeUpdate(prev, fresh)
	require.Len(t, got.Records, 2)
	assert.True(t, got.Records[0].Read)
	assert.False(t, got.Records[1].Read)
	assert.Equal(t, 2, got.Records[1].Rank)
	assert.Equal(t, int64(4), got.Generation)
	assert.Equal(t, 5, got.Found)
	assert.Len(t, prev.Records, 1, "previous result is not modified")
}
