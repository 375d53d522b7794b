// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mixer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/metasearch/pkg/types"
)

func readyResult(id, provider string, scores ...float64) *types.Result {
	res := &types.Result{ID: id, ProviderID: id, ProviderName: provider, Status: types.ResultReady}
	for i, s := range scores {
		res.Records = append(res.Records, types.Record{
			Title:   fmt.Sprintf("%s-%d", provider, i+1),
			URL:     fmt.Sprintf("https://%s.example/%d", provider, i+1),
			Score:   s,
			Rank:    i + 1,
			Explain: &types.Explain{Similarity: s},
		})
	}
	res.Retrieved = len(res.Records)
	res.Found = len(res.Records)
	return res
}

func search() *types.Search {
	return &types.Search{ID: "s1", QueryString: "machine learning jobs", Status: types.ReadyStatus("relevancy"), ResultsRequested: 10}
}

func titles(p Page) []string {
	var out []string
	for _, it := range p.Items {
		out = append(out, it.Title)
	}
	return out
}

func mustLookup(t *testing.T, name string) Mixer {
	t.Helper()
	m, err := Lookup(name)
	require.NoError(t, err)
	return m
}

func TestRelevancy_TopTenOfOneProvider(t *testing.T) {
	scores := []float64{0.1, 0.9, 0.5, 0.3, 0.8, 0.2, 0.7, 0.4, 0.6, 0.05, 0.95, 0.15}
	a := readyResult("a", "alpha", scores...)
	b := &types.Result{ID: "b", ProviderName: "beta", Status: types.ResultReady}

	p := mustLookup(t, "relevancy").Mix(search(), []*types.Result{a, b}, Options{Page: 1, PageSize: 10})

	require.Len(t, p.Items, 10)
	for i := 1; i < len(p.Items); i++ {
		assert.GreaterOrEqual(t, p.Items[i-1].Score, p.Items[i].Score)
	}
	for _, it := range p.Items {
		assert.Equal(t, "alpha", it.Provider)
	}
	assert.Equal(t, 0.95, p.Items[0].Score)
	assert.Equal(t, 12, p.TotalRetrieved)
	assert.Equal(t, 12, p.TotalItems)
	assert.Len(t, p.Info, 2)
}

func TestRelevancy_TieBreaks(t *testing.T) {
	a := readyResult("a", "alpha", 0.5, 0.5)
	b := readyResult("b", "beta", 0.5)

	p := mustLookup(t, "relevancy").Mix(search(), []*types.Result{a, b}, Options{})
	assert.Equal(t, []string{"alpha-1", "beta-1", "alpha-2"}, titles(p))
}

func TestRelevancy_HidesDuplicatesAndFailures(t *testing.T) {
	a := readyResult("a", "alpha", 0.9, 0.1)
	b := readyResult("b", "beta", 0.8)
	b.Records[0].DuplicateOf = "a#1"
	c := &types.Result{ID: "c", ProviderName: "gamma", Status: types.ResultErrTransport, Messages: []string{"503"}}

	p := mustLookup(t, "relevancy").Mix(search(), []*types.Result{a, b, c}, Options{})
	assert.Equal(t, []string{"alpha-1", "alpha-2"}, titles(p))
	require.Len(t, p.Info, 3)
	assert.Equal(t, types.ResultErrTransport, p.Info[2].Status)
	assert.Equal(t, []string{"503"}, p.Info[2].Messages)
}

func TestMix_ExplainStripped(t *testing.T) {
	a := readyResult("a", "alpha", 0.9)
	results := []*types.Result{a}
	m := mustLookup(t, "relevancy")

	assert.Nil(t, m.Mix(search(), results, Options{}).Items[0].Explain)
	assert.NotNil(t, m.Mix(search(), results, Options{Explain: true}).Items[0].Explain)
	assert.NotNil(t, a.Records[0].Explain, "mixing must not mutate results")
}

func TestMix_ProviderFilter(t *testing.T) {
	a := readyResult("a", "alpha", 0.9)
	b := readyResult("b", "beta", 0.8)
	m := mustLookup(t, "relevancy")

	assert.Equal(t, []string{"beta-1"}, titles(m.Mix(search(), []*types.Result{a, b}, Options{Provider: "beta"})))
	assert.Equal(t, []string{"alpha-1"}, titles(m.Mix(search(), []*types.Result{a, b}, Options{Provider: "a"})))
}

func TestMix_Pagination(t *testing.T) {
	a := readyResult("a", "alpha", 0.5, 0.4, 0.3, 0.2, 0.1)
	m := mustLookup(t, "relevancy")

	p2 := m.Mix(search(), []*types.Result{a}, Options{Page: 2, PageSize: 2})
	assert.Equal(t, []string{"alpha-3", "alpha-4"}, titles(p2))
	assert.Equal(t, 2, p2.Page)

	p9 := m.Mix(search(), []*types.Result{a}, Options{Page: 9, PageSize: 2})
	assert.Empty(t, p9.Items)
	assert.NotNil(t, p9.Items)

	s := search()
	s.ResultsRequested = 3
	assert.Len(t, m.Mix(s, []*types.Result{a}, Options{}).Items, 3)
}

func TestRoundRobin(t *testing.T) {
	a := readyResult("a", "alpha", 0.1, 0.9, 0.5)
	b := readyResult("b", "beta", 0.3)
	c := readyResult("c", "gamma", 0.2, 0.8)

	p := mustLookup(t, "round_robin").Mix(search(), []*types.Result{a, b, c}, Options{})
	assert.Equal(t, []string{"alpha-2", "beta-1", "gamma-2", "alpha-3", "gamma-1", "alpha-1"}, titles(p))
	assert.Equal(t, "round_robin", p.Mixer)
}

func TestDate(t *testing.T) {
	a := readyResult("a", "alpha", 0.9, 0.1, 0.5)
	a.Records[0].DatePublished = "2021-01-01"
	a.Records[1].DatePublished = "2024-06-01"
	b := readyResult("b", "beta", 0.8)

	p := mustLookup(t, "date").Mix(search(), []*types.Result{a, b}, Options{})
	assert.Equal(t, []string{"alpha-2", "alpha-1", "beta-1", "alpha-3"}, titles(p))
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"date", "relevancy", "round_robin"}, Names())
	assert.True(t, Known("round_robin"))
	_, err := Lookup("stack")
	assert.ErrorIs(t, err, ErrUnknownMixer)
}

func TestFormatTable(t *testing.T) {
	a := readyResult("a", "alpha", 0.9)
	a.Records[0].Title = "<em>Machine</em> learning"
	a.Records[0].Author = "Ada Lovelace"
	a.Records[0].DatePublished = "2024-06-01T10:00:00Z"
	p := mustLookup(t, "relevancy").Mix(search(), []*types.Result{a}, Options{})

	var buf bytes.Buffer
	FormatTable(p, &buf)
	out := buf.String()
	assert.Contains(t, out, "Machine learning")
	assert.NotContains(t, out, "<em>")
	assert.Contains(t, out, "2024-06-01")
	assert.Contains(t, out, "1 of 1 results")

	buf.Reset()
	FormatTable(Page{Page: 1, PageSize: 10}, &buf)
	assert.Contains(t, buf.String(), "No results found.")
}

func TestFormatJSON(t *testing.T) {
	p := mustLookup(t, "relevancy").Mix(search(), []*types.Result{readyResult("a", "alpha", 0.9)}, Options{})

	var buf bytes.Buffer
	require.NoError(t, FormatJSON(p, &buf))
	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	items := got["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "alpha-1", item["title"])
	assert.Equal(t, "alpha", item["provider"])
}

func TestFormatCSL(t *testing.T) {
	a := readyResult("a", "alpha", 0.9)
	a.Records[0].Author = "Ada Lovelace, Turing"
	a.Records[0].URL = "https://doi.org/10.1000/xyz"
	a.Records[0].DatePublished = "2023-03"
	p := mustLookup(t, "relevancy").Mix(search(), []*types.Result{a}, Options{})

	var buf bytes.Buffer
	require.NoError(t, FormatCSL(p, &buf))
	var items []CSLItem
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &items))
	require.Len(t, items, 1)
	it := items[0]
	assert.Equal(t, "article", it.Type)
	assert.Equal(t, "10.1000/xyz", it.DOI)
	assert.Equal(t, []CSLName{{Given: "Ada", Family: "Lovelace"}, {Literal: "Turing"}}, it.Author)
	assert.Equal(t, [][]int{{2023, 3}}, it.Issued.DateParts)
}
