// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package connector

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/metasearch/internal/auth"
	"github.com/pdiddy/metasearch/pkg/types"
)

func webProvider() types.Provider {
	return types.Provider{
		Name:          "web",
		Connector:     "RequestsGet",
		URL:           "https://api.example.com/search",
		QueryTemplate: "{url}?cx={cx}&q={query_string}&num=10",
		QueryMappings: map[string]string{
			"cx":                       "engine1",
			types.MappingDateSort:      "sort=date",
			types.MappingRelevancySort: "sort=rel",
		},
	}
}

func TestConstructQuery(t *testing.T) {
	tests := []struct {
		name string
		sort string
		want string
	}{
		{"relevancy", types.SortRelevancy, "https://api.example.com/search?cx=engine1&q=machine+learning&sort=rel&num=10"},
		{"date", types.SortDate, "https://api.example.com/search?cx=engine1&q=machine+learning&sort=date&num=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := ConstructQuery(webProvider(), "machine learning", tt.sort, auth.Credential{})
			assert.Empty(t, warnings)
			assert.Equal(t, tt.want, got)
			assert.True(t, ValidateQuery(got))
		})
	}
}

func TestConstructQuery_MissingDateSort(t *testing.T) {
	p := webProvider()
	delete(p.QueryMappings, types.MappingDateSort)

	got, warnings := ConstructQuery(p, "go", types.SortDate, auth.Credential{})
	require.Len(t, warnings, 1)
	var me *MappingError
	require.True(t, errors.As(warnings[0], &me))
	assert.Equal(t, types.MappingDateSort, me.Key)
	assert.Equal(t, "https://api.example.com/search?cx=engine1&q=go&num=10", got)
}

func TestConstructQuery_CredentialBindings(t *testing.T) {
	p := webProvider()
	p.QueryTemplate = "{url}?key={key}&q={query_string}"
	cred, err := auth.Parse("key=secret")
	require.NoError(t, err)

	got, _ := ConstructQuery(p, "x", types.SortRelevancy, cred)
	assert.Equal(t, "https://api.example.com/search?key=secret&sort=rel&q=x", got)
}

func TestConstructQuery_EscapesQuery(t *testing.T) {
	p := webProvider()
	p.QueryMappings = nil
	p.QueryTemplate = "{url}?q={query_string}"

	got, _ := ConstructQuery(p, "a&b {c}", types.SortRelevancy, auth.Credential{})
	assert.Equal(t, "https://api.example.com/search?q=a%26b+%7Bc%7D", got)
	assert.True(t, ValidateQuery(got))
}

func TestValidateQuery(t *testing.T) {
	assert.True(t, ValidateQuery("https://x/?q=1"))
	assert.False(t, ValidateQuery("https://x/?q=1&key={key}"))
	assert.False(t, ValidateQuery("https://x/?q={"))
}

func TestPageCount(t *testing.T) {
	p := webProvider()
	p.QueryMappings[types.MappingPage] = "start=RESULT_INDEX"

	p.ResultsPerQuery = 25
	assert.Equal(t, 3, PageCount(p, 10))
	p.ResultsPerQuery = 10
	assert.Equal(t, 1, PageCount(p, 10))
	p.ResultsPerQuery = 500
	assert.Equal(t, 10, PageCount(p, 10))

	delete(p.QueryMappings, types.MappingPage)
	assert.Equal(t, 1, PageCount(p, 10))
}

func TestPageQuery(t *testing.T) {
	base := "https://x/s?q=go&num=10"
	tests := []struct {
		name    string
		mapping string
		page    int
		want    string
	}{
		{"result index first page", "start=RESULT_INDEX", 0, "https://x/s?q=go&start=1&num=10"},
		{"result index third page", "start=RESULT_INDEX", 2, "https://x/s?q=go&start=21&num=10"},
		{"zero index", "offset=RESULT_ZERO_INDEX", 1, "https://x/s?q=go&offset=10&num=10"},
		{"page index", "page=PAGE_INDEX", 1, "https://x/s?q=go&page=2&num=10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PageQuery(base, tt.mapping, tt.page)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := PageQuery(base, "start=1", 0)
	var me *MappingError
	assert.True(t, errors.As(err, &me))
}

func TestInsertBeforeLastParam(t *testing.T) {
	assert.Equal(t, "u?a=1&s=d&b=2", insertBeforeLastParam("u?a=1&b=2", "s=d"))
	assert.Equal(t, "u?a=1&s=d", insertBeforeLastParam("u?a=1", "s=d"))
	assert.Equal(t, "u?s=d", insertBeforeLastParam("u", "s=d"))
}

func TestValidate(t *testing.T) {
	p := webProvider()
	require.NoError(t, Validate(p))

	bad := p
	bad.Connector = "Telnet"
	assert.ErrorIs(t, Validate(bad), ErrUnknownConnector)

	bad = p
	bad.Credentials = "HTTPBasicAuth('only')"
	assert.ErrorIs(t, Validate(bad), ErrInvalidProvider)

	bad = p.Clone()
	bad.QueryMappings[types.MappingPage] = "start=1"
	assert.ErrorIs(t, Validate(bad), ErrInvalidProvider)

	bad = p
	bad.ResponseMappings = map[string]string{types.MappingResults: "items["}
	assert.ErrorIs(t, Validate(bad), ErrInvalidProvider)

	assert.Equal(t, []string{"RequestsGet", "RequestsPost", "Sqlite3"}, Names())
}
