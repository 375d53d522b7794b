// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package connector

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/pdiddy/metasearch/internal/auth"
	"github.com/pdiddy/metasearch/pkg/types"
)

// PageSize is the number of results requested per provider page.
const PageSize = 10

// Tokens in a PAGE mapping value.
const (
	tokenResultIndex     = "RESULT_INDEX"
	tokenResultZeroIndex = "RESULT_ZERO_INDEX"
	tokenPageIndex       = "PAGE_INDEX"
)

func isControlMapping(key string) bool {
	switch key {
	case types.MappingDateSort, types.MappingRelevancySort, types.MappingPage:
		return true
	}
	return false
}

// ConstructQuery binds the provider's query template for query. It returns
// the bound query and non-fatal warnings (a *MappingError when the sort
// order asks for a mapping the provider does not declare).
func ConstructQuery(p types.Provider, query, sort string, cred auth.Credential) (string, []error) {
	q := strings.ReplaceAll(p.QueryTemplate, "{url}", p.URL)
	for k, v := range p.QueryMappings {
		if isControlMapping(k) {
			continue
		}
		q = strings.ReplaceAll(q, "{"+k+"}", v)
	}
	for k, v := range cred.QueryBindings() {
		q = strings.ReplaceAll(q, "{"+k+"}", v)
	}
	q = strings.ReplaceAll(q, "{query_string}", url.QueryEscape(query))

	var warnings []error
	switch sort {
	case types.SortDate:
		if frag := p.QueryMappings[types.MappingDateSort]; frag != "" {
			q = insertBeforeLastParam(q, frag)
		} else {
			warnings = append(warnings, &MappingError{Key: types.MappingDateSort, Reason: "date sort requested but not configured"})
		}
	default:
		if frag := p.QueryMappings[types.MappingRelevancySort]; frag != "" {
			q = insertBeforeLastParam(q, frag)
		}
	}
	return q, warnings
}

// ValidateQuery reports whether every template placeholder was bound.
func ValidateQuery(q string) bool {
	return !strings.ContainsAny(q, "{}")
}

// PageCount returns how many pages to request from p, never more than maxPages.
func PageCount(p types.Provider, maxPages int) int {
	if p.QueryMappings[types.MappingPage] == "" || p.ResultsPerQuery <= PageSize {
		return 1
	}
	n := (p.ResultsPerQuery + PageSize - 1) / PageSize
	if maxPages > 0 && n > maxPages {
		n = maxPages
	}
	return n
}

// PageQuery inserts the PAGE mapping for the zero-based page into base.
func PageQuery(base, pageMapping string, page int) (string, error) {
	start := page*PageSize + 1
	var frag string
	switch {
	case strings.Contains(pageMapping, tokenResultZeroIndex):
		frag = strings.ReplaceAll(pageMapping, tokenResultZeroIndex, strconv.Itoa(start-1))
	case strings.Contains(pageMapping, tokenResultIndex):
		frag = strings.ReplaceAll(pageMapping, tokenResultIndex, strconv.Itoa(start))
	case strings.Contains(pageMapping, tokenPageIndex):
		frag = strings.ReplaceAll(pageMapping, tokenPageIndex, strconv.Itoa(page+1))
	default:
		return "", &MappingError{Key: types.MappingPage, Reason: "expected RESULT_INDEX, RESULT_ZERO_INDEX or PAGE_INDEX in " + pageMapping}
	}
	return insertBeforeLastParam(base, frag), nil
}

// insertBeforeLastParam places frag as a parameter in front of the final
// "&" parameter of q, or appends it when q has a single parameter.
func insertBeforeLastParam(q, frag string) string {
	i := strings.LastIndex(q, "&")
	if i < 0 {
		if strings.Contains(q, "?") {
			return q + "&" + frag
		}
		return q + "?" + frag
	}
	return q[:i] + "&" + frag + q[i:]
}
