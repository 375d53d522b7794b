// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"regexp"
	"strings"

	"github.com/pdiddy/metasearch/pkg/types"
)

var tagRE = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// ParsedQuery is a query with its provider tags separated out.
type ParsedQuery struct {
	// Text is the query sent to providers.
	Text string

	// StartTag comes from a leading "tag:" token.
	StartTag string

	// Tags come from embedded "tag:term" tokens.
	Tags []string
}

// ParseQuery splits provider tags from a raw query. "news: election" has
// the start tag news; "news:election results" has the embedded tag news
// and the text "election results".
func ParseQuery(raw string) ParsedQuery {
	var pq ParsedQuery
	fields := strings.Fields(raw)
	if len(fields) > 0 {
		if first := fields[0]; strings.HasSuffix(first, ":") && tagRE.MatchString(strings.TrimSuffix(first, ":")) {
			pq.StartTag = strings.TrimSuffix(first, ":")
			fields = fields[1:]
		}
	}

	words := make([]string, 0, len(fields))
	for _, f := range fields {
		tag, term, ok := strings.Cut(f, ":")
		if ok && term != "" && tagRE.MatchString(tag) && !strings.HasPrefix(term, "//") {
			pq.Tags = append(pq.Tags, tag)
			words = append(words, term)
			continue
		}
		words = append(words, f)
	}
	pq.Text = strings.Join(words, " ")
	return pq
}

// SelectProviders picks the active providers for a query. Without tags the
// default providers are used. A start tag narrows the defaults to those
// carrying it; start and embedded tags also add non-default providers
// carrying them. When nothing matches, the defaults are used.
func SelectProviders(providers []*types.Provider, pq ParsedQuery) []*types.Provider {
	var selected, defaults []*types.Provider
	tagged := func(p *types.Provider) bool {
		if pq.StartTag != "" && p.HasTag(pq.StartTag) {
			return true
		}
		for _, t := range pq.Tags {
			if p.HasTag(t) {
				return true
			}
		}
		return false
	}

	for _, p := range providers {
		if !p.Active {
			continue
		}
		if p.Default {
			defaults = append(defaults, p)
			if pq.StartTag == "" || p.HasTag(pq.StartTag) {
				selected = append(selected, p)
			}
			continue
		}
		if tagged(p) {
			selected = append(selected, p)
		}
	}
	if len(selected) == 0 {
		return defaults
	}
	return selected
}

// ResolveProviders maps explicit references (IDs, names or tags) onto
// active providers, keeping reference order and dropping repeats.
func ResolveProviders(providers []*types.Provider, refs []string) []*types.Provider {
	seen := make(map[string]bool)
	var out []*types.Provider
	add := func(p *types.Provider) {
		if p.Active && !seen[p.ID] {
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	for _, ref := range refs {
		for _, p := range providers {
			if p.ID == ref || strings.EqualFold(p.Name, ref) || p.HasTag(ref) {
				add(p)
			}
		}
	}
	return out
}
