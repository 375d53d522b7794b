// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevancy

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/metasearch/pkg/types"
)

var wordRE = regexp.MustCompile(`[\p{L}\p{N}][\p{L}\p{N}'_-]*`)

// Highlighter wraps query terms in start/end markers. Highlighting is
// idempotent: text already inside markers is left alone.
type Highlighter struct {
	Start string
	End   string
}

// NewHighlighter returns a highlighter using the configured markers,
// defaulting to <em> and </em>.
func NewHighlighter(cfg types.RelevancyConfig) Highlighter {
	h := Highlighter{Start: cfg.HighlightStart, End: cfg.HighlightEnd}
	if h.Start == "" || h.End == "" {
		h.Start, h.End = "<em>", "</em>"
	}
	return h
}

// Terms returns the distinct lowercase words of a query in order.
func Terms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range wordRE.FindAllString(strings.ToLower(query), -1) {
		if !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

// Highlight marks every word of text equal (case-insensitively) to one of terms.
func (h Highlighter) Highlight(text string, terms []string) string {
	if text == "" || len(terms) == 0 {
		return text
	}
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[strings.ToLower(t)] = true
	}
	mark := func(s string) string {
		return wordRE.ReplaceAllStringFunc(s, func(w string) string {
			if set[strings.ToLower(w)] {
				return h.Start + w + h.End
			}
			return w
		})
	}

	var b strings.Builder
	h.walk(text, func(plain string) { b.WriteString(mark(plain)) }, func(span, _ string) { b.WriteString(span) })
	return b.String()
}

// Fragments returns the inner text of every marked span.
func (h Highlighter) Fragments(text string) []string {
	var out []string
	h.walk(text, func(string) {}, func(_, inner string) { out = append(out, inner) })
	return out
}

// Strip removes all markers.
func (h Highlighter) Strip(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(text, h.Start, ""), h.End, "")
}

// walk splits text into unmarked runs and complete marked spans. An
// unbalanced start marker is treated as plain text.
func (h Highlighter) walk(text string, plain func(string), marked func(span, inner string)) {
	rest := text
	for rest != "" {
		i := strings.Index(rest, h.Start)
		if i < 0 {
			plain(rest)
			return
		}
		j := strings.Index(rest[i+len(h.Start):], h.End)
		if j < 0 {
			plain(rest)
			return
		}
		if i > 0 {
			plain(rest[:i])
		}
		end := i + len(h.Start) + j + len(h.End)
		marked(rest[i:end], rest[i+len(h.Start):i+len(h.Start)+j])
		rest = rest[end:]
	}
}

// cleanAlphanumeric keeps letters, digits and single spaces.
func cleanAlphanumeric(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
