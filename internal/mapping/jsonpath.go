// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package mapping extracts fields from provider responses with JSONPath
// expressions and normalizes result items into records.
package mapping

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
)

// ErrBadPath is returned when a mapping is not a valid path expression.
var ErrBadPath = errors.New("invalid path expression")

// AmbiguousError is returned when a singular mapping matches more than once.
type AmbiguousError struct {
	Mapping string
	Path    string
	Matches int
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("mapping %s (%s) matched %d values, expected one", e.Mapping, e.Path, e.Matches)
}

var (
	cacheMu sync.RWMutex
	cache   = map[string]jp.Expr{}
)

// Compile parses path, adding the "$." root when it is missing.
// Compiled expressions are cached.
func Compile(path string) (jp.Expr, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrBadPath)
	}
	if !strings.HasPrefix(path, "$") {
		path = "$." + path
	}

	cacheMu.RLock()
	x, ok := cache[path]
	cacheMu.RUnlock()
	if ok {
		return x, nil
	}

	x, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPath, path, err)
	}
	cacheMu.Lock()
	cache[path] = x
	cacheMu.Unlock()
	return x, nil
}

// Find returns every value matched by path. No match is an empty slice.
func Find(data any, path string) ([]any, error) {
	x, err := Compile(path)
	if err != nil {
		return nil, err
	}
	return x.Get(data), nil
}

// Single returns the one value matched by path. ok is false when nothing
// matched. More than one match is an *AmbiguousError naming mapping.
func Single(data any, mapping, path string) (any, bool, error) {
	vals, err := Find(data, path)
	if err != nil {
		return nil, false, err
	}
	switch len(vals) {
	case 0:
		return nil, false, nil
	case 1:
		return vals[0], true, nil
	}
	return nil, false, &AmbiguousError{Mapping: mapping, Path: path, Matches: len(vals)}
}

// IsMulti reports whether path is declared multi-valued. Only wildcard and
// descendant paths may match more than once.
func IsMulti(path string) bool {
	return strings.Contains(path, "[*]") || strings.Contains(path, "..") || strings.Contains(path, ".*")
}

// Decode parses a JSON document into generic values.
func Decode(body []byte) (any, error) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, nil
	}
	v, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return v, nil
}
