// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/metasearch/pkg/types"
)

// ErrNoResultsPath is returned when a response is an object and the
// provider declares no RESULTS mapping to locate the items.
var ErrNoResultsPath = errors.New("response is not a list and no RESULTS mapping is configured")

// Page is one normalized provider response.
type Page struct {
	Found     int
	FoundSet  bool
	Retrieved int
	Records   []types.Record
	Warnings  []string
}

// Empty reports whether the provider reported or returned nothing.
func (p Page) Empty() bool { return len(p.Records) == 0 }

var defaultResultMappings = map[string]string{
	"title":          "title",
	"body":           "body",
	"url":            "url",
	"author":         "author",
	"date_published": "date_published",
}

// Normalize applies response and result mappings to a decoded document.
// Found and retrieved counts of zero yield an empty page without error.
func Normalize(data any, response, result map[string]string) (Page, error) {
	var page Page
	if isEmptyDoc(data) {
		return page, nil
	}

	if path := response[types.MappingFound]; path != "" {
		n, ok, err := singleInt(data, types.MappingFound, path)
		if err != nil {
			return page, err
		}
		page.Found, page.FoundSet = n, ok
		if !ok {
			page.Warnings = append(page.Warnings, fmt.Sprintf("FOUND mapping %s matched nothing", path))
		}
	}
	if path := response[types.MappingRetrieved]; path != "" {
		n, ok, err := singleInt(data, types.MappingRetrieved, path)
		if err != nil {
			return page, err
		}
		if ok && n == 0 {
			return page, nil
		}
	}
	if page.FoundSet && page.Found == 0 {
		return page, nil
	}

	items, err := resultItems(data, response[types.MappingResults])
	if err != nil {
		return page, err
	}

	if len(result) == 0 {
		result = defaultResultMappings
	}
	for _, item := range items {
		if path := response[types.MappingResult]; path != "" {
			v, ok, err := Single(item, types.MappingResult, path)
			if err != nil {
				return page, err
			}
			if !ok {
				continue
			}
			item = v
		}
		rec, err := Record(item, result)
		if err != nil {
			return page, err
		}
		page.Records = append(page.Records, rec)
	}
	page.Retrieved = len(page.Records)
	if !page.FoundSet {
		page.Found = page.Retrieved
	}
	return page, nil
}

func resultItems(data any, path string) ([]any, error) {
	if path == "" {
		list, ok := data.([]any)
		if !ok {
			return nil, ErrNoResultsPath
		}
		return list, nil
	}
	v, ok, err := Single(data, types.MappingResults, path)
	if err != nil || !ok {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		return []any{t}, nil
	case nil:
		return nil, nil
	}
	return nil, fmt.Errorf("RESULTS mapping %s matched a %T, expected a list or object", path, v)
}

// Record builds one record from a result item. Mapped names that are not
// record fields are kept in the payload.
func Record(item any, mappings map[string]string) (types.Record, error) {
	var rec types.Record
	for field, path := range mappings {
		if path == "" {
			continue
		}
		var (
			val any
			ok  bool
		)
		if IsMulti(path) {
			vals, err := Find(item, path)
			if err != nil {
				return rec, err
			}
			if len(vals) > 0 {
				val, ok = joinValues(vals), true
			}
		} else {
			var err error
			val, ok, err = Single(item, field, path)
			if err != nil {
				return rec, err
			}
		}
		if !ok || val == nil {
			continue
		}
		if !rec.SetField(field, Stringify(val)) {
			if rec.Payload == nil {
				rec.Payload = make(map[string]any)
			}
			rec.Payload[field] = val
		}
	}
	return rec, nil
}

func joinValues(vals []any) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if s := Stringify(v); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

// Stringify renders a decoded JSON value as text.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case json.Number:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func singleInt(data any, mapping, path string) (int, bool, error) {
	v, ok, err := Single(data, mapping, path)
	if err != nil || !ok {
		return 0, ok, err
	}
	switch t := v.(type) {
	case int64:
		return int(t), true, nil
	case float64:
		return int(t), true, nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false, fmt.Errorf("mapping %s value %q is not a number", mapping, t)
		}
		return n, true, nil
	}
	return 0, false, fmt.Errorf("mapping %s matched a %T, expected a number", mapping, v)
}

func isEmptyDoc(data any) bool {
	switch t := data.(type) {
	case nil:
		return true
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	}
	return false
}
