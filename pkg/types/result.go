// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strings"
	"time"
)

// ResultStatus is the state of one provider's Result.
type ResultStatus string

const (
	ResultQuerying         ResultStatus = "QUERYING"
	ResultReady            ResultStatus = "READY"
	ResultErrConfiguration ResultStatus = "ERR_CONFIGURATION"
	ResultErrTransport     ResultStatus = "ERR_TRANSPORT"
	ResultErrMapping       ResultStatus = "ERR_MAPPING"
	ResultErrTimeout       ResultStatus = "ERR_TIMEOUT"
)

// IsError reports whether the provider failed.
func (s ResultStatus) IsError() bool { return strings.HasPrefix(string(s), errPrefix) }

// Result is the normalized output of one provider for one search dispatch.
type Result struct {
	ID              string       `json:"id" yaml:"id"`
	SearchID        string       `json:"search_id" yaml:"search_id"`
	ProviderID      string       `json:"provider_id" yaml:"provider_id"`
	ProviderName    string       `json:"provider_name" yaml:"provider_name"`
	Generation      int64        `json:"generation" yaml:"generation"`
	Status          ResultStatus `json:"status" yaml:"status"`
	Found           int          `json:"found" yaml:"found"`
	Retrieved       int          `json:"retrieved" yaml:"retrieved"`
	QueryToProvider string       `json:"query_to_provider,omitempty" yaml:"query_to_provider,omitempty"`
	Records         []Record     `json:"records,omitempty" yaml:"records,omitempty"`
	Messages        []string     `json:"messages,omitempty" yaml:"messages,omitempty"`
	CreatedAt       time.Time    `json:"created_at" yaml:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" yaml:"updated_at"`
}

// Record is one normalized candidate returned by a provider.
type Record struct {
	Title         string         `json:"title" yaml:"title"`
	Body          string         `json:"body" yaml:"body"`
	URL           string         `json:"url" yaml:"url"`
	Author        string         `json:"author,omitempty" yaml:"author,omitempty"`
	DatePublished string         `json:"date_published,omitempty" yaml:"date_published,omitempty"`
	Score         float64        `json:"score" yaml:"score"`
	Rank          int            `json:"rank" yaml:"rank"`
	Highlights    []string       `json:"highlights,omitempty" yaml:"highlights,omitempty"`
	Explain       *Explain       `json:"explain,omitempty" yaml:"explain,omitempty"`
	Payload       map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
	DuplicateOf   string         `json:"duplicate_of,omitempty" yaml:"duplicate_of,omitempty"`
	Read          bool           `json:"read" yaml:"read"`
}

// Explain describes how a record's score was computed.
type Explain struct {
	// Matches lists the matched query terms (and term_term bigrams) per field.
	Matches    map[string][]string `json:"matches,omitempty" yaml:"matches,omitempty"`
	Similarity float64             `json:"similarity" yaml:"similarity"`
	Boosts     []string            `json:"boosts,omitempty" yaml:"boosts,omitempty"`
}

// Field returns the value of a named record field.
func (r *Record) Field(name string) string {
	switch name {
	case "title":
		return r.Title
	case "body":
		return r.Body
	case "url":
		return r.URL
	case "author":
		return r.Author
	case "date_published":
		return r.DatePublished
	}
	return ""
}

// SetField assigns a named record field, reporting false for names that
// are not record fields.
func (r *Record) SetField(name, value string) bool {
	switch name {
	case "title":
		r.Title = value
	case "body":
		r.Body = value
	case "url":
		r.URL = value
	case "author":
		r.Author = value
	case "date_published":
		r.DatePublished = value
	default:
		return false
	}
	return true
}

func equalFold(a, b string) bool { return strings.EqualFold(a, b) }
