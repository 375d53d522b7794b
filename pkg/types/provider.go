// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Control keys of Provider.QueryMappings. Every other key binds a
// {placeholder} of the query template.
const (
	MappingDateSort      = "DATE_SORT"
	MappingRelevancySort = "RELEVANCY_SORT"
	MappingPage          = "PAGE"
)

// Keys of Provider.ResponseMappings.
const (
	MappingFound     = "FOUND"
	MappingRetrieved = "RETRIEVED"
	MappingResults   = "RESULTS"
	MappingResult    = "RESULT"
)

// Provider is the configuration of one search source.
type Provider struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Connector string `json:"connector" yaml:"connector"`
	URL       string `json:"url" yaml:"url"`

	// QueryTemplate is the request URL (or SQL statement) with
	// {placeholders} bound at dispatch time.
	QueryTemplate string `json:"query_template" yaml:"query_template"`

	// PostTemplate is the JSON body template for POST connectors.
	PostTemplate string `json:"post_template,omitempty" yaml:"post_template,omitempty"`

	QueryMappings    map[string]string `json:"query_mappings,omitempty" yaml:"query_mappings,omitempty"`
	ResponseMappings map[string]string `json:"response_mappings,omitempty" yaml:"response_mappings,omitempty"`

	// ResultMappings maps record fields (title, body, url, author,
	// date_published, or any payload key) to paths within one result item.
	ResultMappings map[string]string `json:"result_mappings,omitempty" yaml:"result_mappings,omitempty"`

	Credentials     string            `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	EvalCredentials string            `json:"eval_credentials,omitempty" yaml:"eval_credentials,omitempty"`
	HTTPHeaders     map[string]string `json:"http_headers,omitempty" yaml:"http_headers,omitempty"`

	ResultsPerQuery int      `json:"results_per_query" yaml:"results_per_query"`
	Default         bool     `json:"default" yaml:"default"`
	Tags            []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	Active          bool     `json:"active" yaml:"active"`
	Owner           string   `json:"owner" yaml:"owner"`
	Shared          bool     `json:"shared" yaml:"shared"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Clone returns a deep copy so a dispatch can bind session state without
// touching the stored configuration.
func (p Provider) Clone() Provider {
	c := p
	c.QueryMappings = cloneMap(p.QueryMappings)
	c.ResponseMappings = cloneMap(p.ResponseMappings)
	c.ResultMappings = cloneMap(p.ResultMappings)
	c.HTTPHeaders = cloneMap(p.HTTPHeaders)
	c.Tags = append([]string(nil), p.Tags...)
	return c
}

// HasTag reports whether the provider carries tag (case-insensitive).
func (p Provider) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if equalFold(t, tag) {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe to show to viewer: credentials are removed
// unless viewer owns the provider.
func (p Provider) Redacted(viewer string) Provider {
	c := p.Clone()
	if viewer != p.Owner {
		c.Credentials = ""
		c.EvalCredentials = ""
	}
	return c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
