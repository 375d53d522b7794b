// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package connector turns a provider configuration and a query into a
// normalized Result. Each connector type (RequestsGet, RequestsPost,
// Sqlite3) implements Connector; New selects one by the provider's tag.
package connector

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"

	"github.com/pdiddy/metasearch/internal/auth"
	"github.com/pdiddy/metasearch/internal/mapping"
	"github.com/pdiddy/metasearch/pkg/types"
)

// Connector executes one provider query.
type Connector interface {
	Name() string
	Execute(ctx context.Context, req Request) Outcome
}

// Request is everything one dispatch needs. Provider is a private copy and
// Credential is already bound to the caller's session.
type Request struct {
	Provider   types.Provider
	Credential auth.Credential
	Query      string
	Sort       string
}

// Outcome is what a connector produced for one provider.
type Outcome struct {
	Status          types.ResultStatus
	Found           int
	Retrieved       int
	QueryToProvider string
	Records         []types.Record
	Messages        []string
}

func (o *Outcome) message(format string, args ...any) {
	o.Messages = append(o.Messages, fmt.Sprintf(format, args...))
}

func (o Outcome) fail(status types.ResultStatus, err error) Outcome {
	o.Status = status
	o.message("%v", err)
	return o
}

// Option configures a connector.
type Option func(*options)

type options struct {
	logger *slog.Logger
	client *http.Client
}

// WithLogger sets the logger used for warnings.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

type factory func(cfg types.ConnectorConfig, o options) Connector

var registry = map[string]factory{
	"RequestsGet":  newRequestsGet,
	"RequestsPost": newRequestsPost,
	"Sqlite3":      newSqlite3,
}

// Names returns the registered connector tags.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the connector registered under name.
func New(name string, cfg types.ConnectorConfig, opts ...Option) (Connector, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownConnector, name)
	}
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With("component", "connector", "connector", name)
	return f(cfg, o), nil
}

// Validate checks a provider configuration at save time: a known connector,
// parseable credentials, and compilable response mappings.
func Validate(p types.Provider) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProvider)
	}
	if _, ok := registry[p.Connector]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownConnector, p.Connector)
	}
	if p.QueryTemplate == "" {
		return fmt.Errorf("%w: %s has no query template", ErrInvalidProvider, p.Name)
	}
	if _, err := auth.Parse(p.Credentials); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidProvider, p.Name, err)
	}
	for _, m := range []map[string]string{p.ResponseMappings, p.ResultMappings} {
		for k, path := range m {
			if path == "" {
				continue
			}
			if _, err := mapping.Compile(path); err != nil {
				return fmt.Errorf("%w: %s mapping %s: %v", ErrInvalidProvider, p.Name, k, err)
			}
		}
	}
	if frag := p.QueryMappings[types.MappingPage]; frag != "" {
		if _, err := PageQuery("", frag, 0); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidProvider, p.Name, err)
		}
	}
	return nil
}
