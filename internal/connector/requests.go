// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/metasearch/internal/auth"
	"github.com/pdiddy/metasearch/internal/httputil"
	"github.com/pdiddy/metasearch/internal/mapping"
	"github.com/pdiddy/metasearch/internal/metrics"
	"github.com/pdiddy/metasearch/pkg/types"
)

// requestsConnector queries JSON HTTP APIs with GET or POST.
type requestsConnector struct {
	name   string
	method string
	cfg    types.ConnectorConfig
	client *http.Client
	logger *slog.Logger
}

func newRequestsGet(cfg types.ConnectorConfig, o options) Connector {
	return newRequests("RequestsGet", http.MethodGet, cfg, o)
}

func newRequestsPost(cfg types.ConnectorConfig, o options) Connector {
	return newRequests("RequestsPost", http.MethodPost, cfg, o)
}

func newRequests(name, method string, cfg types.ConnectorConfig, o options) *requestsConnector {
	client := o.client
	if client == nil {
		client = httputil.NewClient(cfg.HTTPConfig)
	}
	return &requestsConnector{name: name, method: method, cfg: cfg, client: client, logger: o.logger}
}

func (c *requestsConnector) Name() string { return c.name }

// Execute fetches up to PageCount pages and normalizes them. The first
// failure ends the dispatch; nothing is retried.
func (c *requestsConnector) Execute(ctx context.Context, req Request) Outcome {
	p := req.Provider
	out := Outcome{Status: types.ResultQuerying}

	base, warnings := ConstructQuery(p, req.Query, req.Sort, req.Credential)
	for _, w := range warnings {
		c.logger.Warn("query construction", "provider", p.Name, "warning", w)
		out.message("%v", w)
	}
	out.QueryToProvider = base
	if !ValidateQuery(base) {
		return out.fail(types.ResultErrConfiguration, fmt.Errorf("unbound placeholders in query %s", base))
	}

	pages := PageCount(p, c.cfg.MaxPages)
	limit := rate.Inf
	if c.cfg.PageDelay > 0 {
		limit = rate.Every(c.cfg.PageDelay)
	}
	pacer := rate.NewLimiter(limit, 1)

	for page := 0; page < pages; page++ {
		if err := pacer.Wait(ctx); err != nil {
			return out.fail(types.ResultErrTimeout, err)
		}

		q := base
		if frag := p.QueryMappings[types.MappingPage]; frag != "" {
			var err error
			if q, err = PageQuery(base, frag, page); err != nil {
				return out.fail(types.ResultErrConfiguration, err)
			}
		}
		if page == 0 {
			out.QueryToProvider = q
		}

		body, err := c.fetch(ctx, p, req, q)
		if err != nil {
			var se *StatusError
			switch {
			case errors.As(err, &se):
				return out.fail(types.ResultErrTransport, err)
			case httputil.IsTimeout(err):
				return out.fail(types.ResultErrTimeout, err)
			}
			var te *httputil.TransportError
			if errors.As(err, &te) {
				return out.fail(types.ResultErrTransport, err)
			}
			return out.fail(types.ResultErrConfiguration, err)
		}

		pg, err := normalize(body, p)
		if err != nil {
			c.logger.Warn("response mapping failed", "provider", p.Name, "err", err)
			if errors.Is(err, mapping.ErrNoResultsPath) || errors.Is(err, mapping.ErrBadPath) {
				return out.fail(types.ResultErrConfiguration, err)
			}
			return out.fail(types.ResultErrMapping, err)
		}
		for _, w := range pg.Warnings {
			out.message("%s", w)
		}
		if page == 0 {
			out.Found = pg.Found
		}
		for _, r := range pg.Records {
			r.Rank = len(out.Records) + 1
			out.Records = append(out.Records, r)
		}
		if len(pg.Records) < PageSize {
			break
		}
	}

	return finish(out, p)
}

func (c *requestsConnector) fetch(ctx context.Context, p types.Provider, req Request, q string) ([]byte, error) {
	build := func() (*http.Request, error) {
		var body io.Reader
		if c.method == http.MethodPost {
			body = strings.NewReader(postBody(p.PostTemplate, req.Query))
		}
		r, err := httputil.NewRequest(ctx, c.method, q, body)
		if err != nil {
			return nil, err
		}
		r.Header.Set("User-Agent", c.cfg.UserAgent)
		r.Header.Set("Accept", "application/json")
		if c.method == http.MethodPost {
			r.Header.Set("Content-Type", "application/json")
		}
		for k, v := range p.HTTPHeaders {
			r.Header.Set(k, v)
		}
		req.Credential.Apply(r)
		return r, nil
	}

	start := time.Now()
	defer func() {
		metrics.ProviderRequestDuration.WithLabelValues(c.name).Observe(time.Since(start).Seconds())
	}()

	r, err := build()
	if err != nil {
		return nil, err
	}
	resp, err := httputil.Do(ctx, c.client, r)
	if err != nil {
		return nil, err
	}

	if req.Credential.Kind == auth.KindDigest {
		if challenge, ok := auth.DigestChallenge(resp.StatusCode, resp.Header); ok {
			if r, err = build(); err != nil {
				return nil, err
			}
			if err := req.Credential.Digest(r, challenge); err != nil {
				return nil, err
			}
			if resp, err = httputil.Do(ctx, c.client, r); err != nil {
				return nil, err
			}
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}
	return resp.Body, nil
}

// postBody binds {query_string} in a JSON body template. The query is
// inserted JSON-escaped, without its surrounding quotes.
func postBody(template, query string) string {
	if template == "" {
		template = `{"query": "{query_string}"}`
	}
	b, _ := json.Marshal(query)
	return strings.ReplaceAll(template, "{query_string}", string(b[1:len(b)-1]))
}

func normalize(body []byte, p types.Provider) (mapping.Page, error) {
	data, err := mapping.Decode(body)
	if err != nil {
		return mapping.Page{}, err
	}
	return mapping.Normalize(data, p.ResponseMappings, p.ResultMappings)
}

// finish trims to the provider's requested count and marks the outcome ready.
func finish(out Outcome, p types.Provider) Outcome {
	if p.ResultsPerQuery > 0 && len(out.Records) > p.ResultsPerQuery {
		out.Records = out.Records[:p.ResultsPerQuery]
	}
	out.Retrieved = len(out.Records)
	if out.Found < out.Retrieved {
		out.Found = out.Retrieved
	}
	out.Status = types.ResultReady
	return out
}
