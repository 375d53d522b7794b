// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the HTTP transport used by connectors.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/pdiddy/metasearch/pkg/types"
)

// MaxBodyBytes caps how much of a response body is read. Tests may lower it.
var MaxBodyBytes int64 = 16 << 20

// ErrBodyTooLarge is returned when a response exceeds MaxBodyBytes.
var ErrBodyTooLarge = errors.New("response body too large")

// ErrorKind classifies a transport failure.
type ErrorKind string

const (
	KindTimeout    ErrorKind = "timeout"
	KindDNS        ErrorKind = "dns"
	KindConnection ErrorKind = "connection"
	KindInvalidURL ErrorKind = "invalid_url"
	KindRead       ErrorKind = "read"
)

// TransportError is a request that produced no usable HTTP response.
type TransportError struct {
	Kind ErrorKind
	URL  string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s error requesting %s: %v", e.Kind, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Response is an HTTP response with its body fully read.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
}

// NewClient returns a client honoring cfg.Timeout.
func NewClient(cfg types.HTTPConfig) *http.Client {
	return &http.Client{Timeout: cfg.Timeout}
}

// NewRequest builds a request for u. A URL that does not parse is reported
// as a KindInvalidURL transport failure.
func NewRequest(ctx context.Context, method, u string, body io.Reader) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, &TransportError{Kind: KindInvalidURL, URL: u, Err: err}
		}
		return nil, fmt.Errorf("creating request: %w", err)
	}
	return r, nil
}

// Do executes req once and reads the body. Requests are never retried:
// the caller decides what a failure means for its work unit.
func Do(ctx context.Context, client *http.Client, req *http.Request) (*Response, error) {
	resp, err := client.Do(req.Clone(ctx))
	if err != nil {
		return nil, classify(req.URL.String(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, classify(req.URL.String(), err)
	}
	if int64(len(body)) > MaxBodyBytes {
		return nil, &TransportError{Kind: KindRead, URL: req.URL.String(), Err: ErrBodyTooLarge}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

func classify(u string, err error) *TransportError {
	var (
		dnsErr *net.DNSError
		netErr net.Error
		urlErr *url.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &TransportError{Kind: KindTimeout, URL: u, Err: err}
	case errors.As(err, &dnsErr):
		return &TransportError{Kind: KindDNS, URL: u, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &TransportError{Kind: KindTimeout, URL: u, Err: err}
	case errors.As(err, &urlErr) && urlErr.Op == "parse":
		return &TransportError{Kind: KindInvalidURL, URL: u, Err: err}
	}
	return &TransportError{Kind: KindConnection, URL: u, Err: err}
}

// IsTimeout reports whether err is a transport timeout.
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == KindTimeout
}
