// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package auth parses provider credential strings into a closed set of
// schemes and applies them to outgoing requests.
//
// Accepted forms:
//
//	HTTPBasicAuth('user','pass')
//	HTTPDigestAuth('user','pass')
//	HTTPProxyAuth('user','pass')
//	bearer=<token>
//	X-Api-Key=<key>
//	key=value[,key=value]   (bound into {key} query template placeholders)
//	<value>                 (bound into {credentials})
//
// Any form may contain the {credentials} placeholder, which is replaced by a
// session value when a dispatch binds the credential.
package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Kind is the credential scheme.
type Kind string

const (
	KindNone     Kind = ""
	KindBasic    Kind = "basic"
	KindDigest   Kind = "digest"
	KindProxy    Kind = "proxy"
	KindBearer   Kind = "bearer"
	KindAPIKey   Kind = "api_key"
	KindTemplate Kind = "template"
)

// SessionPlaceholder marks a credential value supplied per dispatch.
const SessionPlaceholder = "{credentials}"

var (
	// ErrMalformed is returned for constructor syntax that cannot be parsed.
	ErrMalformed = errors.New("malformed credentials")
	// ErrUnknownScheme is returned for a constructor name outside the known set.
	ErrUnknownScheme = errors.New("unknown credential scheme")
	// ErrSessionMissing is returned when a session-bound credential has no
	// value in the session context.
	ErrSessionMissing = errors.New("session credential not available")
)

var (
	constructorRE = regexp.MustCompile(`^([A-Z][a-zA-Z0-9_]*)\((.*)\)$`)
	openCallRE    = regexp.MustCompile(`^[A-Z][a-zA-Z0-9_]*\(`)
)

var constructors = map[string]Kind{
	"HTTPBasicAuth":  KindBasic,
	"HTTPDigestAuth": KindDigest,
	"HTTPProxyAuth":  KindProxy,
}

// Credential is a parsed credential. Args holds user and password for the
// constructor schemes, the token for bearer and api_key, and key=value
// pairs for template credentials.
type Credential struct {
	Kind Kind
	Args []string
}

// Parse converts a provider credential string into a Credential.
func Parse(raw string) (Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Credential{}, nil
	}

	if m := constructorRE.FindStringSubmatch(raw); m != nil {
		kind, ok := constructors[m[1]]
		if !ok {
			return Credential{}, fmt.Errorf("%w: %s", ErrUnknownScheme, m[1])
		}
		args, err := splitQuoted(m[2])
		if err != nil {
			return Credential{}, fmt.Errorf("%w: %s: %v", ErrMalformed, m[1], err)
		}
		if len(args) != 2 {
			return Credential{}, fmt.Errorf("%w: %s expects 2 arguments, got %d", ErrMalformed, m[1], len(args))
		}
		return Credential{Kind: kind, Args: args}, nil
	}
	if openCallRE.MatchString(raw) {
		return Credential{}, fmt.Errorf("%w: %q", ErrMalformed, raw)
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "bearer="):
		return Credential{Kind: KindBearer, Args: []string{raw[len("bearer="):]}}, nil
	case strings.HasPrefix(lower, "x-api-key="):
		return Credential{Kind: KindAPIKey, Args: []string{raw[len("x-api-key="):]}}, nil
	}

	if !strings.Contains(raw, "=") {
		return Credential{Kind: KindTemplate, Args: []string{"credentials=" + raw}}, nil
	}
	var pairs []string
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		k, _, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return Credential{}, fmt.Errorf("%w: template pair %q", ErrMalformed, p)
		}
		pairs = append(pairs, p)
	}
	return Credential{Kind: KindTemplate, Args: pairs}, nil
}

// splitQuoted parses a comma-separated list of single or double quoted strings.
func splitQuoted(s string) ([]string, error) {
	var out []string
	i := 0
	for {
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			break
		}
		q := s[i]
		if q != '\'' && q != '"' {
			return nil, fmt.Errorf("expected quote at offset %d", i)
		}
		end := strings.IndexByte(s[i+1:], q)
		if end < 0 {
			return nil, fmt.Errorf("unterminated string at offset %d", i)
		}
		out = append(out, s[i+1:i+1+end])
		i += end + 2
		for i < len(s) && s[i] == ' ' {
			i++
		}
		if i >= len(s) {
			break
		}
		if s[i] != ',' {
			return nil, fmt.Errorf("expected comma at offset %d", i)
		}
		i++
	}
	return out, nil
}

// SessionBound reports whether the credential needs a session value.
func (c Credential) SessionBound() bool {
	for _, a := range c.Args {
		if strings.Contains(a, SessionPlaceholder) {
			return true
		}
	}
	return false
}

// Bind returns a copy with {credentials} replaced by session[key]. The
// receiver is not modified.
func (c Credential) Bind(session map[string]string, key string) (Credential, error) {
	out := Credential{Kind: c.Kind, Args: append([]string(nil), c.Args...)}
	if !c.SessionBound() {
		return out, nil
	}
	v, ok := session[key]
	if key == "" || !ok {
		return Credential{}, fmt.Errorf("%w: %q", ErrSessionMissing, key)
	}
	for i, a := range out.Args {
		out.Args[i] = strings.ReplaceAll(a, SessionPlaceholder, v)
	}
	return out, nil
}

// QueryBindings returns the template placeholders supplied by a template
// credential.
func (c Credential) QueryBindings() map[string]string {
	if c.Kind != KindTemplate {
		return nil
	}
	m := make(map[string]string, len(c.Args))
	for _, p := range c.Args {
		k, v, _ := strings.Cut(p, "=")
		m[k] = v
	}
	return m
}

// Apply sets the request headers for the credential. Digest credentials
// add nothing here; they answer a server challenge (see Digest).
func (c Credential) Apply(req *http.Request) {
	switch c.Kind {
	case KindBasic:
		req.SetBasicAuth(c.Args[0], c.Args[1])
	case KindProxy:
		token := base64.StdEncoding.EncodeToString([]byte(c.Args[0] + ":" + c.Args[1]))
		req.Header.Set("Proxy-Authorization", "Basic "+token)
	case KindBearer:
		req.Header.Set("Authorization", "Bearer "+c.Args[0])
	case KindAPIKey:
		req.Header.Set("X-Api-Key", c.Args[0])
	}
}

// String renders the credential without secrets, for logs.
func (c Credential) String() string {
	if c.Kind == KindNone {
		return "none"
	}
	return string(c.Kind) + "(***)"
}
