// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package auth

import (
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// DigestChallenge reports whether a response with the given status and
// headers asks for digest authentication, returning the challenge parameters.
func DigestChallenge(status int, header http.Header) (map[string]string, bool) {
	if status != http.StatusUnauthorized {
		return nil, false
	}
	h := header.Get("WWW-Authenticate")
	if len(h) < 7 || !strings.EqualFold(h[:7], "Digest ") {
		return nil, false
	}
	return parseChallenge(h[7:]), true
}

func parseChallenge(s string) map[string]string {
	params := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ,")
		k, rest, ok := strings.Cut(s, "=")
		if !ok {
			break
		}
		k = strings.ToLower(strings.TrimSpace(k))
		var v string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				v, s = rest[1:], ""
			} else {
				v, s = rest[1:1+end], rest[end+2:]
			}
		} else {
			v, s, _ = strings.Cut(rest, ",")
		}
		params[k] = strings.TrimSpace(v)
	}
	return params
}

// Digest answers a digest challenge for req (RFC 2617, MD5, qop=auth) and
// sets the Authorization header. c must be a digest credential.
func (c Credential) Digest(req *http.Request, challenge map[string]string) error {
	if c.Kind != KindDigest {
		return fmt.Errorf("%w: %s is not a digest credential", ErrMalformed, c)
	}
	if alg := challenge["algorithm"]; alg != "" && !strings.EqualFold(alg, "MD5") {
		return fmt.Errorf("%w: digest algorithm %s", ErrUnknownScheme, alg)
	}

	user, pass := c.Args[0], c.Args[1]
	realm, nonce := challenge["realm"], challenge["nonce"]
	uri := req.URL.RequestURI()

	ha1 := md5hex(user + ":" + realm + ":" + pass)
	ha2 := md5hex(req.Method + ":" + uri)

	qop := ""
	for _, q := range strings.Split(challenge["qop"], ",") {
		if strings.TrimSpace(q) == "auth" {
			qop = "auth"
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, user, realm, nonce, uri)
	if qop != "" {
		cnonce, err := newCnonce()
		if err != nil {
			return err
		}
		const nc = "00000001"
		resp := md5hex(strings.Join([]string{ha1, nonce, nc, cnonce, qop, ha2}, ":"))
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s", response="%s"`, qop, nc, cnonce, resp)
	} else {
		fmt.Fprintf(&b, `, response="%s"`, md5hex(ha1+":"+nonce+":"+ha2))
	}
	if op := challenge["opaque"]; op != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, op)
	}
	req.Header.Set("Authorization", b.String())
	return nil
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCnonce() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating cnonce: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
