// Package request turns an incoming *http.Request into the document handed
// to a function.
package request

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// Authority is the value of the ":authority" marker header added to every
// normalized request.
const Authority = "fleet"

// Request is the normalized form of an incoming request.
type Request struct {
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	URL     string            `json:"url"`
	IP      string            `json:"ip"`
	Headers map[string]string `json:"headers"`
	Query   map[string]any    `json:"query"`
	Body    string            `json:"body"`
}

// Normalize buffers the whole body and returns the normalized request.
func Normalize(r *http.Request) (*Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	var path, rawURL string
	query := map[string]any{}
	if r.URL != nil {
		// Matching runs on the escaped form so an encoded slash stays inside
		// one segment.
		path = r.URL.EscapedPath()
		rawURL = r.URL.RequestURI()
		// url.Values is already percent-decoded.
		for k, vs := range r.URL.Query() {
			if len(vs) == 1 {
				query[k] = decodeValue(vs[0])
				continue
			}
			list := make([]any, len(vs))
			for i, v := range vs {
				list[i] = decodeValue(v)
			}
			query[k] = list
		}
	}

	var body string
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		body = string(b)
	}

	return &Request{
		Method:  method,
		Path:    path,
		URL:     rawURL,
		IP:      remoteIP(r.RemoteAddr),
		Headers: headers(r),
		Query:   query,
		Body:    body,
	}, nil
}

// decodeValue parses bracket- or brace-delimited values as JSON and keeps the
// raw string when that fails.
func decodeValue(v string) any {
	if !looksLikeJSON(v) {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return v
	}
	return out
}

func looksLikeJSON(v string) bool {
	v = strings.TrimSpace(v)
	if len(v) < 2 {
		return false
	}
	first, last := v[0], v[len(v)-1]
	return (first == '[' && last == ']') || (first == '{' && last == '}')
}

func headers(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header)+2)
	for k, vs := range r.Header {
		k = strings.ToLower(k)
		sep := ", "
		if k == "cookie" {
			sep = "; "
		}
		out[k] = strings.Join(vs, sep)
	}
	// net/http moves Host out of the header map.
	if r.Host != "" {
		out["host"] = r.Host
	}
	out[":authority"] = Authority
	return out
}

func remoteIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
