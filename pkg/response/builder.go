// Package response builds the HTTP response for one function invocation.
//
// A Builder is open until the first successful Send and sent afterwards;
// every later Send is ignored.
package response

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fleetfn/fleet-dev/pkg/codec"
)

const (
	ContentTypeJSON  = "application/json; charset=utf-8"
	ContentTypePlain = "text/plain; charset=utf-8"
	ContentTypeOctet = "application/octet-stream"
)

const setCookie = "set-cookie"

// Serializer turns a structured value into the response body.
type Serializer func(v any) ([]byte, error)

// PreSendHook runs with the final body right before it is written.
type PreSendHook func(body []byte) error

// Builder is not safe for concurrent use; one handler owns it.
type Builder struct {
	w http.ResponseWriter

	status   int
	explicit bool
	headers  map[string][]string
	order    []string

	serializer Serializer
	preSend    PreSendHook

	sent    bool
	written bool
}

func New(w http.ResponseWriter) *Builder {
	return &Builder{
		w:       w,
		status:  http.StatusOK,
		headers: make(map[string][]string),
	}
}

// SetStatus records code as the explicit status.
func (b *Builder) SetStatus(code int) error {
	// 1xx codes are informational and cannot end a response.
	if code < http.StatusOK || !validStatus(code) {
		return fmt.Errorf("%w: %d", ErrInvalidStatusCode, code)
	}
	b.status = code
	b.explicit = true
	return nil
}

func (b *Builder) Status() int { return b.status }

// Get returns the first value for key.
func (b *Builder) Get(key string) string {
	if vs := b.headers[strings.ToLower(key)]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (b *Builder) Values(key string) []string {
	return b.headers[strings.ToLower(key)]
}

func (b *Builder) Has(key string) bool {
	_, ok := b.headers[strings.ToLower(key)]
	return ok
}

// Set replaces the values for key, except for set-cookie which accumulates.
func (b *Builder) Set(key string, values ...string) {
	k := strings.ToLower(key)
	if len(values) == 0 {
		values = []string{""}
	}
	cur, ok := b.headers[k]
	if !ok {
		b.order = append(b.order, k)
	}
	if ok && k == setCookie {
		b.headers[k] = append(cur, values...)
		return
	}
	b.headers[k] = append([]string(nil), values...)
}

func (b *Builder) SetHeaders(h http.Header) {
	for k, vs := range h {
		b.Set(k, vs...)
	}
}

func (b *Builder) Remove(key string) {
	k := strings.ToLower(key)
	if _, ok := b.headers[k]; !ok {
		return
	}
	delete(b.headers, k)
	for i, o := range b.order {
		if o == k {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Type sets the content-type header.
func (b *Builder) Type(contentType string) { b.Set("content-type", contentType) }

func (b *Builder) Serializer(s Serializer) { b.serializer = s }

func (b *Builder) PreSend(h PreSendHook) { b.preSend = h }

// Sent reports whether a Send has completed.
func (b *Builder) Sent() bool { return b.sent }

// Written reports whether the status line went to the connection.
func (b *Builder) Written() bool { return b.written }

// Redirect sends an empty body with a location header. A zero code uses the
// explicit status when one was set, else 302.
func (b *Builder) Redirect(url string, code int) error {
	if code == 0 {
		code = http.StatusFound
		if b.explicit {
			code = b.status
		}
	}
	if err := b.SetStatus(code); err != nil {
		return err
	}
	b.Set("location", url)
	return b.Send(Text(""))
}

// Send writes p. Calls after the first successful Send are no-ops.
func (b *Builder) Send(p Payload) error {
	if b.sent {
		return nil
	}

	switch p.kind {
	case KindError:
		return b.sendError(p.err)
	case KindEmpty:
		return b.sendEmpty()
	case KindStream:
		return ErrNotSupported
	case KindBytes:
		if !b.Has("content-type") {
			b.Set("content-type", ContentTypeOctet)
		}
		return b.sendEnd(p.bytes)
	case KindText:
		if !b.Has("content-type") {
			b.Set("content-type", ContentTypePlain)
		}
		return b.sendEnd([]byte(p.text))
	case KindValue:
		if isNull(p.value) {
			return b.sendEmpty()
		}
		return b.sendValue(p.value)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidPayloadType, p.kind)
	}
}

func (b *Builder) sendValue(v any) error {
	if b.serializer != nil {
		out, err := b.serializer(v)
		if err != nil {
			return fmt.Errorf("serialize: %w", err)
		}
		return b.Send(Text(string(out)))
	}

	ct := b.Get("content-type")
	switch {
	case ct == "":
		b.Set("content-type", codec.JSON.ContentType())
	case strings.Contains(ct, "application/json") && !strings.Contains(ct, "charset"):
		b.Set("content-type", codec.JSON.ContentType())
	}

	out, err := codec.JSON.Marshal(v)
	if err != nil {
		return fmt.Errorf("serialize: %w", err)
	}
	return b.sendEnd(out)
}

// isNull reports values that serialize to JSON null and take the empty path.
func isNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case json.RawMessage:
		return len(bytes.TrimSpace(x)) == 0 || bytes.Equal(bytes.TrimSpace(x), []byte("null"))
	}
	return false
}

func (b *Builder) sendError(err error) error {
	status := errorStatus(b.status, err)
	b.status = status

	var h headerer
	if errors.As(err, &h) {
		b.SetHeaders(h.Headers())
	}

	body := errorBody{
		Error:      http.StatusText(status),
		StatusCode: status,
	}
	if err != nil {
		body.Message = err.Error()
	}
	var c coder
	if errors.As(err, &c) {
		body.Code = c.Code()
	}

	out, mErr := codec.JSON.Marshal(body)
	if mErr != nil {
		return fmt.Errorf("serialize error: %w", mErr)
	}
	b.Set("content-type", codec.JSON.ContentType())
	return b.sendEnd(out)
}

func (b *Builder) sendEmpty() error {
	if b.status >= 200 && b.status < 300 && b.status != http.StatusNoContent {
		b.Set("content-length", "0")
	}
	return b.flush(nil)
}

func (b *Builder) sendEnd(body []byte) error {
	if !b.Has("content-length") {
		b.Set("content-length", strconv.Itoa(len(body)))
	}
	return b.flush(body)
}

func (b *Builder) flush(body []byte) error {
	b.sent = true
	if b.preSend != nil {
		if err := b.preSend(body); err != nil {
			return fmt.Errorf("pre-send: %w", err)
		}
	}

	dst := b.w.Header()
	for _, k := range b.order {
		dst[http.CanonicalHeaderKey(k)] = b.headers[k]
	}
	b.w.WriteHeader(b.status)
	b.written = true
	// A peer that went away turns the write into a no-op.
	if len(body) > 0 {
		_, _ = b.w.Write(body)
	}
	return nil
}
