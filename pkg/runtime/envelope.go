package runtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/fleetfn/fleet-dev/pkg/response"
)

// Envelope is the document an artifact writes to stdout to describe its
// response.
type Envelope struct {
	Status   int                    `json:"status,omitempty"`
	Headers  map[string]HeaderValue `json:"headers,omitempty"`
	Redirect *Redirect              `json:"redirect,omitempty"`
	Payload  *Payload               `json:"payload,omitempty"`
}

type Redirect struct {
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
}

type Payload struct {
	Kind  string          `json:"kind"`
	Text  string          `json:"text,omitempty"`
	Bytes []byte          `json:"bytes,omitempty"`
	JSON  json.RawMessage `json:"json,omitempty"`
	Error *ErrorPayload   `json:"error,omitempty"`
}

type ErrorPayload struct {
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Status     int                    `json:"status,omitempty"`
	StatusCode int                    `json:"statusCode,omitempty"`
	Headers    map[string]HeaderValue `json:"headers,omitempty"`
}

// HeaderValue accepts a string or a list of strings.
type HeaderValue []string

func (h *HeaderValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var list []string
		if err := json.Unmarshal(b, &list); err != nil {
			return err
		}
		*h = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("header value must be a string or a list of strings")
	}
	*h = HeaderValue{s}
	return nil
}

// Apply replays the envelope onto res: headers, status, then redirect or
// payload.
func (e *Envelope) Apply(res *response.Builder) error {
	keys := make([]string, 0, len(e.Headers))
	for k := range e.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		res.Set(k, e.Headers[k]...)
	}

	if e.Status != 0 {
		if err := res.SetStatus(e.Status); err != nil {
			return err
		}
	}

	if e.Redirect != nil {
		return res.Redirect(e.Redirect.URL, e.Redirect.Status)
	}

	p, err := e.Payload.toResponse()
	if err != nil {
		return err
	}
	return res.Send(p)
}

func (p *Payload) toResponse() (response.Payload, error) {
	if p == nil {
		return response.Empty(), nil
	}
	kind, err := response.ParseKind(p.Kind)
	if err != nil {
		return response.Payload{}, err
	}
	switch kind {
	case response.KindText:
		return response.Text(p.Text), nil
	case response.KindBytes:
		return response.Bytes(p.Bytes), nil
	case response.KindValue:
		if len(p.JSON) == 0 || string(p.JSON) == "null" {
			return response.Empty(), nil
		}
		return response.Value(p.JSON), nil
	case response.KindError:
		if p.Error == nil {
			return response.Err(&envelopeError{}), nil
		}
		return response.Err(&envelopeError{p: *p.Error}), nil
	case response.KindStream:
		return response.Stream(bytes.NewReader(nil)), nil
	default:
		return response.Empty(), nil
	}
}

// envelopeError exposes an ErrorPayload to the error send path.
type envelopeError struct{ p ErrorPayload }

func (e *envelopeError) Error() string   { return e.p.Message }
func (e *envelopeError) Status() int     { return e.p.Status }
func (e *envelopeError) StatusCode() int { return e.p.StatusCode }
func (e *envelopeError) Code() string    { return e.p.Code }

func (e *envelopeError) Headers() http.Header {
	if len(e.p.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(e.p.Headers))
	for k, v := range e.p.Headers {
		h[k] = v
	}
	return h
}
