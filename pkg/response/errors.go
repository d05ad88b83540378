package response

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidStatusCode  = errors.New("invalid status code")
	ErrNotSupported       = errors.New("stream payloads are not supported, buffer the body first")
	ErrInvalidPayloadType = errors.New("invalid payload type")
)

// Error is an error that controls how the error send path answers.
type Error struct {
	status  int
	code    string
	msg     string
	headers http.Header
}

func NewError(status int, code, msg string) *Error {
	return &Error{status: status, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) StatusCode() int { return e.status }

func (e *Error) Code() string { return e.code }

func (e *Error) Headers() http.Header { return e.headers }

// WithHeader adds a header sent along with the error body.
func (e *Error) WithHeader(key, value string) *Error {
	if e.headers == nil {
		e.headers = http.Header{}
	}
	e.headers.Add(key, value)
	return e
}

type (
	statusCoder interface{ StatusCode() int }
	statuser    interface{ Status() int }
	coder       interface{ Code() string }
	headerer    interface{ Headers() http.Header }
)

// errorBody is the JSON document written by the error send path.
type errorBody struct {
	Error      string `json:"error"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func errorStatus(current int, err error) int {
	if current >= 400 {
		return current
	}
	var s statuser
	if errors.As(err, &s) && s.Status() >= 400 && validStatus(s.Status()) {
		return s.Status()
	}
	var sc statusCoder
	if errors.As(err, &sc) && sc.StatusCode() >= 400 && validStatus(sc.StatusCode()) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}

func validStatus(code int) bool { return http.StatusText(code) != "" }
