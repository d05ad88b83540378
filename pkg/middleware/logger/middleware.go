package logger

import (
	"bytes"
	"io"
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Middleware writes one access line per request.
type Middleware struct {
	log *zap.Logger
}

func NewMiddleware(l *zap.Logger) *Middleware {
	if l == nil {
		l = zap.NewNop()
	}
	return &Middleware{log: l}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)

		// Read and restore the body for allowlisted routes only.
		var body []byte
		if r.Body != nil && bodyLogCandidate(r) {
			if b, err := io.ReadAll(r.Body); err == nil {
				body = b
			}
			r.Body.Close()
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}

		start := time.Now()
		defer func() {
			log := m.log.With(
				zap.String("dateTime", start.UTC().Format(time.RFC1123)),
				zap.String("requestId", chimd.GetReqID(r.Context())),
				zap.String("httpScheme", scheme),
				zap.String("httpProto", r.Proto),
				zap.String("httpMethod", r.Method),
				zap.String("remoteAddr", r.RemoteAddr),
				zap.String("uri", r.URL.Path),
				zap.Duration("lat", time.Since(start)),
				zap.Int("responseSize", ww.BytesWritten()),
				zap.Int("status", status(ww)),
			)

			if shouldLogBody(r, body) {
				log.Info("", zap.ByteString("requestData", body))
			} else {
				log.Info("")
			}
		}()

		next.ServeHTTP(ww, r)
	})
}

// status reports 200 for handlers that wrote without an explicit header.
func status(ww chimd.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}
