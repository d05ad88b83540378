package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T) string {
	t.Helper()
	w := httptest.NewRecorder()
	NewPromHttpHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, MetricsPath, nil))
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestCollectUsesNormalizedPath(t *testing.T) {
	SetPathNormalizer(func(r *http.Request) string {
		if r.URL.Path == "/users/123" {
			return "/users/:id"
		}
		return r.URL.Path
	})
	t.Cleanup(func() { SetPathNormalizer(func(r *http.Request) string { return r.URL.Path }) })

	h := Collect()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/123", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, MetricsPath, nil))

	body := scrape(t)
	assert.Contains(t, body, `fleet_http_requests_to_uri_total{code="418",method="GET",uri="/users/:id"} 1`)
	assert.NotContains(t, body, `uri="/__fleet/metrics"`)
}

func TestRecorder(t *testing.T) {
	rec := ProvideRecorder()
	rec.Invocation("hello", "ok", 20*time.Millisecond)
	rec.Invocation("hello", "error", time.Millisecond)
	rec.BuildWait(time.Second, errors.New("timeout"))
	rec.Build(nil)
	rec.Reload(errors.New("bad yaml"))

	body := scrape(t)
	assert.Contains(t, body, `fleet_function_invocations_total{function="hello",outcome="ok"} 1`)
	assert.Contains(t, body, `fleet_function_invocations_total{function="hello",outcome="error"} 1`)
	assert.Contains(t, body, `fleet_build_wait_seconds_count{outcome="error"} 1`)
	assert.Contains(t, body, `fleet_builds_total{result="ok"} 1`)
	assert.Contains(t, body, `fleet_config_reloads_total{result="error"} 1`)
}

func TestAddMetricsSkipPaths(t *testing.T) {
	AddMetricsSkipPaths(" /healthz ", "")

	h := Collect()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/counted", nil))

	body := scrape(t)
	assert.NotContains(t, body, `uri="/healthz"`)
	assert.Contains(t, body, `fleet_http_requests_to_uri_total{code="202",method="GET",uri="/counted"} 1`)
}
