// Package httpx assembles the dev server's HTTP surface: operator endpoints
// under /__fleet and the function gateway for everything else.
package httpx

import (
	"net/http"

	"github.com/fleetfn/fleet-dev/pkg/middleware/logger"
	"github.com/fleetfn/fleet-dev/pkg/middleware/metrics"
	"github.com/fleetfn/fleet-dev/pkg/store"
	chimd "github.com/go-chi/chi/v5/middleware"
)

const PingPath = "/__fleet/ping"

// unmatchedRoute labels requests no function claims.
const unmatchedRoute = "unmatched"

type Deps struct {
	Router  Router
	Gateway http.Handler
	Metrics http.Handler       // optional
	Access  *logger.Middleware // optional
	Store   *store.RouteStore  // optional; labels metrics by route template
}

// Build mounts the middleware stack, the operator endpoints and the gateway.
func Build(d Deps) http.Handler {
	r := d.Router
	r.Use(chimd.RequestID, chimd.Recoverer)
	if d.Metrics != nil {
		if d.Store != nil {
			metrics.SetPathNormalizer(RouteTemplate(d.Store))
		}
		// Heartbeat runs inside Collect; pings stay out of the counters.
		metrics.AddMetricsSkipPaths(PingPath)
		r.Use(metrics.Collect())
	}
	r.Use(chimd.Heartbeat(PingPath))
	if d.Access != nil {
		r.Use(d.Access.Handler)
	}
	if d.Metrics != nil {
		r.Handle(http.MethodGet, metrics.MetricsPath, d.Metrics)
	}
	r.Fallback(d.Gateway)
	return r.Mux()
}

// RouteTemplate maps a request to the path template of the function it
// would be routed to.
func RouteTemplate(st *store.RouteStore) func(*http.Request) string {
	return func(r *http.Request) string {
		if e, ok := st.Load().Manifest.Lookup(r.Method, r.URL.Path); ok {
			return e.HTTP.Path
		}
		return unmatchedRoute
	}
}
