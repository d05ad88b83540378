package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	responseTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleet_http_response_time_seconds",
			Help:    "http response time.",
			Buckets: []float64{0.005, 0.05, 0.5, 1, 5, 10, 30, 60},
		},
	)

	totalHttpRequestsToUri = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleet_http_requests_to_uri_total", Help: "http requests to uri"},
		[]string{"code", "uri", "method"},
	)

	totalHttpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleet_http_requests_total", Help: "http requests by code, and method"},
		[]string{"code", "method"},
	)

	functionInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleet_function_invocations_total", Help: "function invocations by outcome"},
		[]string{"function", "outcome"},
	)

	functionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_function_duration_seconds",
			Help:    "function execution time.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"function"},
	)

	buildWait = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleet_build_wait_seconds",
			Help:    "time requests spent waiting for a compiled artifact.",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	builds = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleet_builds_total", Help: "function builds by result"},
		[]string{"result"},
	)

	configReloads = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fleet_config_reloads_total", Help: "configuration reloads by result"},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		responseTime,
		totalHttpRequestsToUri,
		totalHttpRequests,
		functionInvocations,
		functionDuration,
		buildWait,
		builds,
		configReloads,
	)
}
