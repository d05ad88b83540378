// Package metrics exposes prometheus collectors for the gateway.
package metrics

import "time"

// Recorder feeds gateway, compiler and watcher events into the collectors.
type Recorder struct{}

// Invocation records one function run. outcome is "ok", "error" or "panic".
func (*Recorder) Invocation(function, outcome string, d time.Duration) {
	functionInvocations.WithLabelValues(function, outcome).Inc()
	functionDuration.WithLabelValues(function).Observe(d.Seconds())
}

// BuildWait records how long a request waited for its artifact.
func (*Recorder) BuildWait(d time.Duration, err error) {
	buildWait.WithLabelValues(result(err)).Observe(d.Seconds())
}

func (*Recorder) Build(err error) { builds.WithLabelValues(result(err)).Inc() }

func (*Recorder) Reload(err error) { configReloads.WithLabelValues(result(err)).Inc() }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
