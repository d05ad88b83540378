// Package store holds the process-wide routing state.
package store

import (
	"sync/atomic"

	"github.com/fleetfn/fleet-dev/pkg/manifest"
)

// Snapshot is one immutable version of the routing state. A Snapshot is never
// modified after it has been published.
type Snapshot struct {
	Manifest    manifest.Manifest
	CompiledDir string
	Env         map[string]string
	Version     uint64
}

// RouteStore publishes Snapshots. Readers call Load once per request and keep
// the result for the request's lifetime.
type RouteStore struct {
	cur     atomic.Pointer[Snapshot]
	version atomic.Uint64
}

func New() *RouteStore {
	s := &RouteStore{}
	s.cur.Store(&Snapshot{})
	return s
}

// Load returns the current snapshot. It never returns nil.
func (s *RouteStore) Load() *Snapshot { return s.cur.Load() }

// Replace publishes a new snapshot built from m. The previous snapshot stays
// valid for readers that already hold it.
func (s *RouteStore) Replace(m manifest.Manifest, compiledDir string, env map[string]string) *Snapshot {
	next := &Snapshot{
		Manifest:    m,
		CompiledDir: compiledDir,
		Env:         env,
		Version:     s.version.Add(1),
	}
	s.cur.Store(next)
	return next
}
