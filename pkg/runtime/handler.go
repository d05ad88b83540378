// Package runtime loads compiled function artifacts and runs them.
package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/fleetfn/fleet-dev/pkg/request"
	"github.com/fleetfn/fleet-dev/pkg/response"
)

// ErrNotCallable is returned when an artifact has no entry point.
var ErrNotCallable = errors.New("artifact does not export a callable entry point")

// Handler serves one invocation.
type Handler interface {
	Serve(ctx context.Context, req *request.Request, res *response.Builder) error
}

type HandlerFunc func(ctx context.Context, req *request.Request, res *response.Builder) error

func (f HandlerFunc) Serve(ctx context.Context, req *request.Request, res *response.Builder) error {
	return f(ctx, req, res)
}

// Registry maps compiled artifact paths to in-process handlers. A registered
// handler is used instead of the artifact on disk.
type Registry struct {
	mu sync.RWMutex
	m  map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Handler)}
}

func (r *Registry) Register(path string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[path] = h
}

func (r *Registry) Unregister(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, path)
}

func (r *Registry) Lookup(path string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.m[path]
	return h, ok
}
