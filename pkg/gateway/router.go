// Package gateway routes requests to functions.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/manifest"
	"github.com/fleetfn/fleet-dev/pkg/request"
	"github.com/fleetfn/fleet-dev/pkg/response"
	"github.com/fleetfn/fleet-dev/pkg/runtime"
	"github.com/fleetfn/fleet-dev/pkg/store"
	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Readiness blocks until an entry's artifact exists.
type Readiness interface {
	EnsureCompiled(ctx context.Context, e manifest.Entry) error
}

// Loader resolves a compiled path to a handler.
type Loader interface {
	Load(ctx context.Context, path string, env map[string]string) (runtime.Handler, error)
}

// Observer receives per-request outcomes. metrics.Recorder implements it.
type Observer interface {
	Invocation(function, outcome string, d time.Duration)
	BuildWait(d time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) Invocation(string, string, time.Duration) {}
func (nopObserver) BuildWait(time.Duration, error)           {}

const (
	outcomeOK    = "ok"
	outcomeError = "error"
	outcomePanic = "panic"
)

// Router serves every function request. Unmatched requests get an empty 404;
// readiness and load failures an empty 500. Everything else is up to the
// function.
type Router struct {
	store  *store.RouteStore
	ready  Readiness
	loader Loader
	log    *zap.Logger
	obs    Observer
}

type Option func(*Router)

func WithLogger(l *zap.Logger) Option { return func(r *Router) { r.log = l } }

func WithObserver(o Observer) Option { return func(r *Router) { r.obs = o } }

func New(st *store.RouteStore, ready Readiness, loader Loader, opts ...Option) *Router {
	r := &Router{
		store:  st,
		ready:  ready,
		loader: loader,
		log:    zap.NewNop(),
		obs:    nopObserver{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// One snapshot per request; a reload mid-request is not observed.
	snap := rt.store.Load()

	req, err := request.Normalize(r)
	if err != nil {
		rt.log.Warn("read request", zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	entry, ok := snap.Manifest.Lookup(req.Method, req.Path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	log := rt.log.With(
		zap.String("function", entry.Name),
		zap.String("invocationId", uuid.NewString()),
		zap.String("requestId", chimd.GetReqID(r.Context())),
	)
	ctx := r.Context()

	waitStart := time.Now()
	err = rt.ready.EnsureCompiled(ctx, entry)
	rt.obs.BuildWait(time.Since(waitStart), err)
	if err != nil {
		log.Error("function not ready", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h, err := rt.loader.Load(ctx, entry.CompiledFilePath, snap.Env)
	if err != nil {
		log.Error("load function", zap.Error(describe(entry, err)))
		rt.obs.Invocation(entry.Name, outcomeError, 0)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	res := response.New(w)
	log.Info("function invoked", zap.String("path", req.Path), zap.String("method", req.Method))
	start := time.Now()

	invokeCtx, cancel := withTimeout(ctx, entry)
	outcome, err := invoke(invokeCtx, h, req, res)
	cancel()
	elapsed := time.Since(start)
	rt.obs.Invocation(entry.Name, outcome, elapsed)

	if err != nil {
		log.Error("function failed", zap.Error(describe(entry, err)), zap.Duration("duration", elapsed))
		if !res.Written() {
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	if !res.Sent() {
		// Returning without a send ends the response with its current state.
		if err := res.Send(response.Empty()); err != nil {
			log.Error("finish response", zap.Error(err))
		}
	}
	log.Info("function executed", zap.Duration("duration", elapsed), zap.Int("status", res.Status()))
}

// invoke runs h, turning a panic into an error.
func invoke(ctx context.Context, h runtime.Handler, req *request.Request, res *response.Builder) (outcome string, err error) {
	defer func() {
		if p := recover(); p != nil {
			outcome = outcomePanic
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	if err := h.Serve(ctx, req, res); err != nil {
		return outcomeError, err
	}
	return outcomeOK, nil
}

// withTimeout applies the function's timeout, in seconds, when it has one.
func withTimeout(ctx context.Context, e manifest.Entry) (context.Context, context.CancelFunc) {
	if e.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(e.Timeout)*time.Second)
}

// describe names the offending function for artifacts without an entry point.
func describe(e manifest.Entry, err error) error {
	if errors.Is(err, runtime.ErrNotCallable) {
		return fmt.Errorf("%s does not export a function: %w", e.Name, err)
	}
	return err
}
