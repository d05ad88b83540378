package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/codec"
	"github.com/fleetfn/fleet-dev/pkg/request"
	"github.com/fleetfn/fleet-dev/pkg/response"
	"go.uber.org/zap"
)

// WasmExt marks artifacts run by the wasm engine; anything else is executed
// as a native binary.
const WasmExt = ".wasm"

type artifact interface {
	run(ctx context.Context, stdin []byte, env []string) (stdout, stderr []byte, err error)
	close(ctx context.Context) error
}

type cacheEntry struct {
	modTime time.Time
	size    int64
	art     artifact
}

// Loader resolves a compiled path to a Handler. Artifacts are cached by path
// and reloaded when their modification time or size changes.
type Loader struct {
	log      *zap.Logger
	registry *Registry

	mu     sync.Mutex
	engine *wasmEngine
	cache  map[string]*cacheEntry
}

type LoaderOption func(*Loader)

func WithRegistry(r *Registry) LoaderOption { return func(l *Loader) { l.registry = r } }

func WithLoaderLogger(log *zap.Logger) LoaderOption { return func(l *Loader) { l.log = log } }

func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		log:   zap.NewNop(),
		cache: make(map[string]*cacheEntry),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Load returns the handler for the artifact at path. env is handed to every
// invocation of the returned handler.
func (l *Loader) Load(ctx context.Context, path string, env map[string]string) (Handler, error) {
	if h, ok := l.registry.Lookup(path); ok {
		return h, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.cache[path]; ok {
		if c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
			return l.bind(path, c.art, env), nil
		}
		delete(l.cache, path)
		if err := c.art.close(ctx); err != nil {
			l.log.Warn("close stale artifact", zap.String("artifact", path), zap.Error(err))
		}
		l.log.Debug("artifact changed, reloading", zap.String("artifact", path))
	}

	art, err := l.open(ctx, path, info)
	if err != nil {
		return nil, err
	}
	l.cache[path] = &cacheEntry{modTime: info.ModTime(), size: info.Size(), art: art}
	return l.bind(path, art, env), nil
}

func (l *Loader) open(ctx context.Context, path string, info os.FileInfo) (artifact, error) {
	if filepath.Ext(path) != WasmExt {
		return newExecArtifact(path, info)
	}
	if l.engine == nil {
		// The engine outlives any single request.
		e, err := newWasmEngine(context.Background())
		if err != nil {
			return nil, err
		}
		l.engine = e
	}
	bin, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return l.engine.compile(ctx, path, bin)
}

// Close releases every cached artifact and the wasm engine.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for path, c := range l.cache {
		_ = c.art.close(ctx)
		delete(l.cache, path)
	}
	if l.engine != nil {
		err := l.engine.close(ctx)
		l.engine = nil
		return err
	}
	return nil
}

func (l *Loader) cached(path string) artifact {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.cache[path]; ok {
		return c.art
	}
	return nil
}

func (l *Loader) bind(path string, art artifact, env map[string]string) Handler {
	return &artifactHandler{path: path, art: art, env: environ(env), log: l.log}
}

// artifactHandler feeds the request to the artifact on stdin and replays the
// envelope it prints.
type artifactHandler struct {
	path string
	art  artifact
	env  []string
	log  *zap.Logger
}

func (h *artifactHandler) Serve(ctx context.Context, req *request.Request, res *response.Builder) error {
	in, err := codec.JSON.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	out, stderr, err := h.art.run(ctx, in, h.env)
	if len(stderr) > 0 {
		h.log.Info("function output",
			zap.String("artifact", h.path),
			zap.String("stderr", strings.TrimRight(string(stderr), "\n")),
		)
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", filepath.Base(h.path), err)
	}

	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil
	}
	var env Envelope
	if err := codec.JSONStrict.Unmarshal(out, &env); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	return env.Apply(res)
}

// environ merges the process environment with env; env wins.
func environ(env map[string]string) []string {
	merged := make(map[string]string)
	for _, kv := range os.Environ() {
		k, v := splitEnv(kv)
		merged[k] = v
	}
	for k, v := range env {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
