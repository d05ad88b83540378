// Package watch keeps the route store in sync with the project configuration.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/compiler"
	"github.com/fleetfn/fleet-dev/pkg/config"
	"github.com/fleetfn/fleet-dev/pkg/store"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const debounce = 100 * time.Millisecond

// Compiler is the part of the compiler the watcher drives.
type Compiler interface {
	Start(ctx context.Context, p compiler.Plan) error
	Stop()
}

// Watcher loads the project, publishes its manifest to the store and
// restarts the compiler on every configuration change.
type Watcher struct {
	root     string
	opts     config.Options
	store    *store.RouteStore
	compiler Compiler
	log      *zap.Logger
	onReload func(error)

	mu      sync.Mutex
	project config.Project
}

type Option func(*Watcher)

func WithLogger(l *zap.Logger) Option { return func(w *Watcher) { w.log = l } }

// WithCompiler sets the compiler started for projects without a framework
// build. Without one nothing is compiled.
func WithCompiler(c Compiler) Option { return func(w *Watcher) { w.compiler = c } }

// WithReloadHook is called after every reload attempt.
func WithReloadHook(fn func(error)) Option { return func(w *Watcher) { w.onReload = fn } }

func New(root string, opts config.Options, st *store.RouteStore, options ...Option) *Watcher {
	w := &Watcher{
		root:  root,
		opts:  opts,
		store: st,
		log:   zap.NewNop(),
	}
	for _, o := range options {
		o(w)
	}
	return w
}

// Init performs the first load. Its errors are fatal to the caller.
func (w *Watcher) Init(ctx context.Context) (config.Project, error) {
	p, err := config.Load(w.root, w.opts)
	if err != nil {
		return config.Project{}, err
	}
	if p.OwnsCompiler() {
		dir := p.CompiledDir()
		if err := os.RemoveAll(dir); err != nil {
			return config.Project{}, fmt.Errorf("clean %s: %w", dir, err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return config.Project{}, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	if err := w.apply(ctx, p); err != nil {
		return config.Project{}, err
	}
	return p, nil
}

// Reload loads the configuration again. On error the current snapshot stays
// active.
func (w *Watcher) Reload(ctx context.Context) error {
	p, err := config.Load(w.root, w.opts)
	if err == nil {
		err = w.apply(ctx, p)
	}
	if w.onReload != nil {
		w.onReload(err)
	}
	if err != nil {
		w.log.Error("configuration reload failed, keeping previous functions", zap.Error(err))
		return err
	}
	w.log.Info("configuration reloaded", zap.Int("functions", len(p.Config.Functions)))
	return nil
}

func (w *Watcher) apply(ctx context.Context, p config.Project) error {
	m, err := p.Manifest()
	if err != nil {
		return err
	}
	snap := w.store.Replace(m, p.CompiledDir(), p.Config.Env)

	w.mu.Lock()
	w.project = p
	w.mu.Unlock()

	w.log.Debug("route store updated",
		zap.Uint64("version", snap.Version),
		zap.Int("functions", len(m.Functions)),
	)

	if w.compiler == nil {
		return nil
	}
	if !p.OwnsCompiler() {
		w.compiler.Stop()
		return nil
	}
	return w.compiler.Start(ctx, compiler.Plan{
		Entries: m.Entries,
		OutDir:  p.CompiledDir(),
		Env:     p.Config.Env,
	})
}

// Project returns the most recently applied project.
func (w *Watcher) Project() config.Project {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.project
}

// Run watches the configuration files until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("open config watcher: %w", err)
	}
	defer fw.Close()

	dirs := map[string]bool{}
	watchDirs := func() {
		for _, path := range w.Project().WatchPaths() {
			dir := filepath.Dir(path)
			if dirs[dir] {
				continue
			}
			if err := fw.Add(dir); err != nil {
				w.log.Debug("skip config directory", zap.String("dir", dir), zap.Error(err))
				continue
			}
			dirs[dir] = true
		}
	}
	watchDirs()

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) || !w.watched(ev.Name) {
				continue
			}
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", zap.Error(err))
		case <-timer.C:
			_ = w.Reload(ctx)
			watchDirs()
		}
	}
}

func (w *Watcher) watched(name string) bool {
	name = filepath.Clean(name)
	for _, path := range w.Project().WatchPaths() {
		if path == name {
			return true
		}
	}
	return false
}
