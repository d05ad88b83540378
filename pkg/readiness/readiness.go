// Package readiness makes sure a function's compiled artifact exists before
// it is invoked.
package readiness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/manifest"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// DefaultTimeout bounds how long a request waits for its artifact.
const DefaultTimeout = 30 * time.Second

var (
	ErrBuildTimeout = errors.New("build timeout")
	// ErrClosed fails callers still waiting when the coordinator closes.
	ErrClosed = errors.New("readiness coordinator closed")
)

// Coordinator waits for compiled artifacts. Callers waiting on the same
// artifact share one waiter; all waiters share one fsnotify watcher, which is
// opened on demand and closed when nobody is waiting.
type Coordinator struct {
	log     *zap.Logger
	timeout time.Duration
	touch   func(path string) error

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	waiters map[string]*waiter
	dirs    map[string]int
}

type waiter struct {
	done     chan struct{}
	dir      string
	callers  int
	resolved bool
	err      error // set before done is closed
}

type Option func(*Coordinator)

// WithTimeout sets the bounded wait. Zero waits until the context ends.
func WithTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

func WithLogger(l *zap.Logger) Option { return func(c *Coordinator) { c.log = l } }

// WithTouch replaces the function used to signal the compiler.
func WithTouch(fn func(path string) error) Option { return func(c *Coordinator) { c.touch = fn } }

func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		log:     zap.NewNop(),
		timeout: DefaultTimeout,
		touch:   touchFile,
		waiters: make(map[string]*waiter),
		dirs:    make(map[string]int),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// EnsureCompiled returns once e.CompiledFilePath exists. If it is missing the
// source file's mtime is bumped so a watching compiler rebuilds it, and the
// call blocks until the artifact is created, ctx ends, or the timeout passes.
func (c *Coordinator) EnsureCompiled(ctx context.Context, e manifest.Entry) error {
	path := e.CompiledFilePath
	if exists(path) {
		return nil
	}

	w, first, err := c.register(path)
	if err != nil {
		return err
	}
	defer c.release(path, w)

	if first {
		c.log.Info("waiting for build",
			zap.String("function", e.Name),
			zap.String("artifact", path),
		)
		if err := c.touch(e.SourceFilePath); err != nil {
			return fmt.Errorf("request build of %s: %w", e.Name, err)
		}
	}

	// The artifact may have been written before the watch was in place.
	if exists(path) {
		return nil
	}

	var expired <-chan time.Time
	if c.timeout > 0 {
		t := time.NewTimer(c.timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		return ctx.Err()
	case <-expired:
		return fmt.Errorf("%w: %s was not built within %s", ErrBuildTimeout, e.Name, c.timeout)
	}
}

func (c *Coordinator) register(path string) (*waiter, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if w, ok := c.waiters[path]; ok {
		w.callers++
		return w, false, nil
	}

	if c.watcher == nil {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, false, fmt.Errorf("open watcher: %w", err)
		}
		c.watcher = fw
		go c.run(fw)
	}

	dir := filepath.Dir(path)
	if c.dirs[dir] == 0 {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			c.closeIfIdle()
			return nil, false, fmt.Errorf("create %s: %w", dir, err)
		}
		if err := c.watcher.Add(dir); err != nil {
			c.closeIfIdle()
			return nil, false, fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	c.dirs[dir]++

	w := &waiter{done: make(chan struct{}), dir: dir, callers: 1}
	c.waiters[path] = w
	return w, true, nil
}

func (c *Coordinator) release(path string, w *waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()

	w.callers--
	if w.callers == 0 && !w.resolved {
		c.drop(path, w)
	}
	c.closeIfIdle()
}

// observe resolves the waiter for path, if any. Called with a watcher event.
func (c *Coordinator) observe(path string) {
	if !exists(path) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	w, ok := c.waiters[path]
	if !ok || w.resolved {
		return
	}
	w.resolved = true
	close(w.done)
	c.drop(path, w)
}

// drop must be called with mu held.
func (c *Coordinator) drop(path string, w *waiter) {
	if c.waiters[path] == w {
		delete(c.waiters, path)
	}
	c.dirs[w.dir]--
	if c.dirs[w.dir] <= 0 {
		delete(c.dirs, w.dir)
		if c.watcher != nil {
			_ = c.watcher.Remove(w.dir)
		}
	}
}

// closeIfIdle must be called with mu held.
func (c *Coordinator) closeIfIdle() {
	if c.watcher != nil && len(c.waiters) == 0 {
		_ = c.watcher.Close()
		c.watcher = nil
	}
}

func (c *Coordinator) run(fw *fsnotify.Watcher) {
	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				c.observe(filepath.Clean(ev.Name))
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			c.log.Warn("artifact watcher error", zap.Error(err))
		}
	}
}

// Close stops the watcher and fails every pending caller with ErrClosed.
// Later calls to EnsureCompiled open a fresh watcher.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path, w := range c.waiters {
		if !w.resolved {
			w.resolved = true
			w.err = ErrClosed
			close(w.done)
		}
		delete(c.waiters, path)
	}
	c.dirs = make(map[string]int)

	if c.watcher == nil {
		return nil
	}
	err := c.watcher.Close()
	c.watcher = nil
	return err
}

func (c *Coordinator) watching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watcher != nil
}

func (c *Coordinator) pending(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if w, ok := c.waiters[path]; ok {
		return w.callers
	}
	return 0
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func touchFile(path string) error {
	now := time.Now()
	return os.Chtimes(path, now, now)
}
