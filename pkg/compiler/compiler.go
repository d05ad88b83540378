// Package compiler builds function sources into artifacts and rebuilds them
// when their sources change.
package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/manifest"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	TargetOS   = "wasip1"
	TargetArch = "wasm"
)

const debounce = 50 * time.Millisecond

// CommandRunner runs an external command and returns its combined output.
type CommandRunner interface {
	RunOutput(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) RunOutput(ctx context.Context, dir string, env []string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = env
	return cmd.CombinedOutput()
}

// Plan is one set of entries to keep built.
type Plan struct {
	// Entries maps module names to source files.
	Entries map[string]string
	OutDir  string
	Env     map[string]string
}

func (p Plan) output(module string) string {
	return filepath.Join(p.OutDir, filepath.FromSlash(module)+manifest.DefaultCompiledExt)
}

func (p Plan) modules() []string {
	out := make([]string, 0, len(p.Entries))
	for m := range p.Entries {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// modulesIn returns the modules whose source lives in one of dirs.
func (p Plan) modulesIn(dirs map[string]struct{}) []string {
	var out []string
	for m, src := range p.Entries {
		if _, ok := dirs[filepath.Dir(src)]; ok {
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

// Result reports one module build.
type Result struct {
	Module      string
	Source      string
	Output      string
	Duration    time.Duration
	Err         error
	Diagnostics string // compiler output of a failed build
}

// GoCompiler runs `go build` for each entry and watches the source
// directories for changes.
type GoCompiler struct {
	root     string
	goBin    string
	log      *zap.Logger
	runner   CommandRunner
	onResult func(Result)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type Option func(*GoCompiler)

func WithLogger(l *zap.Logger) Option { return func(c *GoCompiler) { c.log = l } }

func WithRunner(r CommandRunner) Option { return func(c *GoCompiler) { c.runner = r } }

func WithGoBinary(path string) Option { return func(c *GoCompiler) { c.goBin = path } }

// WithResultHook receives every build result.
func WithResultHook(fn func(Result)) Option { return func(c *GoCompiler) { c.onResult = fn } }

func New(root string, opts ...Option) *GoCompiler {
	c := &GoCompiler{
		root:   root,
		goBin:  "go",
		log:    zap.NewNop(),
		runner: ExecRunner{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start stops any previous run, builds every entry of p and keeps rebuilding
// on source changes until Stop or ctx ends.
func (c *GoCompiler) Start(ctx context.Context, p Plan) error {
	c.Stop()

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("open source watcher: %w", err)
	}
	seen := map[string]bool{}
	for _, src := range p.Entries {
		dir := filepath.Dir(src)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := fw.Add(dir); err != nil {
			// The build reports the missing source.
			c.log.Warn("cannot watch source directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel, c.done = cancel, done
	c.mu.Unlock()

	go c.run(runCtx, fw, p, done)
	return nil
}

// Stop ends the current run and waits for an in-flight build to finish.
func (c *GoCompiler) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (c *GoCompiler) run(ctx context.Context, fw *fsnotify.Watcher, p Plan, done chan struct{}) {
	defer close(done)
	defer fw.Close()

	c.build(ctx, p, p.modules())

	pending := map[string]struct{}{}
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			if filepath.Ext(ev.Name) != ".go" || ev.Has(fsnotify.Remove) {
				continue
			}
			pending[filepath.Dir(ev.Name)] = struct{}{}
			timer.Reset(debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			c.log.Warn("source watcher error", zap.Error(err))
		case <-timer.C:
			modules := p.modulesIn(pending)
			pending = map[string]struct{}{}
			c.build(ctx, p, modules)
		}
	}
}

func (c *GoCompiler) build(ctx context.Context, p Plan, modules []string) {
	if len(modules) == 0 {
		return
	}
	start := time.Now()
	var failed int
	for _, m := range modules {
		if ctx.Err() != nil {
			return
		}
		r := c.buildOne(ctx, p, m)
		if c.onResult != nil {
			c.onResult(r)
		}
		if r.Err != nil {
			failed++
			c.log.Error("build failed",
				zap.String("module", m),
				zap.String("source", r.Source),
				zap.String("diagnostics", r.Diagnostics),
				zap.Error(r.Err),
			)
		}
	}
	if failed == 0 {
		c.log.Info("rebuilt functions",
			zap.Strings("modules", modules),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (c *GoCompiler) buildOne(ctx context.Context, p Plan, module string) Result {
	start := time.Now()
	r := Result{Module: module, Source: p.Entries[module], Output: p.output(module)}
	r.Diagnostics, r.Err = c.compile(ctx, p.Env, r.Source, r.Output)
	if r.Err != nil {
		r.Err = fmt.Errorf("build %s: %w", module, r.Err)
	}
	r.Duration = time.Since(start)
	return r
}

func (c *GoCompiler) compile(ctx context.Context, env map[string]string, src, out string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", err
	}
	// The artifact appears in one rename so watchers never see a partial file.
	tmp := filepath.Join(filepath.Dir(out), "."+filepath.Base(out)+".tmp")
	output, err := c.runner.RunOutput(ctx, c.root, buildEnv(env), c.goBin, "build", "-o", tmp, src)
	if err != nil {
		_ = os.Remove(tmp)
		return string(output), err
	}
	if err := os.Rename(tmp, out); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return "", nil
}

// BuildOnce builds every entry of p once, without watching.
func (c *GoCompiler) BuildOnce(ctx context.Context, p Plan) error {
	var errs []error
	for _, m := range p.modules() {
		r := c.buildOne(ctx, p, m)
		if c.onResult != nil {
			c.onResult(r)
		}
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

func buildEnv(env map[string]string) []string {
	out := os.Environ()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return append(out, "GOOS="+TargetOS, "GOARCH="+TargetArch, "CGO_ENABLED=0")
}
