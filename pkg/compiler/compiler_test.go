package compiler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner writes the source path into the -o target instead of compiling.
type fakeRunner struct {
	mu    sync.Mutex
	calls map[string]int
	env   []string
	fail  map[string]bool
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: map[string]int{}, fail: map[string]bool{}}
}

func (f *fakeRunner) RunOutput(_ context.Context, _ string, env []string, _ string, args ...string) ([]byte, error) {
	out, src := args[2], args[3]
	f.mu.Lock()
	f.calls[src]++
	f.env = env
	fail := f.fail[src]
	f.mu.Unlock()
	if fail {
		return []byte(src + ":3:1: syntax error"), errors.New("exit status 1")
	}
	return nil, os.WriteFile(out, []byte(src), 0o644)
}

func (f *fakeRunner) count(src string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[src]
}

type project struct {
	root string
	plan Plan
}

func newProject(t *testing.T) project {
	t.Helper()
	root := t.TempDir()
	entries := map[string]string{
		"api/hello": filepath.Join(root, "api", "hello.go"),
		"api/bye":   filepath.Join(root, "api", "bye.go"),
		"root":      filepath.Join(root, "root.go"),
	}
	for _, src := range entries {
		require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
		require.NoError(t, os.WriteFile(src, []byte("package main\n"), 0o644))
	}
	return project{root: root, plan: Plan{
		Entries: entries,
		OutDir:  filepath.Join(root, ".fleet", "cache", "functions"),
		Env:     map[string]string{"GREETING": "hi"},
	}}
}

func TestBuildOnce(t *testing.T) {
	p := newProject(t)
	runner := newFakeRunner()
	var results []Result
	c := New(p.root, WithRunner(runner), WithResultHook(func(r Result) { results = append(results, r) }))

	require.NoError(t, c.BuildOnce(context.Background(), p.plan))

	for module, src := range p.plan.Entries {
		b, err := os.ReadFile(p.plan.output(module))
		require.NoError(t, err, module)
		assert.Equal(t, src, string(b))
	}
	assert.FileExists(t, filepath.Join(p.plan.OutDir, "api", "hello.wasm"))
	assert.Len(t, results, 3)
	assert.Contains(t, runner.env, "GOOS=wasip1")
	assert.Contains(t, runner.env, "GOARCH=wasm")
	assert.Contains(t, runner.env, "GREETING=hi")
}

func TestBuildFailureLeavesNoArtifact(t *testing.T) {
	p := newProject(t)
	runner := newFakeRunner()
	runner.fail[p.plan.Entries["api/bye"]] = true
	var failed []Result
	c := New(p.root, WithRunner(runner), WithResultHook(func(r Result) {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}))

	err := c.BuildOnce(context.Background(), p.plan)
	assert.ErrorContains(t, err, "build api/bye")

	assert.NoFileExists(t, p.plan.output("api/bye"))
	assert.FileExists(t, p.plan.output("api/hello"))
	require.Len(t, failed, 1)
	assert.True(t, strings.Contains(failed[0].Diagnostics, "syntax error"))

	entries, err := os.ReadDir(filepath.Join(p.plan.OutDir, "api"))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "temp file left behind: %s", e.Name())
	}
}

func TestWatchRebuildsChangedDirectory(t *testing.T) {
	p := newProject(t)
	runner := newFakeRunner()
	c := New(p.root, WithRunner(runner))
	t.Cleanup(c.Stop)

	require.NoError(t, c.Start(context.Background(), p.plan))

	hello, root := p.plan.Entries["api/hello"], p.plan.Entries["root"]
	require.Eventually(t, func() bool {
		return runner.count(hello) == 1 && runner.count(root) == 1
	}, 2*time.Second, 10*time.Millisecond)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(hello, later, later))

	require.Eventually(t, func() bool { return runner.count(hello) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, runner.count(p.plan.Entries["api/bye"]), "same directory rebuilds together")
	assert.Equal(t, 1, runner.count(root))
}

func TestStartReplacesPreviousRun(t *testing.T) {
	p := newProject(t)
	runner := newFakeRunner()
	c := New(p.root, WithRunner(runner))
	t.Cleanup(c.Stop)

	require.NoError(t, c.Start(context.Background(), p.plan))
	hello := p.plan.Entries["api/hello"]
	require.Eventually(t, func() bool { return runner.count(hello) == 1 }, 2*time.Second, 10*time.Millisecond)

	next := p.plan
	next.Entries = map[string]string{"root": p.plan.Entries["root"]}
	require.NoError(t, c.Start(context.Background(), next))
	require.Eventually(t, func() bool { return runner.count(next.Entries["root"]) == 2 }, 2*time.Second, 10*time.Millisecond)

	later := time.Now().Add(time.Minute)
	require.NoError(t, os.Chtimes(hello, later, later))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 1, runner.count(hello), "old plan no longer watched")

	c.Stop()
	c.Stop()
}
