package devserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/compiler"
	"github.com/fleetfn/fleet-dev/pkg/config"
	"github.com/fleetfn/fleet-dev/pkg/request"
	"github.com/fleetfn/fleet-dev/pkg/response"
	"github.com/fleetfn/fleet-dev/pkg/runtime"
	"github.com/fleetfn/fleet-dev/pkg/transport/httpx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

const project = `
functions:
  hello:
    handler: api/hello.go
    http:
      method: [GET]
      path: /hello/:id
`

// fakeGo stands in for "go build -o <out> <src>" by copying the source.
const fakeGo = "#!/bin/sh\ncp \"$4\" \"$3\"\n"

type app struct {
	fx.In
	Handler  http.Handler `name:"app"`
	Registry *runtime.Registry
}

func newProject(t *testing.T) Options {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "fleet.yml"), []byte(project), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "api"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "api", "hello.go"), []byte("package main\n"), 0o644))

	bin := filepath.Join(t.TempDir(), "go")
	require.NoError(t, os.WriteFile(bin, []byte(fakeGo), 0o755))

	o := DefaultOptions()
	o.Root = root
	o.Port = 0
	o.BuildTimeout = 5 * time.Second
	o.LogDir = t.TempDir()
	o.GoBinary = bin
	return o
}

func TestServesFunctionsAfterBuild(t *testing.T) {
	o := newProject(t)
	var a app
	fxapp := fxtest.New(t, fx.NopLogger, Module(o), fx.Populate(&a))

	compiled := filepath.Join(o.Root, config.DefaultCompiledDir, "api", "hello.wasm")
	a.Registry.Register(compiled, runtime.HandlerFunc(
		func(_ context.Context, req *request.Request, res *response.Builder) error {
			return res.Send(response.Text("hello " + req.Path))
		}))

	fxapp.RequireStart()
	t.Cleanup(fxapp.RequireStop)

	w := httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hello/42", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello /hello/42", w.Body.String())
	assert.FileExists(t, compiled)

	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, w.Body.String())

	w = httptest.NewRecorder()
	a.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, httpx.PingPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)

	assert.FileExists(t, filepath.Join(o.LogDir, "system.log"))
}

func TestStartFailsWithoutConfig(t *testing.T) {
	o := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(o.Root, "fleet.yml")))

	fxapp := fx.New(fx.NopLogger, Module(o))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := fxapp.Start(ctx)
	assert.ErrorIs(t, err, config.ErrNoConfig)
}

func TestAddr(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, "127.0.0.1:3000", o.Addr())
	o.IP = "::1"
	assert.Equal(t, "[::1]:3000", o.Addr())
}

func TestBuildCompilesOnce(t *testing.T) {
	o := newProject(t)
	var results []compiler.Result
	err := Build(context.Background(), o, compiler.WithResultHook(func(r compiler.Result) {
		results = append(results, r)
	}))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(o.Root, config.DefaultCompiledDir, "api", "hello.wasm"))
	require.Len(t, results, 1)
	assert.Equal(t, "api/hello", results[0].Module)
	assert.NoError(t, results[0].Err)
}

func TestBuildWithoutConfig(t *testing.T) {
	o := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(o.Root, "fleet.yml")))

	err := Build(context.Background(), o)
	assert.ErrorIs(t, err, config.ErrNoConfig)
}
