package runtime

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// wasmEngine owns the wazero runtime shared by all wasm artifacts.
type wasmEngine struct {
	rt wazero.Runtime
}

func newWasmEngine(ctx context.Context) (*wasmEngine, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().WithCloseOnContextDone(true))
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi: %w", err)
	}
	return &wasmEngine{rt: rt}, nil
}

func (e *wasmEngine) compile(ctx context.Context, path string, bin []byte) (*wasmArtifact, error) {
	cm, err := e.rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	if _, ok := cm.ExportedFunctions()["_start"]; !ok {
		_ = cm.Close(ctx)
		return nil, ErrNotCallable
	}
	return &wasmArtifact{rt: e.rt, cm: cm, name: filepath.Base(path)}, nil
}

func (e *wasmEngine) close(ctx context.Context) error { return e.rt.Close(ctx) }

// wasmArtifact runs a WASI command module. The guest gets stdio, clocks,
// randomness and env; no filesystem or network.
type wasmArtifact struct {
	rt   wazero.Runtime
	cm   wazero.CompiledModule
	name string
}

func (a *wasmArtifact) run(ctx context.Context, stdin []byte, env []string) (stdout, stderr []byte, err error) {
	var out, errOut bytes.Buffer
	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(a.name).
		WithStdin(bytes.NewReader(stdin)).
		WithStdout(&out).
		WithStderr(&errOut).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader)
	for _, kv := range env {
		k, v := splitEnv(kv)
		cfg = cfg.WithEnv(k, v)
	}

	mod, err := a.rt.InstantiateModule(ctx, a.cm, cfg)
	if mod != nil {
		_ = mod.Close(ctx)
	}
	if err != nil {
		var exit *sys.ExitError
		switch {
		case errors.As(err, &exit) && exit.ExitCode() == 0:
			err = nil
		case ctx.Err() != nil:
			err = ctx.Err()
		case errors.As(err, &exit):
			err = fmt.Errorf("exit status %d", exit.ExitCode())
		}
	}
	return out.Bytes(), errOut.Bytes(), err
}

func (a *wasmArtifact) close(ctx context.Context) error { return a.cm.Close(ctx) }
