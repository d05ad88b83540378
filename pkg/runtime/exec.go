package runtime

import (
	"bytes"
	"context"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// waitDelay bounds how long a killed process may keep its stdio open.
const waitDelay = 2 * time.Second

// execArtifact runs a native executable as a subprocess.
type execArtifact struct {
	path string
}

func newExecArtifact(path string, info fs.FileInfo) (*execArtifact, error) {
	if info.IsDir() || info.Mode().Perm()&0o111 == 0 {
		return nil, ErrNotCallable
	}
	return &execArtifact{path: path}, nil
}

func (a *execArtifact) run(ctx context.Context, stdin []byte, env []string) (stdout, stderr []byte, err error) {
	var out, errOut bytes.Buffer
	cmd := exec.CommandContext(ctx, a.path)
	cmd.Dir = filepath.Dir(a.path)
	cmd.Env = env
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &out
	cmd.Stderr = &errOut
	cmd.WaitDelay = waitDelay
	err = cmd.Run()
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return out.Bytes(), errOut.Bytes(), err
}

func (a *execArtifact) close(context.Context) error { return nil }

func splitEnv(kv string) (string, string) {
	k, v, _ := strings.Cut(kv, "=")
	return k, v
}
