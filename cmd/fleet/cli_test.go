package main

import (
	"bytes"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/devserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (int, *devserver.Options, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	var got *devserver.Options
	code := Run(args, Dependencies{
		Out:    &out,
		ErrOut: &errOut,
		Serve: func(o devserver.Options) error {
			got = &o
			return nil
		},
	})
	return code, got, out.String(), errOut.String()
}

func TestDevDefaults(t *testing.T) {
	code, o, _, _ := run(t)
	require.Equal(t, 0, code)
	require.NotNil(t, o)
	assert.Equal(t, "127.0.0.1", o.IP)
	assert.Equal(t, 3000, o.Port)
	assert.Equal(t, 30*time.Second, o.BuildTimeout)
	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, wd, o.Root)
}

func TestDevFlags(t *testing.T) {
	dir := t.TempDir()
	code, o, _, _ := run(t, "dev", "--dir", dir, "--ip", "0.0.0.0", "-p", "8080",
		"--build-timeout", "0s", "--env-file", "dev.env", "--log-dir", "/tmp/logs")
	require.Equal(t, 0, code)
	require.NotNil(t, o)
	assert.Equal(t, dir, o.Root)
	assert.Equal(t, "0.0.0.0:8080", o.Addr())
	assert.Zero(t, o.BuildTimeout)
	assert.Equal(t, "dev.env", o.EnvFile)
	assert.Equal(t, "/tmp/logs", o.LogDir)
}

func TestDevEnvironment(t *testing.T) {
	t.Setenv("FLEET_PORT", "4000")
	t.Setenv("FLEET_BUILD_TIMEOUT", "1m")
	code, o, _, _ := run(t, "dev")
	require.Equal(t, 0, code)
	assert.Equal(t, 4000, o.Port)
	assert.Equal(t, time.Minute, o.BuildTimeout)
}

func TestDevMissingDir(t *testing.T) {
	code, o, _, errOut := run(t, "dev", "--dir", "/does/not/exist")
	assert.Equal(t, 1, code)
	assert.Nil(t, o)
	assert.Contains(t, errOut, "/does/not/exist")
}

func TestServeErrorExitsNonZero(t *testing.T) {
	var errOut bytes.Buffer
	code := Run([]string{"dev"}, Dependencies{
		Out:    os.Stdout,
		ErrOut: &errOut,
		Serve:  func(devserver.Options) error { return errors.New("listen: address in use") },
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "address in use")
}

func TestVersion(t *testing.T) {
	code, o, out, _ := run(t, "version")
	assert.Equal(t, 0, code)
	assert.Nil(t, o)
	assert.Equal(t, "fleet dev\n", out)
}

func TestBuildCommand(t *testing.T) {
	dir := t.TempDir()
	var out, errOut bytes.Buffer
	var got *devserver.Options
	served := false
	code := Run([]string{"build", "-d", dir, "--env-file", "ci.env"}, Dependencies{
		Out:    &out,
		ErrOut: &errOut,
		Serve:  func(devserver.Options) error { served = true; return nil },
		Build: func(o devserver.Options) error {
			got = &o
			return nil
		},
	})
	require.Equal(t, 0, code, errOut.String())
	require.NotNil(t, got)
	assert.False(t, served)
	assert.Equal(t, dir, got.Root)
	assert.Equal(t, "ci.env", got.EnvFile)
}

func TestBuildErrorExitsNonZero(t *testing.T) {
	var errOut bytes.Buffer
	code := Run([]string{"build"}, Dependencies{
		Out:    os.Stdout,
		ErrOut: &errOut,
		Build:  func(devserver.Options) error { return errors.New("build api/hello: exit status 1") },
	})
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "build api/hello")
}
