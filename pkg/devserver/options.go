package devserver

import (
	"net"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/config"
	"github.com/fleetfn/fleet-dev/pkg/middleware/logger"
	"github.com/fleetfn/fleet-dev/pkg/readiness"
)

// Options configure one dev server.
type Options struct {
	Root         string
	IP           string
	Port         int
	BuildTimeout time.Duration // 0 waits as long as the request lives
	EnvFile      string
	LogDir       string // defaults to <root>/.fleet/log
	GoBinary     string // defaults to "go" on PATH
}

func DefaultOptions() Options {
	return Options{
		Root:         ".",
		IP:           "127.0.0.1",
		Port:         3000,
		BuildTimeout: readiness.DefaultTimeout,
	}
}

func (o Options) Addr() string { return net.JoinHostPort(o.IP, strconv.Itoa(o.Port)) }

func (o Options) logConfig() logger.Config {
	dir := o.LogDir
	if dir == "" {
		dir = filepath.Join(o.Root, logger.DefaultDir)
	}
	return logger.Config{Dir: dir}
}

func (o Options) configOptions() config.Options {
	return config.Options{EnvFile: o.EnvFile}
}
