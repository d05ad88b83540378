package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fleetfn/fleet-dev/pkg/compiler"
	"github.com/fleetfn/fleet-dev/pkg/devserver"
	"go.uber.org/fx"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Dependencies are swapped in tests.
type Dependencies struct {
	Out    io.Writer
	ErrOut io.Writer
	// Serve runs the dev server until it is interrupted.
	Serve func(devserver.Options) error
	// Build compiles every function once.
	Build func(devserver.Options) error
}

type CLI struct {
	Dev     DevCmd     `cmd:"" default:"withargs" help:"Serve the project's functions locally"`
	Build   BuildCmd   `cmd:"" help:"Compile every function once and exit"`
	Version VersionCmd `cmd:"" help:"Show version information"`
}

type (
	DevCmd struct {
		Dir          string        `short:"d" default:"." type:"existingdir" help:"Project root"`
		IP           string        `name:"ip" env:"FLEET_IP" default:"127.0.0.1" help:"Address to listen on"`
		Port         int           `short:"p" env:"FLEET_PORT" default:"3000" help:"Port to listen on"`
		BuildTimeout time.Duration `name:"build-timeout" env:"FLEET_BUILD_TIMEOUT" default:"30s" help:"How long a request waits for its function to compile (0 waits indefinitely)"`
		EnvFile      string        `name:"env-file" help:"Path to .env file (default <dir>/.env)"`
		LogDir       string        `name:"log-dir" help:"Log directory (default <dir>/.fleet/log)"`
	}

	BuildCmd struct {
		Dir     string `short:"d" default:"." type:"existingdir" help:"Project root"`
		EnvFile string `name:"env-file" help:"Path to .env file (default <dir>/.env)"`
	}

	VersionCmd struct{}
)

func (c DevCmd) options() devserver.Options {
	o := devserver.DefaultOptions()
	o.Root = c.Dir
	o.IP = c.IP
	o.Port = c.Port
	o.BuildTimeout = c.BuildTimeout
	o.EnvFile = c.EnvFile
	o.LogDir = c.LogDir
	return o
}

func (c BuildCmd) options() devserver.Options {
	o := devserver.DefaultOptions()
	o.Root = c.Dir
	o.EnvFile = c.EnvFile
	return o
}

// Run parses args and runs the selected command. It returns the exit code.
func Run(args []string, deps Dependencies) int {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.ErrOut == nil {
		deps.ErrOut = os.Stderr
	}
	if deps.Serve == nil {
		deps.Serve = serve
	}
	if deps.Build == nil {
		out, errOut := deps.Out, deps.ErrOut
		deps.Build = func(o devserver.Options) error { return build(o, out, errOut) }
	}

	cli := CLI{}
	exited := false
	parser, err := kong.New(&cli,
		kong.Name("fleet"),
		kong.Description("Local development gateway for Fleet functions."),
		kong.Writers(deps.Out, deps.ErrOut),
		kong.Exit(func(int) { exited = true }),
	)
	if err != nil {
		fmt.Fprintln(deps.ErrOut, err)
		return 1
	}

	ctx, err := parser.Parse(args)
	if exited {
		return 0
	}
	if err != nil {
		parser.Errorf("%s", err)
		return 1
	}

	switch ctx.Command() {
	case "version":
		fmt.Fprintln(deps.Out, "fleet", version)
		return 0
	case "build":
		if err := deps.Build(cli.Build.options()); err != nil {
			fmt.Fprintln(deps.ErrOut, "fleet:", err)
			return 1
		}
		return 0
	default:
		if err := deps.Serve(cli.Dev.options()); err != nil {
			fmt.Fprintln(deps.ErrOut, "fleet:", err)
			return 1
		}
		return 0
	}
}

// serve runs the fx application until SIGINT or SIGTERM.
func serve(o devserver.Options) error {
	app := fx.New(fx.NopLogger, devserver.Module(o))
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	<-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	return app.Stop(stopCtx)
}

// build compiles the project once and reports each function on out or errOut.
func build(o devserver.Options, out, errOut io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return devserver.Build(ctx, o, compiler.WithResultHook(func(r compiler.Result) {
		if r.Err != nil {
			fmt.Fprintln(errOut, r.Err)
			if r.Diagnostics != "" {
				fmt.Fprintln(errOut, r.Diagnostics)
			}
			return
		}
		fmt.Fprintf(out, "built %s (%s)\n", r.Module, r.Duration.Round(time.Millisecond))
	}))
}
