// Package devserver wires the gateway, its collaborators and the HTTP
// listener into an fx application.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fleetfn/fleet-dev/pkg/bundlefx"
	"github.com/fleetfn/fleet-dev/pkg/compiler"
	"github.com/fleetfn/fleet-dev/pkg/gateway"
	"github.com/fleetfn/fleet-dev/pkg/middleware/logger"
	"github.com/fleetfn/fleet-dev/pkg/middleware/metrics"
	"github.com/fleetfn/fleet-dev/pkg/readiness"
	"github.com/fleetfn/fleet-dev/pkg/runtime"
	"github.com/fleetfn/fleet-dev/pkg/store"
	"github.com/fleetfn/fleet-dev/pkg/transport/httpx"
	"github.com/fleetfn/fleet-dev/pkg/watch"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module returns a complete Fx option set for one dev server.
func Module(opts Options) fx.Option {
	return fx.Options(
		fx.Supply(opts),
		fx.Supply(opts.logConfig()),

		// Loggers and metrics
		bundlefx.Module,

		fx.Provide(
			store.New,
			runtime.NewRegistry,
			httpx.NewChi,
			provideReadiness,
			provideLoader,
			provideCompiler,
			provideWatcher,
			provideGateway,
		),
		fx.Provide(fx.Annotate(provideApp, fx.ResultTags(`name:"app"`))),

		fx.Invoke(registerHooks),
	)
}

func provideReadiness(o Options, log *zap.Logger) *readiness.Coordinator {
	return readiness.New(
		readiness.WithTimeout(o.BuildTimeout),
		readiness.WithLogger(log.Named("readiness")),
	)
}

func provideLoader(reg *runtime.Registry, log *zap.Logger) *runtime.Loader {
	return runtime.NewLoader(
		runtime.WithRegistry(reg),
		runtime.WithLoaderLogger(log.Named("runtime")),
	)
}

func provideCompiler(o Options, rec *metrics.Recorder, log *zap.Logger) *compiler.GoCompiler {
	opts := []compiler.Option{
		compiler.WithLogger(log.Named("compiler")),
		compiler.WithResultHook(func(r compiler.Result) { rec.Build(r.Err) }),
	}
	if o.GoBinary != "" {
		opts = append(opts, compiler.WithGoBinary(o.GoBinary))
	}
	return compiler.New(o.Root, opts...)
}

func provideWatcher(o Options, st *store.RouteStore, c *compiler.GoCompiler, rec *metrics.Recorder, log *zap.Logger) *watch.Watcher {
	return watch.New(o.Root, o.configOptions(), st,
		watch.WithCompiler(c),
		watch.WithLogger(log.Named("config")),
		watch.WithReloadHook(rec.Reload),
	)
}

func provideGateway(st *store.RouteStore, rd *readiness.Coordinator, l *runtime.Loader, rec *metrics.Recorder, log *zap.Logger) *gateway.Router {
	return gateway.New(st, rd, l,
		gateway.WithLogger(log.Named("gateway")),
		gateway.WithObserver(rec),
	)
}

type appDeps struct {
	fx.In

	Router  httpx.Router
	Gateway *gateway.Router
	Metrics http.Handler `name:"metrics"`
	Access  *logger.Middleware
	Store   *store.RouteStore
}

func provideApp(d appDeps) http.Handler {
	return httpx.Build(httpx.Deps{
		Router:  d.Router,
		Gateway: d.Gateway,
		Metrics: d.Metrics,
		Access:  d.Access,
		Store:   d.Store,
	})
}

// ---- Server lifecycle ----

type serverDeps struct {
	fx.In

	Opts      Options
	Logger    *zap.Logger
	App       http.Handler `name:"app"`
	Watcher   *watch.Watcher
	Compiler  *compiler.GoCompiler
	Loader    *runtime.Loader
	Readiness *readiness.Coordinator
}

func registerHooks(lc fx.Lifecycle, d serverDeps) {
	srv := &http.Server{
		Handler:           d.App,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// The compiler and the config watcher outlive OnStart's context.
	runCtx, cancel := context.WithCancel(context.Background())
	watchDone := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			p, err := d.Watcher.Init(runCtx)
			if err != nil {
				cancel()
				return fmt.Errorf("load project: %w", err)
			}

			ln, err := net.Listen("tcp", d.Opts.Addr())
			if err != nil {
				cancel()
				d.Compiler.Stop()
				return fmt.Errorf("listen %s: %w", d.Opts.Addr(), err)
			}

			go func() {
				defer close(watchDone)
				if err := d.Watcher.Run(runCtx); err != nil {
					d.Logger.Error("config watcher stopped", zap.Error(err))
				}
			}()
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					d.Logger.Fatal("server failed", zap.Error(err))
				}
			}()

			d.Logger.Info("server starting",
				zap.String("addr", ln.Addr().String()),
				zap.String("root", p.Root),
				zap.Int("functions", len(p.Config.Functions)),
				zap.Bool("framework", !p.OwnsCompiler()),
			)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("server stopping")
			err := srv.Shutdown(ctx)
			cancel()
			select {
			case <-watchDone:
			case <-ctx.Done():
			}
			d.Compiler.Stop()
			return errors.Join(err, d.Loader.Close(ctx), d.Readiness.Close())
		},
	})
}
