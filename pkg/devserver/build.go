package devserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetfn/fleet-dev/pkg/compiler"
	"github.com/fleetfn/fleet-dev/pkg/config"
)

// ErrFrameworkOwnsBuild is returned by Build for projects whose framework
// compiles the functions itself.
var ErrFrameworkOwnsBuild = errors.New("the project's framework compiles its own functions")

// Build compiles every function of the project once, without serving or
// watching.
func Build(ctx context.Context, o Options, opts ...compiler.Option) error {
	p, err := config.Load(o.Root, o.configOptions())
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if !p.OwnsCompiler() {
		return ErrFrameworkOwnsBuild
	}
	m, err := p.Manifest()
	if err != nil {
		return err
	}

	if o.GoBinary != "" {
		opts = append(opts, compiler.WithGoBinary(o.GoBinary))
	}
	return compiler.New(p.Root, opts...).BuildOnce(ctx, compiler.Plan{
		Entries: m.Entries,
		OutDir:  p.CompiledDir(),
		Env:     p.Config.Env,
	})
}
