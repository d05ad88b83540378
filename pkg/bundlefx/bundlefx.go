// Package bundlefx groups the middleware modules every server wires.
package bundlefx

import (
	"github.com/fleetfn/fleet-dev/pkg/middleware/logger"
	"github.com/fleetfn/fleet-dev/pkg/middleware/metrics"
	"go.uber.org/fx"
)

// Module provided to fx. It needs a logger.Config in the graph.
var Module = fx.Options(
	logger.Module,
	metrics.Module,
)
