package logger

import "go.uber.org/fx"

// Module needs a Config in the graph.
var Module = fx.Options(
	fx.Provide(ProvideLoggerMiddleware),
	fx.Provide(ProvideLogger),
)
