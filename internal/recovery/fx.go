package recovery

import "go.uber.org/fx"

var Module = fx.Module("recovery",
	fx.Provide(New),
)
