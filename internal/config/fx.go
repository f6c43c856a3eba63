package config

import "go.uber.org/fx"

// Module provides the hot-reloaded engine tuning. Config itself is supplied by the binary.
var Module = fx.Module("config",
	fx.Provide(NewRecoveryConfigHolder),
)
