package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/cart"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/observability"
	"github.com/smallbiznis/recoverly/internal/persistence"
	"github.com/smallbiznis/recoverly/internal/providers"
	"github.com/smallbiznis/recoverly/internal/ratelimit"
	"github.com/smallbiznis/recoverly/internal/recovery"
	"github.com/smallbiznis/recoverly/internal/reminder"
	"github.com/smallbiznis/recoverly/internal/scheduler"
	"github.com/smallbiznis/recoverly/internal/storefront"
	"go.uber.org/fx"
)

func main() {
	cfg := config.Load()
	cfg.Scheduler.Enabled = true

	app := fx.New(
		fx.Supply(cfg),
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		persistence.Module,
		ratelimit.Module,

		// Domain services required by scheduler
		storefront.Module,
		cart.Module,
		reminder.Module,
		providers.Module,
		recovery.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// Node 2 keeps scheduler-generated ids disjoint from the API process.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
