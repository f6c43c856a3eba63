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
	"github.com/smallbiznis/recoverly/internal/server"
	"github.com/smallbiznis/recoverly/internal/storefront"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Supply(config.Load()),
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		persistence.Module,
		ratelimit.Module,

		// Manual triggers run the same guarded pass as the scheduler
		storefront.Module,
		cart.Module,
		reminder.Module,
		providers.Module,
		recovery.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
