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
	"github.com/smallbiznis/recoverly/internal/server"
	"github.com/smallbiznis/recoverly/internal/storefront"
	"go.uber.org/fx"
)

// recoverly runs the HTTP API and the recovery scheduler in one process.
func main() {
	app := fx.New(
		// Core Infrastructure
		fx.Supply(config.Load()),
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		clock.Module,
		persistence.Module,
		ratelimit.Module,

		// Functional Domains
		storefront.Module,
		cart.Module,
		reminder.Module,
		providers.Module,
		recovery.Module,

		scheduler.Module,
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
