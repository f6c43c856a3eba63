package cart

import (
	"github.com/smallbiznis/recoverly/internal/cart/service"
	"go.uber.org/fx"
)

// Module wires cart queries and storefront sync. The repository comes from persistence.Module.
var Module = fx.Module("cart.service",
	fx.Provide(service.New),
	fx.Provide(service.NewSyncer),
)
