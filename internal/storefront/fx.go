package storefront

import (
	"github.com/smallbiznis/recoverly/internal/storefront/provisioning"
	"github.com/smallbiznis/recoverly/internal/storefront/salla"
	"github.com/smallbiznis/recoverly/internal/storefront/token"
	"go.uber.org/fx"
)

// Module wires the storefront client, token lifecycle and provisioning. The repository comes
// from persistence.Module.
var Module = fx.Module("storefront.service",
	fx.Provide(salla.New),
	fx.Provide(token.New),
	fx.Provide(provisioning.New),
)
