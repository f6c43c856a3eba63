package providers

import (
	"github.com/smallbiznis/recoverly/internal/providers/messaging"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	messaging.Module,
)
