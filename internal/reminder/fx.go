package reminder

import (
	"github.com/smallbiznis/recoverly/internal/reminder/dispatch"
	"github.com/smallbiznis/recoverly/internal/reminder/policy"
	"github.com/smallbiznis/recoverly/internal/reminder/service"
	"go.uber.org/fx"
)

// Module wires the reminder engine. The repository comes from persistence.Module.
var Module = fx.Module("reminder.service",
	fx.Provide(service.New),
	fx.Provide(policy.New),
	fx.Provide(dispatch.New),
)
