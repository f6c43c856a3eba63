package policy

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Settings  domain.Service
	Templates domain.Repository
	Carts     cartdomain.Repository
	Config    *config.RecoveryConfigHolder `optional:"true"`
}

type Evaluator struct {
	log       *zap.Logger
	settings  domain.Service
	templates domain.Repository
	carts     cartdomain.Repository
	cfg       *config.RecoveryConfigHolder
}

func New(p Params) domain.Evaluator {
	return &Evaluator{
		log:       p.Log.Named("reminder.policy"),
		settings:  p.Settings,
		templates: p.Templates,
		carts:     p.Carts,
		cfg:       p.Config,
	}
}

// EvaluateDue selects the carts that crossed their stage threshold at now. Thresholds are strict:
// a cart exactly delay old is picked up on the next evaluation.
func (e *Evaluator) EvaluateDue(ctx context.Context, tenantID string, now time.Time) (domain.DueCarts, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.DueCarts{}, domain.ErrInvalidTenant
	}

	settings, err := e.settings.GetSettings(ctx, tenantID)
	if err != nil {
		return domain.DueCarts{}, err
	}
	if !settings.IsActive {
		return domain.DueCarts{}, nil
	}

	firstTemplate, err := e.assignedTemplate(ctx, tenantID, settings.TemplateFirstID, domain.TemplateTypeFirst)
	if err != nil {
		return domain.DueCarts{}, err
	}
	if firstTemplate == nil {
		return domain.DueCarts{}, domain.ErrMissingTemplate
	}

	limit := e.cfg.Get().DispatchBatchLimit
	firstDelay := settings.FirstDelay()

	candidates, err := e.carts.ListFirstDue(ctx, tenantID, now.Add(-firstDelay), limit)
	if err != nil {
		return domain.DueCarts{}, err
	}

	out := domain.DueCarts{FirstTemplate: firstTemplate}
	seen := make(map[snowflake.ID]struct{}, len(candidates))
	for _, cart := range candidates {
		if !cart.FirstReminderDue(now, firstDelay) {
			continue
		}
		seen[cart.ID] = struct{}{}
		out.FirstDue = append(out.FirstDue, cart)
	}

	if !settings.SecondReminderEnabled {
		return out, nil
	}
	secondTemplate, err := e.assignedTemplate(ctx, tenantID, settings.TemplateSecondID, domain.TemplateTypeSecond)
	if err != nil {
		return domain.DueCarts{}, err
	}
	if secondTemplate == nil {
		e.log.Debug("reminder.policy.second_stage_unassigned", zap.String("tenant_id", tenantID))
		return out, nil
	}
	out.SecondTemplate = secondTemplate

	remaining := limit - len(out.FirstDue)
	if remaining <= 0 {
		return out, nil
	}

	secondDelay := settings.SecondDelay()
	candidates, err = e.carts.ListSecondDue(ctx, tenantID, now.Add(-secondDelay), remaining)
	if err != nil {
		return domain.DueCarts{}, err
	}
	for _, cart := range candidates {
		if _, dup := seen[cart.ID]; dup {
			continue
		}
		if !cart.SecondReminderDue(now, secondDelay) {
			continue
		}
		out.SecondDue = append(out.SecondDue, cart)
	}
	return out, nil
}

// assignedTemplate returns the template assigned to the slot when it is still active and of the right type.
func (e *Evaluator) assignedTemplate(ctx context.Context, tenantID string, id *snowflake.ID, typ domain.TemplateType) (*domain.Template, error) {
	if id == nil || *id == 0 {
		return nil, nil
	}
	template, err := e.templates.FindTemplate(ctx, tenantID, *id)
	if err != nil {
		return nil, err
	}
	if template == nil || !template.IsActive || template.Type != typ {
		return nil, nil
	}
	return template, nil
}
