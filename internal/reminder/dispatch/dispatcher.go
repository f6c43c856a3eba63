package dispatch

import (
	"context"
	"strings"
	"time"

	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/internal/config"
	obsmetrics "github.com/smallbiznis/recoverly/internal/observability/metrics"
	"github.com/smallbiznis/recoverly/internal/observability/tracing"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSendTimeout = 10 * time.Second

type Params struct {
	fx.In

	Log       *zap.Logger
	Config    config.Config
	Evaluator domain.Evaluator
	Carts     cartdomain.Repository
	Sender    domain.Sender
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Dispatcher struct {
	log         *zap.Logger
	evaluator   domain.Evaluator
	carts       cartdomain.Repository
	sender      domain.Sender
	metrics     *obsmetrics.Metrics
	sendTimeout time.Duration
}

func New(p Params) domain.Dispatcher {
	timeout := p.Config.Sender.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{
		log:         p.Log.Named("reminder.dispatch"),
		evaluator:   p.Evaluator,
		carts:       p.Carts,
		sender:      p.Sender,
		metrics:     p.Metrics,
		sendTimeout: timeout,
	}
}

// Dispatch sends every due reminder once. Per-cart failures are counted and never abort the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, tenantID string, now time.Time) (result domain.DispatchResult, err error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.DispatchResult{}, domain.ErrInvalidTenant
	}

	ctx, span := tracing.StartSpan(ctx, "reminder.dispatch", attribute.String("tenant_id", tenantID))
	defer func() { tracing.EndSpan(span, err) }()

	due, err := d.evaluator.EvaluateDue(ctx, tenantID, now)
	if err != nil {
		return domain.DispatchResult{}, err
	}
	if due.Empty() {
		d.log.Debug("reminder.dispatch.nothing_due", zap.String("tenant_id", tenantID))
		return domain.DispatchResult{}, nil
	}

	if due.FirstTemplate != nil {
		sent := d.dispatchStage(ctx, tenantID, cartdomain.StageFirst, due.FirstDue, *due.FirstTemplate, now, &result)
		result.FirstSent += sent
	}
	if due.SecondTemplate != nil {
		sent := d.dispatchStage(ctx, tenantID, cartdomain.StageSecond, due.SecondDue, *due.SecondTemplate, now, &result)
		result.SecondSent += sent
	}

	span.SetAttributes(
		attribute.Int("first_sent", result.FirstSent),
		attribute.Int("second_sent", result.SecondSent),
		attribute.Int("send_failed", result.SendFailed),
	)
	d.log.Info("reminder.dispatch.finish",
		zap.String("tenant_id", tenantID),
		zap.Int("first_sent", result.FirstSent),
		zap.Int("second_sent", result.SecondSent),
		zap.Int("send_failed", result.SendFailed),
		zap.Int("mark_failed", result.MarkFailed),
		zap.Int("mark_skipped", result.MarkSkipped),
	)
	return result, ctx.Err()
}

func (d *Dispatcher) dispatchStage(
	ctx context.Context,
	tenantID string,
	stage cartdomain.ReminderStage,
	carts []cartdomain.Cart,
	template domain.Template,
	now time.Time,
	result *domain.DispatchResult,
) int {
	var sent, sendFailed, markFailed, markSkipped int
	for _, cart := range carts {
		if ctx.Err() != nil {
			break
		}
		switch d.dispatchOne(ctx, tenantID, stage, cart, template, now) {
		case outcomeSent:
			sent++
		case outcomeSendFailed:
			sendFailed++
		case outcomeMarkFailed:
			sent++
			markFailed++
		case outcomeMarkSkipped:
			markSkipped++
		}
	}

	result.SendFailed += sendFailed
	result.MarkFailed += markFailed
	result.MarkSkipped += markSkipped

	stageLabel := string(stage)
	d.metrics.RecordReminders(ctx, stageLabel, obsmetrics.OutcomeSent, sent)
	d.metrics.RecordReminders(ctx, stageLabel, obsmetrics.OutcomeSendFailed, sendFailed)
	d.metrics.RecordReminders(ctx, stageLabel, obsmetrics.OutcomeMarkFailed, markFailed)
	d.metrics.RecordReminders(ctx, stageLabel, obsmetrics.OutcomeMarkSkipped, markSkipped)
	return sent
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSendFailed
	outcomeMarkFailed
	outcomeMarkSkipped
)

func (d *Dispatcher) dispatchOne(
	ctx context.Context,
	tenantID string,
	stage cartdomain.ReminderStage,
	cart cartdomain.Cart,
	template domain.Template,
	now time.Time,
) outcome {
	fields := []zap.Field{
		zap.String("tenant_id", tenantID),
		zap.String("cart_id", cart.ID.String()),
		zap.String("stage", string(stage)),
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	res, err := d.sender.Send(sendCtx, domain.SendRequest{
		TenantID: tenantID,
		Stage:    stage,
		Cart:     cart,
		Template: template,
		Content:  Render(template.TextContent, cart),
	})
	cancel()
	if err != nil {
		d.log.Warn("reminder.dispatch.send_failed", append(fields, zap.Error(err))...)
		return outcomeSendFailed
	}

	marked, err := d.carts.MarkReminderSent(ctx, cart.ID, stage, now)
	if err != nil {
		d.log.Error("reminder.dispatch.mark_failed",
			append(fields,
				zap.String("provider", res.Provider),
				zap.String("message_id", res.MessageID),
				zap.String("note", "possible duplicate send"),
				zap.Error(err),
			)...)
		return outcomeMarkFailed
	}
	if !marked {
		d.log.Warn("reminder.dispatch.mark_skipped", fields...)
		return outcomeMarkSkipped
	}

	d.log.Debug("reminder.dispatch.sent", append(fields, zap.String("message_id", res.MessageID))...)
	return outcomeSent
}
