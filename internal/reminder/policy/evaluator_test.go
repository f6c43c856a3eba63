package policy

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
	cartrepository "github.com/smallbiznis/recoverly/internal/cart/repository"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	reminderrepository "github.com/smallbiznis/recoverly/internal/reminder/repository"
	reminderservice "github.com/smallbiznis/recoverly/internal/reminder/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	evaluator domain.Evaluator
	settings  domain.Service
	reminders domain.Repository
	carts     cartdomain.Repository
	node      *snowflake.Node
}

func newFixture(t *testing.T, cfg config.RecoveryConfig) fixture {
	t.Helper()
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	log := zaptest.NewLogger(t)
	holder := config.NewRecoveryConfigHolderFrom(cfg)
	templates := reminderrepository.NewMemory()
	carts := cartrepository.NewMemory()
	settings := reminderservice.New(reminderservice.Params{
		Log:    log,
		GenID:  node,
		Repo:   templates,
		Clock:  clock.NewFakeClock(baseTime),
		Config: holder,
	})

	return fixture{
		evaluator: New(Params{
			Log:       log,
			Settings:  settings,
			Templates: templates,
			Carts:     carts,
			Config:    holder,
		}),
		settings:  settings,
		reminders: templates,
		carts:     carts,
		node:      node,
	}
}

func (f fixture) seedTemplates(t *testing.T, tenantID string) {
	t.Helper()
	_, err := f.settings.EnsureDefaultTemplates(context.Background(), tenantID)
	require.NoError(t, err)
}

func (f fixture) addCart(t *testing.T, tenantID, externalID string, createdAt time.Time) cartdomain.Cart {
	t.Helper()
	cart := cartdomain.NewCart(f.node.Generate(), cartdomain.Draft{
		TenantID:       tenantID,
		ExternalCartID: externalID,
		CustomerName:   "Sara",
		Currency:       "SAR",
	}, createdAt)
	require.NoError(t, f.carts.Insert(context.Background(), &cart))
	return cart
}

func boolPtr(v bool) *bool { return &v }

func TestEvaluateDue_FirstStageWindow(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.seedTemplates(t, "t1")

	f.addCart(t, "t1", "59m", baseTime.Add(-59*time.Minute))
	f.addCart(t, "t1", "60m", baseTime.Add(-60*time.Minute))
	f.addCart(t, "t1", "61m", baseTime.Add(-61*time.Minute))

	due, err := f.evaluator.EvaluateDue(context.Background(), "t1", baseTime)
	require.NoError(t, err)
	require.Len(t, due.FirstDue, 1)
	assert.Equal(t, "61m", due.FirstDue[0].ExternalCartID)
	assert.Empty(t, due.SecondDue)
	require.NotNil(t, due.FirstTemplate)
	assert.Nil(t, due.SecondTemplate, "second stage is disabled by default")
}

func TestEvaluateDue_OversizedStoredDelayIsClamped(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.seedTemplates(t, "t1")
	ctx := context.Background()

	settings, err := f.settings.GetSettings(ctx, "t1")
	require.NoError(t, err)
	settings.DelayMinutesFirst = 200000000
	require.NoError(t, f.reminders.UpdateSettings(ctx, &settings))

	f.addCart(t, "t1", "fresh", baseTime.Add(-time.Second))

	due, err := f.evaluator.EvaluateDue(ctx, "t1", baseTime)
	require.NoError(t, err)
	assert.Empty(t, due.FirstDue)
	assert.Equal(t, domain.MaxDelayMinutes*time.Minute, settings.FirstDelay())
}

func TestEvaluateDue_MasterSwitch(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.addCart(t, "t1", "old", baseTime.Add(-48*time.Hour))

	_, err := f.settings.UpdateSettings(context.Background(), "t1", domain.UpdateSettingsRequest{IsActive: boolPtr(false)})
	require.NoError(t, err)

	due, err := f.evaluator.EvaluateDue(context.Background(), "t1", baseTime)
	require.NoError(t, err, "inactive settings short-circuit before template checks")
	assert.True(t, due.Empty())
}

func TestEvaluateDue_MissingFirstTemplate(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.addCart(t, "t1", "old", baseTime.Add(-48*time.Hour))

	_, err := f.evaluator.EvaluateDue(context.Background(), "t1", baseTime)
	assert.ErrorIs(t, err, domain.ErrMissingTemplate)
}

func TestEvaluateDue_DeactivatedTemplateCountsAsMissing(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.seedTemplates(t, "t1")
	ctx := context.Background()

	settings, err := f.settings.GetSettings(ctx, "t1")
	require.NoError(t, err)
	require.NoError(t, f.settings.DeactivateTemplate(ctx, "t1", settings.TemplateFirstID.String()))

	_, err = f.evaluator.EvaluateDue(ctx, "t1", baseTime)
	assert.ErrorIs(t, err, domain.ErrMissingTemplate)
}

func TestEvaluateDue_SecondStage(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.seedTemplates(t, "t1")
	ctx := context.Background()

	_, err := f.settings.UpdateSettings(ctx, "t1", domain.UpdateSettingsRequest{SecondReminderEnabled: boolPtr(true)})
	require.NoError(t, err)

	ready := f.addCart(t, "t1", "ready", baseTime.Add(-72*time.Hour))
	_, err = f.carts.MarkReminderSent(ctx, ready.ID, cartdomain.StageFirst, baseTime.Add(-25*time.Hour))
	require.NoError(t, err)

	early := f.addCart(t, "t1", "early", baseTime.Add(-72*time.Hour))
	_, err = f.carts.MarkReminderSent(ctx, early.ID, cartdomain.StageFirst, baseTime.Add(-23*time.Hour))
	require.NoError(t, err)

	exact := f.addCart(t, "t1", "exact", baseTime.Add(-72*time.Hour))
	_, err = f.carts.MarkReminderSent(ctx, exact.ID, cartdomain.StageFirst, baseTime.Add(-24*time.Hour))
	require.NoError(t, err)

	f.addCart(t, "t1", "fresh", baseTime.Add(-2*time.Hour))

	due, err := f.evaluator.EvaluateDue(ctx, "t1", baseTime)
	require.NoError(t, err)
	require.Len(t, due.FirstDue, 1)
	assert.Equal(t, "fresh", due.FirstDue[0].ExternalCartID)
	require.Len(t, due.SecondDue, 1)
	assert.Equal(t, "ready", due.SecondDue[0].ExternalCartID)
	require.NotNil(t, due.SecondTemplate)
}

func TestEvaluateDue_SecondStageWithoutTemplate(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.seedTemplates(t, "t1")
	ctx := context.Background()

	empty := ""
	_, err := f.settings.UpdateSettings(ctx, "t1", domain.UpdateSettingsRequest{
		SecondReminderEnabled: boolPtr(true),
		TemplateSecondID:      &empty,
	})
	require.NoError(t, err)

	cart := f.addCart(t, "t1", "ready", baseTime.Add(-72*time.Hour))
	_, err = f.carts.MarkReminderSent(ctx, cart.ID, cartdomain.StageFirst, baseTime.Add(-48*time.Hour))
	require.NoError(t, err)

	due, err := f.evaluator.EvaluateDue(ctx, "t1", baseTime)
	require.NoError(t, err)
	assert.Empty(t, due.SecondDue)
	assert.Nil(t, due.SecondTemplate)
}

func TestEvaluateDue_TerminalCartsExcluded(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	f.seedTemplates(t, "t1")
	ctx := context.Background()

	f.addCart(t, "t1", "won", baseTime.Add(-5*time.Hour))
	f.addCart(t, "t1", "lost", baseTime.Add(-5*time.Hour))
	_, err := f.carts.Transition(ctx, "t1", "won", cartdomain.StatusRecovered, baseTime)
	require.NoError(t, err)
	_, err = f.carts.Transition(ctx, "t1", "lost", cartdomain.StatusExpired, baseTime)
	require.NoError(t, err)

	due, err := f.evaluator.EvaluateDue(ctx, "t1", baseTime)
	require.NoError(t, err)
	assert.True(t, due.Empty())
}

func TestEvaluateDue_BatchLimit(t *testing.T) {
	cfg := config.DefaultRecoveryConfig()
	cfg.DispatchBatchLimit = 3
	f := newFixture(t, cfg)
	f.seedTemplates(t, "t1")

	for i := 0; i < 5; i++ {
		f.addCart(t, "t1", "c"+strconv.Itoa(i), baseTime.Add(-time.Duration(2+i)*time.Hour))
	}

	due, err := f.evaluator.EvaluateDue(context.Background(), "t1", baseTime)
	require.NoError(t, err)
	require.Len(t, due.FirstDue, 3)
	assert.Equal(t, "c4", due.FirstDue[0].ExternalCartID, "oldest carts first")
}

func TestEvaluateDue_InvalidTenant(t *testing.T) {
	f := newFixture(t, config.DefaultRecoveryConfig())
	_, err := f.evaluator.EvaluateDue(context.Background(), " ", baseTime)
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}
