package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/recoverly/internal/clock"
	"github.com/smallbiznis/recoverly/internal/config"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	GenID  *snowflake.Node
	Repo   domain.Repository
	Clock  clock.Clock
	Config *config.RecoveryConfigHolder `optional:"true"`
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
	clock clock.Clock
	cfg   *config.RecoveryConfigHolder
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("reminder.service"),
		genID: p.GenID,
		repo:  p.Repo,
		clock: p.Clock,
		cfg:   p.Config,
	}
}

func (s *Service) GetSettings(ctx context.Context, tenantID string) (domain.Settings, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.Settings{}, domain.ErrInvalidTenant
	}

	settings, err := s.repo.FindSettings(ctx, tenantID)
	if err != nil {
		return domain.Settings{}, err
	}
	if settings != nil {
		return *settings, nil
	}

	created := domain.DefaultSettings(s.genID.Generate(), tenantID, s.clock.Now())
	if err := s.repo.InsertSettings(ctx, &created); err != nil {
		if !errors.Is(err, domain.ErrSettingsExists) {
			return domain.Settings{}, err
		}
		// another request created the row first
		settings, err = s.repo.FindSettings(ctx, tenantID)
		if err != nil {
			return domain.Settings{}, err
		}
		if settings == nil {
			return domain.Settings{}, domain.ErrSettingsExists
		}
		return *settings, nil
	}

	s.log.Info("reminder.settings.created", zap.String("tenant_id", tenantID))
	return created, nil
}

func (s *Service) UpdateSettings(ctx context.Context, tenantID string, req domain.UpdateSettingsRequest) (domain.Settings, error) {
	settings, err := s.GetSettings(ctx, tenantID)
	if err != nil {
		return domain.Settings{}, err
	}

	if req.IsActive != nil {
		settings.IsActive = *req.IsActive
	}
	if req.DelayMinutesFirst != nil {
		if !domain.ValidDelay(*req.DelayMinutesFirst) {
			return domain.Settings{}, domain.ErrInvalidDelay
		}
		settings.DelayMinutesFirst = *req.DelayMinutesFirst
	}
	if req.DelayMinutesSecond != nil {
		if !domain.ValidDelay(*req.DelayMinutesSecond) {
			return domain.Settings{}, domain.ErrInvalidDelay
		}
		settings.DelayMinutesSecond = *req.DelayMinutesSecond
	}
	if req.SecondReminderEnabled != nil {
		settings.SecondReminderEnabled = *req.SecondReminderEnabled
	}
	if req.TemplateFirstID != nil {
		id, err := s.resolveAssignment(ctx, settings.TenantID, *req.TemplateFirstID, domain.TemplateTypeFirst)
		if err != nil {
			return domain.Settings{}, err
		}
		settings.TemplateFirstID = id
	}
	if req.TemplateSecondID != nil {
		id, err := s.resolveAssignment(ctx, settings.TenantID, *req.TemplateSecondID, domain.TemplateTypeSecond)
		if err != nil {
			return domain.Settings{}, err
		}
		settings.TemplateSecondID = id
	}

	settings.UpdatedAt = s.clock.Now()
	if err := s.repo.UpdateSettings(ctx, &settings); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

// resolveAssignment validates a template id for a stage slot. An empty id clears the slot.
func (s *Service) resolveAssignment(ctx context.Context, tenantID, rawID string, typ domain.TemplateType) (*snowflake.ID, error) {
	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		return nil, nil
	}
	id, err := parseID(rawID)
	if err != nil {
		return nil, err
	}

	template, err := s.repo.FindTemplate(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if template == nil || !template.IsActive {
		return nil, domain.ErrTemplateNotFound
	}
	if template.Type != typ {
		return nil, domain.ErrTemplateTypeMismatch
	}
	return &id, nil
}

func (s *Service) ListTemplates(ctx context.Context, tenantID string, typ string) ([]domain.Template, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, domain.ErrInvalidTenant
	}
	templateType := domain.TemplateType(strings.ToLower(strings.TrimSpace(typ)))
	if templateType != "" && !templateType.Valid() {
		return nil, domain.ErrInvalidTemplateType
	}
	return s.repo.ListActiveTemplates(ctx, tenantID, templateType)
}

func (s *Service) CreateTemplate(ctx context.Context, tenantID string, req domain.CreateTemplateRequest) (domain.Template, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.Template{}, domain.ErrInvalidTenant
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Template{}, domain.ErrInvalidTemplateName
	}
	templateType := domain.TemplateType(strings.ToLower(strings.TrimSpace(req.Type)))
	if !templateType.Valid() {
		return domain.Template{}, domain.ErrInvalidTemplateType
	}
	content := strings.TrimSpace(req.TextContent)
	if content == "" {
		return domain.Template{}, domain.ErrInvalidTemplateContent
	}

	var imageURL *string
	if v := strings.TrimSpace(req.ImageURL); v != "" {
		imageURL = &v
	}

	template := s.newTemplate(tenantID, name, templateType, content, s.clock.Now())
	template.ImageURL = imageURL
	if err := s.repo.InsertTemplate(ctx, &template); err != nil {
		return domain.Template{}, err
	}
	return template, nil
}

func (s *Service) DeactivateTemplate(ctx context.Context, tenantID string, id string) error {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return domain.ErrInvalidTenant
	}
	templateID, err := parseID(id)
	if err != nil {
		return err
	}

	ok, err := s.repo.DeactivateTemplate(ctx, tenantID, templateID, s.clock.Now())
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrTemplateNotFound
	}
	return nil
}

func (s *Service) EnsureDefaultTemplates(ctx context.Context, tenantID string) (bool, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return false, domain.ErrInvalidTenant
	}

	count, err := s.repo.CountTemplates(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}

	seeds := s.cfg.Get().DefaultTemplates
	now := s.clock.Now()
	first := s.newTemplate(tenantID, seeds.First.Name, domain.TemplateTypeFirst, seeds.First.Content, now)
	second := s.newTemplate(tenantID, seeds.Second.Name, domain.TemplateTypeSecond, seeds.Second.Content, now)
	for _, template := range []*domain.Template{&first, &second} {
		if err := s.repo.InsertTemplate(ctx, template); err != nil {
			return false, err
		}
	}

	settings, err := s.GetSettings(ctx, tenantID)
	if err != nil {
		return false, err
	}
	settings.TemplateFirstID = &first.ID
	settings.TemplateSecondID = &second.ID
	settings.UpdatedAt = now
	if err := s.repo.UpdateSettings(ctx, &settings); err != nil {
		return false, err
	}

	s.log.Info("reminder.templates.seeded", zap.String("tenant_id", tenantID))
	return true, nil
}

func (s *Service) newTemplate(tenantID, name string, typ domain.TemplateType, content string, now time.Time) domain.Template {
	return domain.Template{
		ID:          s.genID.Generate(),
		TenantID:    tenantID,
		Name:        name,
		Slug:        slug.Make(name),
		Type:        typ,
		TextContent: content,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, domain.ErrInvalidID
	}
	return id, nil
}
