package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/reminder/domain"
	"github.com/smallbiznis/recoverly/pkg/db"
	"gorm.io/gorm"
)

const (
	settingsColumns = `id, tenant_id, is_active, delay_minutes_first, delay_minutes_second,
	template_first_id, template_second_id, second_reminder_enabled, created_at, updated_at`
	templateColumns = `id, tenant_id, name, slug, type, text_content, image_url, is_active, created_at, updated_at`
)

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) FindSettings(ctx context.Context, tenantID string) (*domain.Settings, error) {
	var settings domain.Settings
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+settingsColumns+`
		 FROM reminder_settings WHERE tenant_id = ?`,
		tenantID,
	).Scan(&settings).Error
	if err != nil {
		return nil, err
	}
	if settings.ID == 0 {
		return nil, nil
	}
	return &settings, nil
}

func (r *repo) InsertSettings(ctx context.Context, settings *domain.Settings) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO reminder_settings (`+settingsColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		settings.ID,
		settings.TenantID,
		settings.IsActive,
		settings.DelayMinutesFirst,
		settings.DelayMinutesSecond,
		settings.TemplateFirstID,
		settings.TemplateSecondID,
		settings.SecondReminderEnabled,
		settings.CreatedAt,
		settings.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrSettingsExists
		}
		return err
	}
	return nil
}

func (r *repo) UpdateSettings(ctx context.Context, settings *domain.Settings) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE reminder_settings
		 SET is_active = ?, delay_minutes_first = ?, delay_minutes_second = ?,
		     template_first_id = ?, template_second_id = ?, second_reminder_enabled = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ?`,
		settings.IsActive,
		settings.DelayMinutesFirst,
		settings.DelayMinutesSecond,
		settings.TemplateFirstID,
		settings.TemplateSecondID,
		settings.SecondReminderEnabled,
		settings.UpdatedAt,
		settings.TenantID,
		settings.ID,
	).Error
}

func (r *repo) ListActiveTemplates(ctx context.Context, tenantID string, typ domain.TemplateType) ([]domain.Template, error) {
	var templates []domain.Template
	stmt := r.db.WithContext(ctx).
		Model(&domain.Template{}).
		Where("tenant_id = ? AND is_active = ?", tenantID, true)
	if typ != "" {
		stmt = stmt.Where("type = ?", typ)
	}
	err := stmt.
		Order("created_at asc, id asc").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *repo) FindTemplate(ctx context.Context, tenantID string, id snowflake.ID) (*domain.Template, error) {
	var template domain.Template
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+templateColumns+`
		 FROM message_templates WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&template).Error
	if err != nil {
		return nil, err
	}
	if template.ID == 0 {
		return nil, nil
	}
	return &template, nil
}

func (r *repo) InsertTemplate(ctx context.Context, template *domain.Template) error {
	return r.db.WithContext(ctx).Exec(
		`INSERT INTO message_templates (`+templateColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		template.ID,
		template.TenantID,
		template.Name,
		template.Slug,
		template.Type,
		template.TextContent,
		template.ImageURL,
		template.IsActive,
		template.CreatedAt,
		template.UpdatedAt,
	).Error
}

func (r *repo) DeactivateTemplate(ctx context.Context, tenantID string, id snowflake.ID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE message_templates SET is_active = ?, updated_at = ?
		 WHERE tenant_id = ? AND id = ? AND is_active = ?`,
		false,
		at,
		tenantID,
		id,
		true,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) CountTemplates(ctx context.Context, tenantID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&domain.Template{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
