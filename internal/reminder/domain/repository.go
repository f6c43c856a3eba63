package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Repository interface {
	FindSettings(ctx context.Context, tenantID string) (*Settings, error)
	// InsertSettings returns ErrSettingsExists when the tenant already has a row.
	InsertSettings(ctx context.Context, settings *Settings) error
	UpdateSettings(ctx context.Context, settings *Settings) error

	// ListActiveTemplates returns every active template of the tenant when typ is empty.
	ListActiveTemplates(ctx context.Context, tenantID string, typ TemplateType) ([]Template, error)
	FindTemplate(ctx context.Context, tenantID string, id snowflake.ID) (*Template, error)
	InsertTemplate(ctx context.Context, template *Template) error
	DeactivateTemplate(ctx context.Context, tenantID string, id snowflake.ID, at time.Time) (bool, error)
	CountTemplates(ctx context.Context, tenantID string) (int64, error)
}
