package domain

import (
	"context"
	"errors"
	"time"

	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
)

type UpdateSettingsRequest struct {
	IsActive              *bool
	DelayMinutesFirst     *int
	DelayMinutesSecond    *int
	TemplateFirstID       *string
	TemplateSecondID      *string
	SecondReminderEnabled *bool
}

type CreateTemplateRequest struct {
	Name        string
	Type        string
	TextContent string
	ImageURL    string
}

type Service interface {
	// GetSettings returns the tenant settings, creating the defaults on first read.
	GetSettings(ctx context.Context, tenantID string) (Settings, error)
	UpdateSettings(ctx context.Context, tenantID string, req UpdateSettingsRequest) (Settings, error)
	ListTemplates(ctx context.Context, tenantID string, typ string) ([]Template, error)
	CreateTemplate(ctx context.Context, tenantID string, req CreateTemplateRequest) (Template, error)
	DeactivateTemplate(ctx context.Context, tenantID string, id string) error
	// EnsureDefaultTemplates seeds and assigns the default templates when the tenant has none.
	EnsureDefaultTemplates(ctx context.Context, tenantID string) (bool, error)
}

// DueCarts is the output of one policy evaluation.
type DueCarts struct {
	FirstDue       []cartdomain.Cart
	SecondDue      []cartdomain.Cart
	FirstTemplate  *Template
	SecondTemplate *Template
}

func (d DueCarts) Empty() bool {
	return len(d.FirstDue) == 0 && len(d.SecondDue) == 0
}

type Evaluator interface {
	EvaluateDue(ctx context.Context, tenantID string, now time.Time) (DueCarts, error)
}

type DispatchResult struct {
	FirstSent   int `json:"first_sent"`
	SecondSent  int `json:"second_sent"`
	SendFailed  int `json:"send_failed"`
	MarkFailed  int `json:"mark_failed"`
	MarkSkipped int `json:"mark_skipped"`
}

type Dispatcher interface {
	Dispatch(ctx context.Context, tenantID string, now time.Time) (DispatchResult, error)
}

var (
	ErrInvalidTenant          = errors.New("invalid_tenant")
	ErrInvalidID              = errors.New("invalid_id")
	ErrInvalidDelay           = errors.New("invalid_delay")
	ErrInvalidTemplateType    = errors.New("invalid_template_type")
	ErrInvalidTemplateName    = errors.New("invalid_template_name")
	ErrInvalidTemplateContent = errors.New("invalid_template_content")
	ErrTemplateNotFound       = errors.New("template_not_found")
	ErrTemplateTypeMismatch   = errors.New("template_type_mismatch")
	ErrSettingsExists         = errors.New("settings_exists")
	ErrMissingTemplate        = errors.New("missing_template")
	ErrSendFailed             = errors.New("send_failed")
	ErrMarkFailed             = errors.New("mark_failed")
)
