package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	cartdomain "github.com/smallbiznis/recoverly/internal/cart/domain"
)

const (
	DefaultDelayMinutesFirst  = 60
	DefaultDelayMinutesSecond = 1440
	// MaxDelayMinutes is one year.
	MaxDelayMinutes = 525600
)

type TemplateType string

const (
	TemplateTypeFirst  TemplateType = "first"
	TemplateTypeSecond TemplateType = "second"
)

func (t TemplateType) Valid() bool {
	return t == TemplateTypeFirst || t == TemplateTypeSecond
}

func (t TemplateType) Stage() cartdomain.ReminderStage {
	if t == TemplateTypeSecond {
		return cartdomain.StageSecond
	}
	return cartdomain.StageFirst
}

// Settings is the per-tenant reminder policy.
type Settings struct {
	ID                    snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID              string        `gorm:"not null;uniqueIndex" json:"tenant_id"`
	IsActive              bool          `gorm:"not null;default:true" json:"is_active"`
	DelayMinutesFirst     int           `gorm:"not null;default:60" json:"delay_minutes_first"`
	DelayMinutesSecond    int           `gorm:"not null;default:1440" json:"delay_minutes_second"`
	TemplateFirstID       *snowflake.ID `json:"template_first_id,omitempty"`
	TemplateSecondID      *snowflake.ID `json:"template_second_id,omitempty"`
	SecondReminderEnabled bool          `gorm:"not null;default:false" json:"second_reminder_enabled"`
	CreatedAt             time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"not null" json:"updated_at"`
}

func (Settings) TableName() string { return "reminder_settings" }

func DefaultSettings(id snowflake.ID, tenantID string, now time.Time) Settings {
	return Settings{
		ID:                    id,
		TenantID:              tenantID,
		IsActive:              true,
		DelayMinutesFirst:     DefaultDelayMinutesFirst,
		DelayMinutesSecond:    DefaultDelayMinutesSecond,
		SecondReminderEnabled: false,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func (s Settings) FirstDelay() time.Duration {
	return delay(s.DelayMinutesFirst, DefaultDelayMinutesFirst)
}

func (s Settings) SecondDelay() time.Duration {
	return delay(s.DelayMinutesSecond, DefaultDelayMinutesSecond)
}

// ValidDelay reports whether minutes is an accepted reminder delay.
func ValidDelay(minutes int) bool {
	return minutes >= 1 && minutes <= MaxDelayMinutes
}

// delay clamps stored rows written before the upper bound existed.
func delay(minutes, def int) time.Duration {
	switch {
	case minutes < 1:
		minutes = def
	case minutes > MaxDelayMinutes:
		minutes = MaxDelayMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// TemplateID returns the template assigned to the stage.
func (s Settings) TemplateID(t TemplateType) *snowflake.ID {
	if t == TemplateTypeSecond {
		return s.TemplateSecondID
	}
	return s.TemplateFirstID
}

type Template struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID    string       `gorm:"not null;index" json:"tenant_id"`
	Name        string       `gorm:"not null" json:"name"`
	Slug        string       `gorm:"not null;default:''" json:"slug"`
	Type        TemplateType `gorm:"not null" json:"type"`
	TextContent string       `gorm:"not null" json:"text_content"`
	ImageURL    *string      `json:"image_url,omitempty"`
	IsActive    bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null" json:"updated_at"`
}

func (Template) TableName() string { return "message_templates" }
