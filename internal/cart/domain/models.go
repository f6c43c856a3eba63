package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRecovered Status = "recovered"
	StatusExpired   Status = "expired"
)

// Terminal reports whether carts in this status are excluded from reminders.
func (s Status) Terminal() bool {
	return s == StatusRecovered || s == StatusExpired
}

type ReminderStage string

const (
	StageFirst  ReminderStage = "first"
	StageSecond ReminderStage = "second"
)

func (s ReminderStage) Valid() bool {
	return s == StageFirst || s == StageSecond
}

// Cart is an abandoned cart detected on the storefront.
type Cart struct {
	ID                   snowflake.ID   `gorm:"primaryKey" json:"id"`
	TenantID             string         `gorm:"not null;uniqueIndex:ux_abandoned_carts_tenant_external,priority:1" json:"tenant_id"`
	ExternalCartID       string         `gorm:"not null;uniqueIndex:ux_abandoned_carts_tenant_external,priority:2" json:"external_cart_id"`
	CustomerName         string         `gorm:"not null" json:"customer_name"`
	CustomerPhone        *string        `json:"customer_phone,omitempty"`
	CustomerEmail        *string        `json:"customer_email,omitempty"`
	CartURL              string         `gorm:"not null;default:''" json:"cart_url"`
	TotalAmount          int64          `gorm:"not null;default:0" json:"total_amount"`
	Currency             string         `gorm:"not null;size:3" json:"currency"`
	Items                datatypes.JSON `json:"items"`
	Status               Status         `gorm:"not null;default:pending;index" json:"status"`
	FirstReminderSent    bool           `gorm:"not null;default:false" json:"first_reminder_sent"`
	FirstReminderSentAt  *time.Time     `json:"first_reminder_sent_at,omitempty"`
	SecondReminderSent   bool           `gorm:"not null;default:false" json:"second_reminder_sent"`
	SecondReminderSentAt *time.Time     `json:"second_reminder_sent_at,omitempty"`
	RecoveredAt          *time.Time     `json:"recovered_at,omitempty"`
	CreatedAt            time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt            time.Time      `gorm:"not null" json:"updated_at"`
}

func (Cart) TableName() string { return "abandoned_carts" }

// Draft is a normalized storefront order that has not been persisted yet.
type Draft struct {
	TenantID       string
	ExternalCartID string
	CustomerName   string
	CustomerPhone  *string
	CustomerEmail  *string
	CartURL        string
	TotalAmount    int64
	Currency       string
	Items          datatypes.JSON
	Status         Status
}

// NewCart materializes a draft as a fresh pending cart with both reminder flags cleared.
func NewCart(id snowflake.ID, draft Draft, now time.Time) Cart {
	items := draft.Items
	if len(items) == 0 {
		items = datatypes.JSON("[]")
	}
	return Cart{
		ID:             id,
		TenantID:       draft.TenantID,
		ExternalCartID: draft.ExternalCartID,
		CustomerName:   draft.CustomerName,
		CustomerPhone:  draft.CustomerPhone,
		CustomerEmail:  draft.CustomerEmail,
		CartURL:        draft.CartURL,
		TotalAmount:    draft.TotalAmount,
		Currency:       draft.Currency,
		Items:          items,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// FirstReminderDue is the stage-1 predicate. The threshold is strict: a cart exactly
// delay old is not due yet.
func (c Cart) FirstReminderDue(now time.Time, delay time.Duration) bool {
	return c.Status == StatusPending &&
		!c.FirstReminderSent &&
		c.CreatedAt.Before(now.Add(-delay))
}

// SecondReminderDue is the stage-2 predicate, with the same strict threshold.
func (c Cart) SecondReminderDue(now time.Time, delay time.Duration) bool {
	return c.Status == StatusPending &&
		c.FirstReminderSent &&
		!c.SecondReminderSent &&
		c.FirstReminderSentAt != nil &&
		c.FirstReminderSentAt.Before(now.Add(-delay))
}

// FormattedTotal renders minor units as a decimal string, e.g. 15050 -> "150.50".
func (c Cart) FormattedTotal() string {
	return formatMinor(c.TotalAmount)
}
