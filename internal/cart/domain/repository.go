package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/pkg/db/pagination"
)

type Repository interface {
	FindByID(ctx context.Context, tenantID string, id snowflake.ID) (*Cart, error)
	FindByExternalID(ctx context.Context, tenantID, externalID string) (*Cart, error)
	// Insert returns ErrDuplicateCart when (tenant, external id) already exists.
	Insert(ctx context.Context, cart *Cart) error
	// MarkReminderSent flips the stage flag only while it is still false and the cart is pending.
	// It reports false when another writer got there first or the cart left pending.
	MarkReminderSent(ctx context.Context, id snowflake.ID, stage ReminderStage, sentAt time.Time) (bool, error)
	ListFirstDue(ctx context.Context, tenantID string, createdBefore time.Time, limit int) ([]Cart, error)
	ListSecondDue(ctx context.Context, tenantID string, firstSentBefore time.Time, limit int) ([]Cart, error)
	List(ctx context.Context, tenantID string, filter ListCartFilter, page pagination.Pagination) ([]*Cart, error)
	// Transition moves a pending cart to a terminal status. Reports false when the cart was not pending.
	Transition(ctx context.Context, tenantID, externalID string, to Status, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, tenantID string, createdBefore, at time.Time) (int64, error)
	CountByStatus(ctx context.Context, tenantID string) (map[Status]int64, error)
}
