package repository

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/pkg/db/pagination"
)

type memoryRepo struct {
	mu    sync.RWMutex
	carts map[snowflake.ID]domain.Cart
}

// NewMemory returns a process-local repository with the same conditional-write semantics
// as the SQL one.
func NewMemory() domain.Repository {
	return &memoryRepo{carts: make(map[snowflake.ID]domain.Cart)}
}

func (r *memoryRepo) FindByID(ctx context.Context, tenantID string, id snowflake.ID) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[id]
	if !ok || cart.TenantID != tenantID {
		return nil, nil
	}
	return &cart, nil
}

func (r *memoryRepo) FindByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cart := range r.carts {
		if cart.TenantID == tenantID && cart.ExternalCartID == externalID {
			c := cart
			return &c, nil
		}
	}
	return nil, nil
}

func (r *memoryRepo) Insert(ctx context.Context, cart *domain.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.carts {
		if existing.TenantID == cart.TenantID && existing.ExternalCartID == cart.ExternalCartID {
			return domain.ErrDuplicateCart
		}
	}
	if _, ok := r.carts[cart.ID]; ok {
		return domain.ErrDuplicateCart
	}
	r.carts[cart.ID] = *cart
	return nil
}

func (r *memoryRepo) MarkReminderSent(ctx context.Context, id snowflake.ID, stage domain.ReminderStage, sentAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[id]
	if !ok || cart.Status != domain.StatusPending {
		return false, nil
	}

	at := sentAt
	switch stage {
	case domain.StageFirst:
		if cart.FirstReminderSent {
			return false, nil
		}
		cart.FirstReminderSent = true
		cart.FirstReminderSentAt = &at
	case domain.StageSecond:
		if !cart.FirstReminderSent || cart.SecondReminderSent {
			return false, nil
		}
		cart.SecondReminderSent = true
		cart.SecondReminderSentAt = &at
	default:
		return false, domain.ErrInvalidStage
	}
	cart.UpdatedAt = sentAt
	r.carts[id] = cart
	return true, nil
}

func (r *memoryRepo) ListFirstDue(ctx context.Context, tenantID string, createdBefore time.Time, limit int) ([]domain.Cart, error) {
	r.mu.RLock()
	out := make([]domain.Cart, 0)
	for _, cart := range r.carts {
		if cart.TenantID == tenantID &&
			cart.Status == domain.StatusPending &&
			!cart.FirstReminderSent &&
			cart.CreatedAt.Before(createdBefore) {
			out = append(out, cart)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return truncate(out, limit), nil
}

func (r *memoryRepo) ListSecondDue(ctx context.Context, tenantID string, firstSentBefore time.Time, limit int) ([]domain.Cart, error) {
	r.mu.RLock()
	out := make([]domain.Cart, 0)
	for _, cart := range r.carts {
		if cart.TenantID == tenantID &&
			cart.Status == domain.StatusPending &&
			cart.FirstReminderSent &&
			!cart.SecondReminderSent &&
			cart.FirstReminderSentAt != nil &&
			cart.FirstReminderSentAt.Before(firstSentBefore) {
			out = append(out, cart)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].FirstReminderSentAt.Equal(*out[j].FirstReminderSentAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].FirstReminderSentAt.Before(*out[j].FirstReminderSentAt)
	})
	return truncate(out, limit), nil
}

func (r *memoryRepo) List(ctx context.Context, tenantID string, filter domain.ListCartFilter, page pagination.Pagination) ([]*domain.Cart, error) {
	var (
		afterCreated time.Time
		afterID      int64
		hasCursor    bool
	)
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		afterCreated, err = time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		afterID, err = strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, err
		}
		hasCursor = true
	}

	r.mu.RLock()
	out := make([]*domain.Cart, 0)
	for _, cart := range r.carts {
		if cart.TenantID != tenantID {
			continue
		}
		if filter.Status != "" && cart.Status != filter.Status {
			continue
		}
		if hasCursor {
			older := cart.CreatedAt.Before(afterCreated) ||
				(cart.CreatedAt.Equal(afterCreated) && int64(cart.ID) < afterID)
			if !older {
				continue
			}
		}
		c := cart
		out = append(out, &c)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit := page.Limit() + 1; len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryRepo) Transition(ctx context.Context, tenantID, externalID string, to domain.Status, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, cart := range r.carts {
		if cart.TenantID != tenantID || cart.ExternalCartID != externalID {
			continue
		}
		if cart.Status != domain.StatusPending {
			return false, nil
		}
		cart.Status = to
		if to == domain.StatusRecovered {
			recovered := at
			cart.RecoveredAt = &recovered
		}
		cart.UpdatedAt = at
		r.carts[id] = cart
		return true, nil
	}
	return false, nil
}

func (r *memoryRepo) ExpireStale(ctx context.Context, tenantID string, createdBefore, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for id, cart := range r.carts {
		if cart.TenantID == tenantID &&
			cart.Status == domain.StatusPending &&
			cart.CreatedAt.Before(createdBefore) {
			cart.Status = domain.StatusExpired
			cart.UpdatedAt = at
			r.carts[id] = cart
			n++
		}
	}
	return n, nil
}

func (r *memoryRepo) CountByStatus(ctx context.Context, tenantID string) (map[domain.Status]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[domain.Status]int64)
	for _, cart := range r.carts {
		if cart.TenantID == tenantID {
			out[cart.Status]++
		}
	}
	return out, nil
}

func truncate(carts []domain.Cart, limit int) []domain.Cart {
	if limit > 0 && len(carts) > limit {
		return carts[:limit]
	}
	return carts
}
