package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/recoverly/internal/cart/domain"
	"github.com/smallbiznis/recoverly/pkg/db"
	"github.com/smallbiznis/recoverly/pkg/db/pagination"
	"gorm.io/gorm"
)

const cartColumns = `id, tenant_id, external_cart_id, customer_name, customer_phone, customer_email,
	cart_url, total_amount, currency, items, status,
	first_reminder_sent, first_reminder_sent_at, second_reminder_sent, second_reminder_sent_at,
	recovered_at, created_at, updated_at`

type repo struct {
	db *gorm.DB
}

func Provide(conn *gorm.DB) domain.Repository {
	return &repo{db: conn}
}

func (r *repo) FindByID(ctx context.Context, tenantID string, id snowflake.ID) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+cartColumns+`
		 FROM abandoned_carts WHERE tenant_id = ? AND id = ?`,
		tenantID,
		id,
	).Scan(&cart).Error
	if err != nil {
		return nil, err
	}
	if cart.ID == 0 {
		return nil, nil
	}
	return &cart, nil
}

func (r *repo) FindByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Cart, error) {
	var cart domain.Cart
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+cartColumns+`
		 FROM abandoned_carts WHERE tenant_id = ? AND external_cart_id = ?`,
		tenantID,
		externalID,
	).Scan(&cart).Error
	if err != nil {
		return nil, err
	}
	if cart.ID == 0 {
		return nil, nil
	}
	return &cart, nil
}

func (r *repo) Insert(ctx context.Context, cart *domain.Cart) error {
	err := r.db.WithContext(ctx).Exec(
		`INSERT INTO abandoned_carts (`+cartColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cart.ID,
		cart.TenantID,
		cart.ExternalCartID,
		cart.CustomerName,
		cart.CustomerPhone,
		cart.CustomerEmail,
		cart.CartURL,
		cart.TotalAmount,
		cart.Currency,
		cart.Items,
		cart.Status,
		cart.FirstReminderSent,
		cart.FirstReminderSentAt,
		cart.SecondReminderSent,
		cart.SecondReminderSentAt,
		cart.RecoveredAt,
		cart.CreatedAt,
		cart.UpdatedAt,
	).Error
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrDuplicateCart
		}
		return err
	}
	return nil
}

func (r *repo) MarkReminderSent(ctx context.Context, id snowflake.ID, stage domain.ReminderStage, sentAt time.Time) (bool, error) {
	var res *gorm.DB
	switch stage {
	case domain.StageFirst:
		res = r.db.WithContext(ctx).Exec(
			`UPDATE abandoned_carts
			 SET first_reminder_sent = ?, first_reminder_sent_at = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND first_reminder_sent = ?`,
			true,
			sentAt,
			sentAt,
			id,
			domain.StatusPending,
			false,
		)
	case domain.StageSecond:
		res = r.db.WithContext(ctx).Exec(
			`UPDATE abandoned_carts
			 SET second_reminder_sent = ?, second_reminder_sent_at = ?, updated_at = ?
			 WHERE id = ? AND status = ? AND first_reminder_sent = ? AND second_reminder_sent = ?`,
			true,
			sentAt,
			sentAt,
			id,
			domain.StatusPending,
			true,
			false,
		)
	default:
		return false, domain.ErrInvalidStage
	}
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListFirstDue(ctx context.Context, tenantID string, createdBefore time.Time, limit int) ([]domain.Cart, error) {
	var carts []domain.Cart
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+cartColumns+`
		 FROM abandoned_carts
		 WHERE tenant_id = ? AND status = ? AND first_reminder_sent = ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		tenantID,
		domain.StatusPending,
		false,
		createdBefore,
		limit,
	).Scan(&carts).Error
	if err != nil {
		return nil, err
	}
	return carts, nil
}

func (r *repo) ListSecondDue(ctx context.Context, tenantID string, firstSentBefore time.Time, limit int) ([]domain.Cart, error) {
	var carts []domain.Cart
	err := r.db.WithContext(ctx).Raw(
		`SELECT `+cartColumns+`
		 FROM abandoned_carts
		 WHERE tenant_id = ? AND status = ? AND first_reminder_sent = ? AND second_reminder_sent = ?
		   AND first_reminder_sent_at IS NOT NULL AND first_reminder_sent_at < ?
		 ORDER BY first_reminder_sent_at ASC, id ASC
		 LIMIT ?`,
		tenantID,
		domain.StatusPending,
		true,
		false,
		firstSentBefore,
		limit,
	).Scan(&carts).Error
	if err != nil {
		return nil, err
	}
	return carts, nil
}

func (r *repo) List(ctx context.Context, tenantID string, filter domain.ListCartFilter, page pagination.Pagination) ([]*domain.Cart, error) {
	var carts []*domain.Cart
	stmt := r.db.WithContext(ctx).
		Model(&domain.Cart{}).
		Where("tenant_id = ?", tenantID)
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, err
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, err
		}
		id, err := strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return nil, err
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Limit(page.Limit() + 1).
		Find(&carts).Error
	if err != nil {
		return nil, err
	}
	return carts, nil
}

func (r *repo) Transition(ctx context.Context, tenantID, externalID string, to domain.Status, at time.Time) (bool, error) {
	var recoveredAt *time.Time
	if to == domain.StatusRecovered {
		recoveredAt = &at
	}
	res := r.db.WithContext(ctx).Exec(
		`UPDATE abandoned_carts
		 SET status = ?, recovered_at = ?, updated_at = ?
		 WHERE tenant_id = ? AND external_cart_id = ? AND status = ?`,
		to,
		recoveredAt,
		at,
		tenantID,
		externalID,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ExpireStale(ctx context.Context, tenantID string, createdBefore, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`UPDATE abandoned_carts
		 SET status = ?, updated_at = ?
		 WHERE tenant_id = ? AND status = ? AND created_at < ?`,
		domain.StatusExpired,
		at,
		tenantID,
		domain.StatusPending,
		createdBefore,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) CountByStatus(ctx context.Context, tenantID string) (map[domain.Status]int64, error) {
	var rows []struct {
		Status domain.Status
		Count  int64
	}
	err := r.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS count
		 FROM abandoned_carts WHERE tenant_id = ?
		 GROUP BY status`,
		tenantID,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Status]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
