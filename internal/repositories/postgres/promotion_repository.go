package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	domain "github.com/aura-apparel/api/internal/domain"
	pg "github.com/aura-apparel/api/internal/platform/postgres"
)

type promoRow struct {
	Code          string
	DiscountType  string
	Value         int64
	MinOrderValue int64
}

// PromotionRepository reads promo code reference data from Postgres.
type PromotionRepository struct {
	db *sql.DB
}

// NewPromotionRepository constructs a PromotionRepository bound to the shared handle.
func NewPromotionRepository(db *sql.DB) (*PromotionRepository, error) {
	if db == nil {
		return nil, errors.New("postgres: database handle is required")
	}
	return &PromotionRepository{db: db}, nil
}

// GetByCode looks up a promo code case-insensitively.
func (r *PromotionRepository) GetByCode(ctx context.Context, code string) (domain.PromoCode, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.PromoCode{}, pg.NotFoundError("promotions.get")
	}

	q := pg.QuerierFromContext(ctx, r.db)

	const query = `
		SELECT code, discount_type, value, min_order_value
		FROM promo_codes
		WHERE code = UPPER($1)`

	var row promoRow
	err := q.QueryRowContext(ctx, query, code).Scan(&row.Code, &row.DiscountType, &row.Value, &row.MinOrderValue)
	if err != nil {
		return domain.PromoCode{}, pg.WrapError("promotions.get", err)
	}

	return domain.PromoCode{
		Code:          row.Code,
		Type:          domain.DiscountType(row.DiscountType),
		Value:         row.Value,
		MinOrderValue: row.MinOrderValue,
	}, nil
}

// Upsert inserts or replaces the promo code definition. Codes are stored upper-cased.
func (r *PromotionRepository) Upsert(ctx context.Context, promo domain.PromoCode) error {
	code := strings.ToUpper(strings.TrimSpace(promo.Code))
	if code == "" {
		return pg.ConflictError("promotions.upsert", errors.New("promo code is required"))
	}

	q := pg.QuerierFromContext(ctx, r.db)

	const upsert = `
		INSERT INTO promo_codes (code, discount_type, value, min_order_value)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (code)
		DO UPDATE SET discount_type = EXCLUDED.discount_type,
		              value = EXCLUDED.value,
		              min_order_value = EXCLUDED.min_order_value`

	if _, err := q.ExecContext(ctx, upsert, code, string(promo.Type), promo.Value, promo.MinOrderValue); err != nil {
		return pg.WrapError("promotions.upsert", err)
	}
	return nil
}
