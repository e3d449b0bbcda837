package coupons

import (
	"context"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) ListCoupons(ctx context.Context) ([]Coupon, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT code, discount_type, discount_value, expires_at, max_uses, used_count, created_at
		FROM coupons ORDER BY code`)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "list coupons"))
	}
	defer rows.Close()

	var out []Coupon
	for rows.Next() {
		var c Coupon
		if err := rows.Scan(&c.Code, &c.Type, &c.Value, &c.ExpiresAt, &c.MaxUses, &c.UsedCount, &c.CreatedAt); err != nil {
			return nil, apperr.Persistence(err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) CreateCoupon(ctx context.Context, c *Coupon) error {
	ct, err := r.DB.Exec(ctx, `
		INSERT INTO coupons(code, discount_type, discount_value, expires_at, max_uses, used_count, created_at)
		VALUES ($1,$2,$3,$4,$5,0,$6)
		ON CONFLICT (code) DO NOTHING`,
		c.Code, c.Type, c.Value, c.ExpiresAt, c.MaxUses, c.CreatedAt)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "insert coupon"))
	}
	if ct.RowsAffected() == 0 {
		return apperr.Validation("code", "coupon already exists")
	}
	return nil
}

func (r *Repo) DeleteCoupon(ctx context.Context, code string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM coupons WHERE code=$1`, code)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "delete coupon"))
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("coupon")
	}
	return nil
}
