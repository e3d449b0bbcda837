package coupons

import (
	"context"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/ariefcatur/go-account-shop.git/internal/auth"
)

type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

type Coupon struct {
	Code      string       `json:"code"`
	Type      DiscountType `json:"discount_type"`
	Value     int          `json:"discount_value"` // percent for percentage, cents for fixed
	ExpiresAt time.Time    `json:"expiration_date"`
	MaxUses   int          `json:"max_uses"`
	UsedCount int          `json:"used_count"`
	CreatedAt time.Time    `json:"created_at"`
}

// Usable checks expiry and remaining uses against the given instant.
func (c *Coupon) Usable(now time.Time) error {
	if !c.ExpiresAt.After(now) {
		return apperr.InvalidCoupon("coupon has expired")
	}
	if c.UsedCount >= c.MaxUses {
		return apperr.InvalidCoupon("coupon has reached maximum usage")
	}
	return nil
}

// Discount applies the coupon to a subtotal in cents, clamped at zero.
func (c *Coupon) Discount(totalCents int) int {
	var out int
	switch c.Type {
	case Percentage:
		out = totalCents - totalCents*c.Value/100
	case Fixed:
		out = totalCents - c.Value
	default:
		out = totalCents
	}
	if out < 0 {
		return 0
	}
	return out
}

// Store persists coupons. CreateCoupon rejects duplicate codes; the
// bounded usedCount increment lives in the order-creation transaction,
// not here.
type Store interface {
	ListCoupons(ctx context.Context) ([]Coupon, error)
	CreateCoupon(ctx context.Context, c *Coupon) error
	DeleteCoupon(ctx context.Context, code string) error
}

type Service struct {
	Store Store
}

type CouponInput struct {
	Code      string       `json:"code"`
	Type      DiscountType `json:"discount_type"`
	Value     int          `json:"discount_value"`
	ExpiresAt time.Time    `json:"expiration_date"`
	MaxUses   int          `json:"max_uses"`
}

func (in *CouponInput) validate() error {
	if in.Code == "" {
		return apperr.Validation("code", "code is required")
	}
	if in.Type != Percentage && in.Type != Fixed {
		return apperr.Validation("discount_type", "discount type must be percentage or fixed")
	}
	if in.Value <= 0 {
		return apperr.Validation("discount_value", "discount value must be positive")
	}
	if in.Type == Percentage && in.Value > 100 {
		return apperr.Validation("discount_value", "percentage discount cannot exceed 100")
	}
	if in.MaxUses <= 0 {
		return apperr.Validation("max_uses", "max uses must be positive")
	}
	return nil
}

func (s *Service) List(ctx context.Context, p *auth.Principal) ([]Coupon, error) {
	if err := auth.Authorize(p, auth.ActionViewCoupons, ""); err != nil {
		return nil, err
	}
	return s.Store.ListCoupons(ctx)
}

func (s *Service) Create(ctx context.Context, p *auth.Principal, in CouponInput) (*Coupon, error) {
	if err := auth.Authorize(p, auth.ActionManageCoupons, ""); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	c := &Coupon{
		Code:      in.Code,
		Type:      in.Type,
		Value:     in.Value,
		ExpiresAt: in.ExpiresAt,
		MaxUses:   in.MaxUses,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Store.CreateCoupon(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Delete(ctx context.Context, p *auth.Principal, code string) error {
	if err := auth.Authorize(p, auth.ActionManageCoupons, ""); err != nil {
		return err
	}
	return s.Store.DeleteCoupon(ctx, code)
}
