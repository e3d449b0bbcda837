package auth

import (
	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
)

// Action names a guarded operation. Handlers pass the action plus the
// resource owner (empty when ownership does not apply) and get back
// Unauthenticated, Forbidden, or nil.
type Action string

const (
	ActionManageProducts Action = "products:manage"
	ActionManageCoupons  Action = "coupons:manage"
	ActionViewCoupons    Action = "coupons:view"
	ActionReviewProduct  Action = "products:review"
	ActionCreateOrder    Action = "orders:create"
	ActionViewOwnOrders  Action = "orders:view-own"
	ActionPayOrder       Action = "orders:pay"
	ActionListAllOrders  Action = "orders:list-all"
	ActionSetOrderStatus Action = "orders:set-status"
	ActionSweepOrders    Action = "orders:sweep"
)

// adminOnly actions never pass for an ordinary user, regardless of ownership.
var adminOnly = map[Action]bool{
	ActionManageProducts: true,
	ActionManageCoupons:  true,
	ActionViewCoupons:    true,
	ActionListAllOrders:  true,
	ActionSetOrderStatus: true,
	ActionSweepOrders:    true,
}

// Authorize is the single authorization decision point. ownerID is the id
// of the resource's owning user; actions without an ownership dimension
// pass it as "".
func Authorize(p *Principal, action Action, ownerID string) error {
	if p == nil {
		return apperr.Unauthenticated()
	}
	if p.Role == RoleAdmin {
		return nil
	}
	if adminOnly[action] {
		return apperr.Forbidden("admin role required")
	}
	if ownerID != "" && ownerID != p.ID {
		return apperr.Forbidden("not the owner of this resource")
	}
	return nil
}
