package orders

import (
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/catalog"
)

// CartLine is one requested (product, quantity) pair at checkout.
type CartLine struct {
	ProductID string `json:"product"`
	Quantity  int    `json:"quantity"`
}

// OrderLine captures the product snapshot at order time. Accounts are
// the exact units withdrawn from the pool for this line; they are owned
// by the order, copied by value, never referenced back to the product.
type OrderLine struct {
	ProductID  string            `json:"product"`
	Name       string            `json:"name"`
	PriceCents int               `json:"price_cents"`
	Quantity   int               `json:"quantity"`
	Accounts   []catalog.Account `json:"accounts"`
}

type Order struct {
	ID               string      `json:"id"`
	UserID           string      `json:"user_id"`
	Items            []OrderLine `json:"items"`
	TotalCents       int         `json:"total_cents"`
	Status           Status      `json:"status"`
	PaymentExpiresAt time.Time   `json:"payment_expires_at"`
	CreatedAt        time.Time   `json:"created_at"`
}

// Redacted returns a copy safe for buyer-facing responses: line accounts
// are disclosed only once the order is completed.
func (o *Order) Redacted() *Order {
	cp := *o
	cp.Items = make([]OrderLine, len(o.Items))
	for i, it := range o.Items {
		cp.Items[i] = it
		if o.Status != StatusCompleted {
			cp.Items[i].Accounts = []catalog.Account{}
		}
	}
	return &cp
}
