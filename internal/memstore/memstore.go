// Package memstore is an in-memory implementation of every store
// interface, used for local development and the test suite. A single
// mutex serializes mutations; the postgres repos provide the same
// contracts with row-level locking for production.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/ariefcatur/go-account-shop.git/internal/auth"
	"github.com/ariefcatur/go-account-shop.git/internal/catalog"
	"github.com/ariefcatur/go-account-shop.git/internal/coupons"
	"github.com/ariefcatur/go-account-shop.git/internal/orders"
)

type Store struct {
	mu       sync.Mutex
	users    map[string]*auth.User       // by id
	products map[string]*catalog.Product // by id
	coupons  map[string]*coupons.Coupon  // by code
	orders   map[string]*orders.Order    // by id
	orderSeq []string                    // creation order
}

func New() *Store {
	return &Store{
		users:    map[string]*auth.User{},
		products: map[string]*catalog.Product{},
		coupons:  map[string]*coupons.Coupon{},
		orders:   map[string]*orders.Order{},
	}
}

// ---- auth.Store ----

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.users {
		if ex.Username == u.Username || ex.Email == u.Email {
			return apperr.Validation("username", "username or email already exists")
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user")
}

// ---- catalog.Store ----

func copyProduct(p *catalog.Product) *catalog.Product {
	cp := *p
	cp.Accounts = append([]catalog.Account(nil), p.Accounts...)
	cp.Reviews = append([]catalog.Review(nil), p.Reviews...)
	return &cp
}

func (s *Store) ListProducts(ctx context.Context) ([]catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *copyProduct(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) Product(ctx context.Context, id string) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product")
	}
	return copyProduct(p), nil
}

func (s *Store) CreateProduct(ctx context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = copyProduct(p)
	return nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.products[p.ID]
	if !ok {
		return apperr.NotFound("product")
	}
	ex.Name = p.Name
	ex.PriceCents = p.PriceCents
	ex.Description = p.Description
	ex.Image = p.Image
	ex.Category = p.Category
	ex.Brand = p.Brand
	ex.UpdatedAt = p.UpdatedAt
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return apperr.NotFound("product")
	}
	delete(s.products, id)
	return nil
}

func (s *Store) AddAccounts(ctx context.Context, id string, accounts []catalog.Account) (*catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, apperr.NotFound("product")
	}
	p.Accounts = append(p.Accounts, accounts...)
	p.Stock = len(p.Accounts)
	p.UpdatedAt = time.Now().UTC()
	return copyProduct(p), nil
}

func (s *Store) SetReviews(ctx context.Context, id string, reviews []catalog.Review, rating float64, numReviews int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return apperr.NotFound("product")
	}
	p.Reviews = append([]catalog.Review(nil), reviews...)
	p.Rating = rating
	p.NumReviews = numReviews
	return nil
}

// ---- coupons.Store ----

func (s *Store) ListCoupons(ctx context.Context) ([]coupons.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]coupons.Coupon, 0, len(s.coupons))
	for _, c := range s.coupons {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (s *Store) CreateCoupon(ctx context.Context, c *coupons.Coupon) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[c.Code]; ok {
		return apperr.Validation("code", "coupon already exists")
	}
	cp := *c
	s.coupons[c.Code] = &cp
	return nil
}

func (s *Store) DeleteCoupon(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.coupons[code]; !ok {
		return apperr.NotFound("coupon")
	}
	delete(s.coupons, code)
	return nil
}

// Coupon returns a copy; handy for assertions in tests.
func (s *Store) Coupon(code string) (*coupons.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[code]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}

// ---- orders.Store ----

func copyOrder(o *orders.Order) *orders.Order {
	cp := *o
	cp.Items = make([]orders.OrderLine, len(o.Items))
	for i, it := range o.Items {
		cp.Items[i] = it
		cp.Items[i].Accounts = append([]catalog.Account(nil), it.Accounts...)
	}
	return &cp
}

// CreateOrder validates every line and the coupon before touching any
// pool, then withdraws units and consumes the coupon under the lock:
// all-or-nothing, same contract as the postgres transaction. Demand is
// summed per product first, so a cart repeating a product cannot drain
// a pool past what the pre-check saw.
func (s *Store) CreateOrder(ctx context.Context, userID string, lines []orders.CartLine, couponCode string, now, expiresAt time.Time) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	need := map[string]int{}
	for _, l := range lines {
		p, ok := s.products[l.ProductID]
		if !ok {
			return nil, apperr.NotFound("product")
		}
		need[l.ProductID] += l.Quantity
		if len(p.Accounts) < need[l.ProductID] {
			return nil, apperr.InsufficientStock(l.ProductID)
		}
	}
	var coupon *coupons.Coupon
	if couponCode != "" {
		c, ok := s.coupons[couponCode]
		if !ok {
			return nil, apperr.InvalidCoupon("invalid coupon code")
		}
		if err := c.Usable(now); err != nil {
			return nil, err
		}
		coupon = c
	}

	total := 0
	items := make([]orders.OrderLine, 0, len(lines))
	for _, l := range lines {
		p := s.products[l.ProductID]
		withdrawn := append([]catalog.Account(nil), p.Accounts[:l.Quantity]...)
		p.Accounts = p.Accounts[l.Quantity:]
		p.Stock = len(p.Accounts)
		items = append(items, orders.OrderLine{
			ProductID:  l.ProductID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			Quantity:   l.Quantity,
			Accounts:   withdrawn,
		})
		total += p.PriceCents * l.Quantity
	}
	if coupon != nil {
		total = coupon.Discount(total)
		coupon.UsedCount++
	}

	o := &orders.Order{
		ID:               newID(),
		UserID:           userID,
		Items:            items,
		TotalCents:       total,
		Status:           orders.StatusPending,
		PaymentExpiresAt: expiresAt,
		CreatedAt:        now,
	}
	s.orders[o.ID] = o
	s.orderSeq = append(s.orderSeq, o.ID)
	return copyOrder(o), nil
}

func (s *Store) Order(ctx context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order")
	}
	return copyOrder(o), nil
}

func (s *Store) ListOrders(ctx context.Context) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Order, 0, len(s.orderSeq))
	for i := len(s.orderSeq) - 1; i >= 0; i-- { // newest first
		out = append(out, *copyOrder(s.orders[s.orderSeq[i]]))
	}
	return out, nil
}

func (s *Store) ListUserOrders(ctx context.Context, userID string) ([]orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []orders.Order
	for i := len(s.orderSeq) - 1; i >= 0; i-- {
		o := s.orders[s.orderSeq[i]]
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	return out, nil
}

func (s *Store) ClaimCompleted(ctx context.Context, id string) (*orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.NotFound("order")
	}
	if o.Status != orders.StatusPending {
		return nil, apperr.InvalidState(string(orders.StatusPending), string(o.Status))
	}
	o.Status = orders.StatusCompleted
	return copyOrder(o), nil
}

func (s *Store) CancelAndRestock(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return false, nil
	}
	if o.Status != orders.StatusPending {
		return false, nil
	}
	o.Status = orders.StatusCancelled
	for _, it := range o.Items {
		p, ok := s.products[it.ProductID]
		if !ok {
			continue
		}
		p.Accounts = append(p.Accounts, it.Accounts...)
		p.Stock = len(p.Accounts)
	}
	return true, nil
}

func (s *Store) ExpiredPending(ctx context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, id := range s.orderSeq {
		o := s.orders[id]
		if o.Status == orders.StatusPending && o.PaymentExpiresAt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
