package orders_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/ariefcatur/go-account-shop.git/internal/auth"
	"github.com/ariefcatur/go-account-shop.git/internal/catalog"
	"github.com/ariefcatur/go-account-shop.git/internal/coupons"
	"github.com/ariefcatur/go-account-shop.git/internal/memstore"
	"github.com/ariefcatur/go-account-shop.git/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	mu     sync.Mutex
	topics []string
}

func (f *fakePublisher) Publish(topic string, key, value []byte, headers ...kafkago.Header) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topics = append(f.topics, topic)
}

var (
	base  = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	buyer = &auth.Principal{ID: "u1", Role: auth.RoleUser, FullName: "Buyer One"}
	other = &auth.Principal{ID: "u2", Role: auth.RoleUser, FullName: "Buyer Two"}
	admin = &auth.Principal{ID: "a1", Role: auth.RoleAdmin, FullName: "Admin"}
)

type env struct {
	store *memstore.Store
	svc   *orders.Service
	now   time.Time
	mu    sync.Mutex
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{store: memstore.New(), now: base}
	e.svc = &orders.Service{
		Store:       e.store,
		ServiceName: "test",
		Hold:        15 * time.Minute,
		Now: func() time.Time {
			e.mu.Lock()
			defer e.mu.Unlock()
			return e.now
		},
	}
	return e
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	e.now = e.now.Add(d)
	e.mu.Unlock()
}

func (e *env) seedProduct(t *testing.T, id string, priceCents, units int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.store.CreateProduct(ctx, &catalog.Product{ID: id, Name: "product " + id, PriceCents: priceCents}))
	accts := make([]catalog.Account, units)
	for i := range accts {
		accts[i] = catalog.Account{Email: fmt.Sprintf("%s-%d@mail.test", id, i), Password: "pw"}
	}
	if units > 0 {
		_, err := e.store.AddAccounts(ctx, id, accts)
		require.NoError(t, err)
	}
}

func (e *env) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := e.store.Product(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, len(p.Accounts), p.Stock, "stock must equal pool length")
	return p.Stock
}

func TestCreate_Unauthenticated(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Create(context.Background(), nil, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
}

func TestCreate_EmptyCart(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.Create(context.Background(), buyer, nil, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCreate_AssignsUnitsAndSnapshotsPrice(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 5000, 3)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 2}}, "")
	require.NoError(t, err)

	assert.Equal(t, orders.StatusPending, o.Status)
	assert.Equal(t, 10000, o.TotalCents)
	assert.Equal(t, base.Add(15*time.Minute), o.PaymentExpiresAt)
	require.Len(t, o.Items, 1)
	assert.Len(t, o.Items[0].Accounts, 2)
	assert.Equal(t, 1, e.stock(t, "p1"))

	// later price changes must not affect the captured snapshot
	p, err := e.store.Product(ctx, "p1")
	require.NoError(t, err)
	p.PriceCents = 9999
	require.NoError(t, e.store.UpdateProduct(ctx, p))
	got, err := e.store.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 5000, got.Items[0].PriceCents)
	assert.Equal(t, 10000, got.TotalCents)
}

func TestCreate_AllOrNothingAcrossLines(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 5)
	e.seedProduct(t, "p2", 2000, 1)

	_, err := e.svc.Create(context.Background(), buyer, []orders.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 3},
	}, "")
	require.Error(t, err)
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))

	// no partial withdrawal may survive the failure
	assert.Equal(t, 5, e.stock(t, "p1"))
	assert.Equal(t, 1, e.stock(t, "p2"))
}

func TestCreate_DuplicateProductLines(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 3)
	ctx := context.Background()

	// demand is summed across lines naming the same product
	_, err := e.svc.Create(ctx, buyer, []orders.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p1", Quantity: 2},
	}, "")
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
	assert.Equal(t, 3, e.stock(t, "p1"), "failed cart must leave the pool untouched")

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p1", Quantity: 1},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, 3000, o.TotalCents)
	assert.Equal(t, 0, e.stock(t, "p1"))

	seen := map[string]bool{}
	for _, it := range o.Items {
		for _, a := range it.Accounts {
			assert.False(t, seen[a.Email], "unit %s assigned to two lines", a.Email)
			seen[a.Email] = true
		}
	}
	assert.Len(t, seen, 3)
}

func TestCreate_ExactStockThenSoldOut(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1500, 2)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 2}}, "")
	require.NoError(t, err)
	assert.Equal(t, 3000, o.TotalCents)
	assert.Equal(t, 0, e.stock(t, "p1"))

	_, err = e.svc.Create(ctx, other, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(err))
}

func TestCreate_PercentageCouponAndExhaustion(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 10000, 5)
	ctx := context.Background()
	require.NoError(t, e.store.CreateCoupon(ctx, &coupons.Coupon{
		Code: "SAVE10", Type: coupons.Percentage, Value: 10,
		ExpiresAt: base.Add(24 * time.Hour), MaxUses: 1,
	}))

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "SAVE10")
	require.NoError(t, err)
	assert.Equal(t, 9000, o.TotalCents)

	c, ok := e.store.Coupon("SAVE10")
	require.True(t, ok)
	assert.Equal(t, 1, c.UsedCount)

	_, err = e.svc.Create(ctx, other, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "SAVE10")
	assert.Equal(t, apperr.KindInvalidCoupon, apperr.KindOf(err))
}

func TestCreate_FixedCouponClampsAtZero(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 500, 1)
	ctx := context.Background()
	require.NoError(t, e.store.CreateCoupon(ctx, &coupons.Coupon{
		Code: "BIG", Type: coupons.Fixed, Value: 2000,
		ExpiresAt: base.Add(time.Hour), MaxUses: 10,
	}))

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "BIG")
	require.NoError(t, err)
	assert.Equal(t, 0, o.TotalCents)
}

func TestCreate_ExpiredCouponLeavesStockAndUsesUntouched(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 2)
	ctx := context.Background()
	require.NoError(t, e.store.CreateCoupon(ctx, &coupons.Coupon{
		Code: "OLD", Type: coupons.Percentage, Value: 50,
		ExpiresAt: base.Add(-time.Minute), MaxUses: 5,
	}))

	_, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "OLD")
	assert.Equal(t, apperr.KindInvalidCoupon, apperr.KindOf(err))
	assert.Equal(t, 2, e.stock(t, "p1"))
	c, _ := e.store.Coupon("OLD")
	assert.Equal(t, 0, c.UsedCount)
}

func TestPay_CompletesAndDisclosesAccounts(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 1)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)

	paid, err := e.svc.Pay(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, paid.Status)
	require.Len(t, paid.Items, 1)
	assert.Len(t, paid.Items[0].Accounts, 1)

	// completed is terminal
	_, err = e.svc.Pay(ctx, buyer, o.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestPay_NotFoundAndOwnership(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 1)
	ctx := context.Background()

	_, err := e.svc.Pay(ctx, buyer, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)

	_, err = e.svc.Pay(ctx, other, o.ID)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// admin may settle any order
	_, err = e.svc.Pay(ctx, admin, o.ID)
	assert.NoError(t, err)
}

func TestMyOrders_RedactsUntilCompleted(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 2)
	ctx := context.Background()

	o1, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)
	e.advance(time.Minute)
	o2, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)
	_, err = e.svc.Pay(ctx, buyer, o2.ID)
	require.NoError(t, err)

	list, err := e.svc.MyOrders(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, list, 2)
	// newest first
	assert.Equal(t, o2.ID, list[0].ID)
	assert.Equal(t, o1.ID, list[1].ID)
	assert.Len(t, list[0].Items[0].Accounts, 1, "completed order shows accounts")
	assert.Empty(t, list[1].Items[0].Accounts, "pending order hides accounts")
}

func TestStatus_FollowsLifecycle(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 1)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)

	st, err := e.svc.Status(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, st)

	_, err = e.svc.Pay(ctx, buyer, o.ID)
	require.NoError(t, err)
	st, err = e.svc.Status(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, st)

	_, err = e.svc.Status(ctx, nil, o.ID)
	assert.Equal(t, apperr.KindUnauthenticated, apperr.KindOf(err))
	_, err = e.svc.Status(ctx, buyer, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestListAll_AdminOnly(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc.ListAll(context.Background(), buyer)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	_, err = e.svc.ListAll(context.Background(), admin)
	assert.NoError(t, err)
}

func TestSweep_CancelsExpiredAndRestocks(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 2)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 2}}, "")
	require.NoError(t, err)
	assert.Equal(t, 0, e.stock(t, "p1"))

	// still inside the hold window: nothing to do
	n, err := e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	e.advance(16 * time.Minute)
	n, err = e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, e.stock(t, "p1"))

	got, err := e.store.Order(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)

	// cancelled is terminal: the order can no longer be paid
	_, err = e.svc.Pay(ctx, buyer, o.ID)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}

func TestSweep_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 1)
	ctx := context.Background()

	_, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)
	e.advance(time.Hour)

	n, err := e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "second sweep must not cancel again")
	assert.Equal(t, 1, e.stock(t, "p1"), "units returned exactly once")
}

func TestPay_AfterDeadlineBeforeSweepStillSucceeds(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 1)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)
	e.advance(time.Hour)

	// first claimer wins: the deadline is advisory until a sweep runs
	paid, err := e.svc.Pay(ctx, buyer, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCompleted, paid.Status)

	n, err := e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, e.stock(t, "p1"), "paid units must not return to the pool")
}

func TestPayAndSweep_ExactlyOneWinner(t *testing.T) {
	for i := 0; i < 20; i++ {
		e := newEnv(t)
		e.seedProduct(t, "p1", 1000, 1)
		ctx := context.Background()

		o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
		require.NoError(t, err)
		e.advance(time.Hour)

		var wg sync.WaitGroup
		var payErr error
		var swept int
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, payErr = e.svc.Pay(ctx, buyer, o.ID)
		}()
		go func() {
			defer wg.Done()
			swept, _ = e.svc.SweepExpired(ctx)
		}()
		wg.Wait()

		got, err := e.store.Order(ctx, o.ID)
		require.NoError(t, err)
		switch got.Status {
		case orders.StatusCompleted:
			assert.NoError(t, payErr)
			assert.Equal(t, 0, swept)
			assert.Equal(t, 0, e.stock(t, "p1"))
		case orders.StatusCancelled:
			assert.Error(t, payErr)
			assert.Equal(t, 1, swept)
			assert.Equal(t, 1, e.stock(t, "p1"))
		default:
			t.Fatalf("order left in non-terminal state %q", got.Status)
		}
	}
}

func TestConcurrentCheckouts_NoUnitDoubleAssigned(t *testing.T) {
	const units = 10
	const buyers = 25

	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, units)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([]*orders.Order, buyers)
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &auth.Principal{ID: fmt.Sprintf("u%d", i), Role: auth.RoleUser}
			results[i], errs[i] = e.svc.Create(ctx, p, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	success := 0
	for i := 0; i < buyers; i++ {
		if errs[i] == nil {
			success++
			for _, a := range results[i].Items[0].Accounts {
				assert.False(t, seen[a.Email], "unit %s assigned twice", a.Email)
				seen[a.Email] = true
			}
		} else {
			assert.Equal(t, apperr.KindInsufficientStock, apperr.KindOf(errs[i]))
		}
	}
	assert.Equal(t, units, success)
	assert.Equal(t, 0, e.stock(t, "p1"))
}

func TestLifecycleEventsPublished(t *testing.T) {
	e := newEnv(t)
	pub := &fakePublisher{}
	e.svc.Producer = pub
	e.seedProduct(t, "p1", 1000, 2)
	ctx := context.Background()

	o1, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)
	_, err = e.svc.Pay(ctx, buyer, o1.ID)
	require.NoError(t, err)

	_, err = e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)
	e.advance(time.Hour)
	n, err := e.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	assert.Equal(t, []string{
		orders.TopicOrderCreated,
		orders.TopicOrderCompleted,
		orders.TopicOrderCreated,
		orders.TopicOrderCancelled,
	}, pub.topics)
}

func TestSetStatus_AdminOverrides(t *testing.T) {
	e := newEnv(t)
	e.seedProduct(t, "p1", 1000, 1)
	ctx := context.Background()

	o, err := e.svc.Create(ctx, buyer, []orders.CartLine{{ProductID: "p1", Quantity: 1}}, "")
	require.NoError(t, err)

	_, err = e.svc.SetStatus(ctx, buyer, o.ID, orders.StatusCancelled)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = e.svc.SetStatus(ctx, admin, o.ID, "shipped")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	// admin cancel returns the units like a sweep does
	got, err := e.svc.SetStatus(ctx, admin, o.ID, orders.StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, 1, e.stock(t, "p1"))

	// terminal states stay terminal
	_, err = e.svc.SetStatus(ctx, admin, o.ID, orders.StatusCompleted)
	assert.Equal(t, apperr.KindInvalidState, apperr.KindOf(err))
}
