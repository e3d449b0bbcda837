package orders

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/ariefcatur/go-account-shop.git/internal/catalog"
	"github.com/ariefcatur/go-account-shop.git/internal/coupons"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Repo struct{ DB *pgxpool.Pool }

// CreateOrder reserves stock for every cart line and persists the order
// in a single transaction. Product rows are locked FOR UPDATE in cart
// order, the exact units are moved out of the pool, and the coupon use
// is consumed in the same transaction as the order insert, so a failed
// persistence never burns a coupon use or strands a unit.
func (r *Repo) CreateOrder(ctx context.Context, userID string, lines []CartLine, couponCode string, now, expiresAt time.Time) (*Order, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "begin tx"))
	}
	defer tx.Rollback(ctx)

	total := 0
	items := make([]OrderLine, 0, len(lines))
	for _, l := range lines {
		var name string
		var price, stock int
		err := tx.QueryRow(ctx, `SELECT name, price_cents, stock FROM products WHERE id=$1 FOR UPDATE`, l.ProductID).
			Scan(&name, &price, &stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperr.NotFound("product")
			}
			return nil, apperr.Persistence(errors.Wrap(err, "lock product"))
		}
		if stock < l.Quantity {
			return nil, apperr.InsufficientStock(l.ProductID)
		}

		rows, err := tx.Query(ctx, `
			DELETE FROM product_accounts
			WHERE id IN (
				SELECT id FROM product_accounts WHERE product_id=$1 ORDER BY id LIMIT $2
			)
			RETURNING email, password`, l.ProductID, l.Quantity)
		if err != nil {
			return nil, apperr.Persistence(errors.Wrap(err, "withdraw accounts"))
		}
		var accts []catalog.Account
		for rows.Next() {
			var a catalog.Account
			if err := rows.Scan(&a.Email, &a.Password); err != nil {
				rows.Close()
				return nil, apperr.Persistence(err)
			}
			accts = append(accts, a)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, apperr.Persistence(err)
		}
		// stock said enough but the pool came up short: refuse rather
		// than sell units that do not exist.
		if len(accts) != l.Quantity {
			return nil, apperr.InsufficientStock(l.ProductID)
		}
		if _, err := tx.Exec(ctx, `UPDATE products SET stock = stock - $2 WHERE id=$1`, l.ProductID, l.Quantity); err != nil {
			return nil, apperr.Persistence(errors.Wrap(err, "decrement stock"))
		}

		items = append(items, OrderLine{
			ProductID:  l.ProductID,
			Name:       name,
			PriceCents: price,
			Quantity:   l.Quantity,
			Accounts:   accts,
		})
		total += price * l.Quantity
	}

	if couponCode != "" {
		var c coupons.Coupon
		err := tx.QueryRow(ctx, `
			SELECT code, discount_type, discount_value, expires_at, max_uses, used_count
			FROM coupons WHERE code=$1 FOR UPDATE`, couponCode).
			Scan(&c.Code, &c.Type, &c.Value, &c.ExpiresAt, &c.MaxUses, &c.UsedCount)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperr.InvalidCoupon("invalid coupon code")
			}
			return nil, apperr.Persistence(errors.Wrap(err, "lock coupon"))
		}
		if err := c.Usable(now); err != nil {
			return nil, err
		}
		total = c.Discount(total)
		ct, err := tx.Exec(ctx, `
			UPDATE coupons SET used_count = used_count + 1
			WHERE code=$1 AND used_count < max_uses`, couponCode)
		if err != nil {
			return nil, apperr.Persistence(errors.Wrap(err, "consume coupon"))
		}
		if ct.RowsAffected() == 0 {
			return nil, apperr.InvalidCoupon("coupon has reached maximum usage")
		}
	}

	o := &Order{
		ID:               uuid.NewString(),
		UserID:           userID,
		Items:            items,
		TotalCents:       total,
		Status:           StatusPending,
		PaymentExpiresAt: expiresAt,
		CreatedAt:        now,
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, total_cents, payment_expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		o.ID, o.UserID, o.Status, o.TotalCents, o.PaymentExpiresAt, o.CreatedAt); err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "insert order"))
	}
	for i, it := range o.Items {
		b, err := json.Marshal(it.Accounts)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, line_no, product_id, name, price_cents, quantity, accounts)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			o.ID, i, it.ProductID, it.Name, it.PriceCents, it.Quantity, b); err != nil {
			return nil, apperr.Persistence(errors.Wrap(err, "insert order line"))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "commit"))
	}
	return o, nil
}

func (r *Repo) Order(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.DB.QueryRow(ctx, `
		SELECT id, user_id, status, total_cents, payment_expires_at, created_at
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.PaymentExpiresAt, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("order")
		}
		return nil, apperr.Persistence(errors.Wrap(err, "select order"))
	}
	items, err := r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *Repo) loadItems(ctx context.Context, orderID string) ([]OrderLine, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT product_id, name, price_cents, quantity, accounts
		FROM order_items WHERE order_id=$1 ORDER BY line_no`, orderID)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "select order lines"))
	}
	defer rows.Close()

	var out []OrderLine
	for rows.Next() {
		var it OrderLine
		var accts []byte
		if err := rows.Scan(&it.ProductID, &it.Name, &it.PriceCents, &it.Quantity, &accts); err != nil {
			return nil, apperr.Persistence(err)
		}
		if err := json.Unmarshal(accts, &it.Accounts); err != nil {
			return nil, apperr.Internal(err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "list orders"))
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.Status, &o.TotalCents, &o.PaymentExpiresAt, &o.CreatedAt); err != nil {
			return nil, apperr.Persistence(err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(err)
	}
	for i := range out {
		items, err := r.loadItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *Repo) ListOrders(ctx context.Context) ([]Order, error) {
	return r.list(ctx, `
		SELECT id, user_id, status, total_cents, payment_expires_at, created_at
		FROM orders ORDER BY created_at DESC`)
}

func (r *Repo) ListUserOrders(ctx context.Context, userID string) ([]Order, error) {
	return r.list(ctx, `
		SELECT id, user_id, status, total_cents, payment_expires_at, created_at
		FROM orders WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

// ClaimCompleted is the pay side of the pending->terminal race: a
// conditional update keyed on status='pending' so a concurrent sweep
// cannot also win.
func (r *Repo) ClaimCompleted(ctx context.Context, id string) (*Order, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1 AND status=$3`,
		id, StatusCompleted, StatusPending)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "claim completed"))
	}
	if ct.RowsAffected() == 1 {
		return r.Order(ctx, id)
	}
	o, err := r.Order(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperr.InvalidState(string(StatusPending), string(o.Status))
}

// CancelAndRestock claims a pending order for cancellation and returns
// its units to the originating pools, all in one transaction. Returns
// false without error when the order was already settled, which makes
// repeated sweeps idempotent.
func (r *Repo) CancelAndRestock(ctx context.Context, id string) (bool, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, apperr.Persistence(errors.Wrap(err, "begin tx"))
	}
	defer tx.Rollback(ctx)

	ct, err := tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1 AND status=$3`,
		id, StatusCancelled, StatusPending)
	if err != nil {
		return false, apperr.Persistence(errors.Wrap(err, "claim cancelled"))
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	rows, err := tx.Query(ctx, `SELECT product_id, quantity, accounts FROM order_items WHERE order_id=$1 ORDER BY line_no`, id)
	if err != nil {
		return false, apperr.Persistence(errors.Wrap(err, "select order lines"))
	}
	type line struct {
		productID string
		qty       int
		accounts  []catalog.Account
	}
	var lines []line
	for rows.Next() {
		var l line
		var accts []byte
		if err := rows.Scan(&l.productID, &l.qty, &accts); err != nil {
			rows.Close()
			return false, apperr.Persistence(err)
		}
		if err := json.Unmarshal(accts, &l.accounts); err != nil {
			rows.Close()
			return false, apperr.Internal(err)
		}
		lines = append(lines, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, apperr.Persistence(err)
	}

	for _, l := range lines {
		// product may have been deleted meanwhile; its units have
		// nowhere to go back to.
		ct, err := tx.Exec(ctx, `UPDATE products SET stock = stock + $2 WHERE id=$1`, l.productID, l.qty)
		if err != nil {
			return false, apperr.Persistence(errors.Wrap(err, "restock"))
		}
		if ct.RowsAffected() == 0 {
			continue
		}
		for _, a := range l.accounts {
			if _, err := tx.Exec(ctx, `INSERT INTO product_accounts(product_id, email, password) VALUES ($1,$2,$3)`,
				l.productID, a.Email, a.Password); err != nil {
				return false, apperr.Persistence(errors.Wrap(err, "return account"))
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Persistence(errors.Wrap(err, "commit"))
	}
	return true, nil
}

func (r *Repo) ExpiredPending(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id FROM orders WHERE status=$1 AND payment_expires_at < $2
		ORDER BY payment_expires_at`, StatusPending, cutoff)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "select expired"))
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Persistence(err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
