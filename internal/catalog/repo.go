package catalog

import (
	"context"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Repo struct{ DB *pgxpool.Pool }

const productCols = `id, name, price_cents, stock, description, image, category, brand, rating, num_reviews, created_at, updated_at`

func scanProduct(row pgx.Row) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.Description, &p.Image,
		&p.Category, &p.Brand, &p.Rating, &p.NumReviews, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+productCols+` FROM products ORDER BY name`)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "list products"))
	}
	defer rows.Close()

	var out []Product
	byID := map[string]int{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, apperr.Persistence(err)
		}
		byID[p.ID] = len(out)
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence(err)
	}

	rrows, err := r.DB.Query(ctx, `
		SELECT product_id, user_id, name, rating, comment, created_at, updated_at
		FROM reviews ORDER BY created_at`)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "list reviews"))
	}
	defer rrows.Close()
	for rrows.Next() {
		var pid string
		var rv Review
		if err := rrows.Scan(&pid, &rv.UserID, &rv.Name, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return nil, apperr.Persistence(err)
		}
		if i, ok := byID[pid]; ok {
			out[i].Reviews = append(out[i].Reviews, rv)
		}
	}
	return out, rrows.Err()
}

func (r *Repo) Product(ctx context.Context, id string) (*Product, error) {
	p, err := scanProduct(r.DB.QueryRow(ctx, `SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("product")
		}
		return nil, apperr.Persistence(errors.Wrap(err, "select product"))
	}

	arows, err := r.DB.Query(ctx, `SELECT email, password FROM product_accounts WHERE product_id=$1 ORDER BY id`, id)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "select accounts"))
	}
	defer arows.Close()
	for arows.Next() {
		var a Account
		if err := arows.Scan(&a.Email, &a.Password); err != nil {
			return nil, apperr.Persistence(err)
		}
		p.Accounts = append(p.Accounts, a)
	}
	if err := arows.Err(); err != nil {
		return nil, apperr.Persistence(err)
	}

	rrows, err := r.DB.Query(ctx, `
		SELECT user_id, name, rating, comment, created_at, updated_at
		FROM reviews WHERE product_id=$1 ORDER BY created_at`, id)
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "select reviews"))
	}
	defer rrows.Close()
	for rrows.Next() {
		var rv Review
		if err := rrows.Scan(&rv.UserID, &rv.Name, &rv.Rating, &rv.Comment, &rv.CreatedAt, &rv.UpdatedAt); err != nil {
			return nil, apperr.Persistence(err)
		}
		p.Reviews = append(p.Reviews, rv)
	}
	return p, rrows.Err()
}

func (r *Repo) CreateProduct(ctx context.Context, p *Product) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO products(id, name, price_cents, stock, description, image, category, brand, rating, num_reviews, created_at, updated_at)
		VALUES ($1,$2,$3,0,$4,$5,$6,$7,0,0,$8,$9)`,
		p.ID, p.Name, p.PriceCents, p.Description, p.Image, p.Category, p.Brand, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "insert product"))
	}
	return nil
}

func (r *Repo) UpdateProduct(ctx context.Context, p *Product) error {
	ct, err := r.DB.Exec(ctx, `
		UPDATE products SET name=$2, price_cents=$3, description=$4, image=$5, category=$6, brand=$7, updated_at=$8
		WHERE id=$1`,
		p.ID, p.Name, p.PriceCents, p.Description, p.Image, p.Category, p.Brand, p.UpdatedAt)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "update product"))
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product")
	}
	return nil
}

func (r *Repo) DeleteProduct(ctx context.Context, id string) error {
	ct, err := r.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "delete product"))
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product")
	}
	return nil
}

// AddAccounts appends units to the pool and re-derives stock from the
// pool length inside one transaction.
func (r *Repo) AddAccounts(ctx context.Context, id string, accounts []Account) (*Product, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "begin tx"))
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT true FROM products WHERE id=$1 FOR UPDATE`, id).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("product")
		}
		return nil, apperr.Persistence(errors.Wrap(err, "lock product"))
	}
	for _, a := range accounts {
		if _, err := tx.Exec(ctx, `INSERT INTO product_accounts(product_id, email, password) VALUES ($1,$2,$3)`,
			id, a.Email, a.Password); err != nil {
			return nil, apperr.Persistence(errors.Wrap(err, "insert account"))
		}
	}
	if _, err := tx.Exec(ctx, `
		UPDATE products SET stock = (SELECT COUNT(*) FROM product_accounts WHERE product_id=$1), updated_at=now()
		WHERE id=$1`, id); err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "sync stock"))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Persistence(errors.Wrap(err, "commit"))
	}
	return r.Product(ctx, id)
}

func (r *Repo) SetReviews(ctx context.Context, id string, reviews []Review, rating float64, numReviews int) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "begin tx"))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM reviews WHERE product_id=$1`, id); err != nil {
		return apperr.Persistence(errors.Wrap(err, "clear reviews"))
	}
	for _, rv := range reviews {
		if _, err := tx.Exec(ctx, `
			INSERT INTO reviews(product_id, user_id, name, rating, comment, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			id, rv.UserID, rv.Name, rv.Rating, rv.Comment, rv.CreatedAt, rv.UpdatedAt); err != nil {
			return apperr.Persistence(errors.Wrap(err, "insert review"))
		}
	}
	ct, err := tx.Exec(ctx, `UPDATE products SET rating=$2, num_reviews=$3, updated_at=now() WHERE id=$1`,
		id, rating, numReviews)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "update aggregates"))
	}
	if ct.RowsAffected() == 0 {
		return apperr.NotFound("product")
	}
	return tx.Commit(ctx)
}
