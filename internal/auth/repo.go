package auth

import (
	"context"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type Repo struct{ DB *pgxpool.Pool }

func (r *Repo) CreateUser(ctx context.Context, u *User) error {
	var n int
	err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE username=$1 OR email=$2`,
		u.Username, u.Email).Scan(&n)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "check existing user"))
	}
	if n > 0 {
		return apperr.Validation("username", "username or email already exists")
	}
	_, err = r.DB.Exec(ctx, `
		INSERT INTO users(id, full_name, email, username, password_hash, phone_number, birth_date, role, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		u.ID, u.FullName, u.Email, u.Username, u.PasswordHash, u.PhoneNumber, u.BirthDate, u.Role, u.CreatedAt)
	if err != nil {
		return apperr.Persistence(errors.Wrap(err, "insert user"))
	}
	return nil
}

func (r *Repo) UserByUsername(ctx context.Context, username string) (*User, error) {
	var u User
	err := r.DB.QueryRow(ctx, `
		SELECT id, full_name, email, username, password_hash, phone_number, birth_date, role, created_at
		FROM users WHERE username=$1`, username).
		Scan(&u.ID, &u.FullName, &u.Email, &u.Username, &u.PasswordHash, &u.PhoneNumber, &u.BirthDate, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("user")
		}
		return nil, apperr.Persistence(errors.Wrap(err, "select user"))
	}
	return &u, nil
}
