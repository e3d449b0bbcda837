package catalog

import (
	"context"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/ariefcatur/go-account-shop.git/internal/auth"
	"github.com/google/uuid"
)

// Store persists products. Accounts and review mutations must be atomic
// per product so stock never drifts from the pool length.
type Store interface {
	ListProducts(ctx context.Context) ([]Product, error)
	Product(ctx context.Context, id string) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, id string) error
	AddAccounts(ctx context.Context, id string, accounts []Account) (*Product, error)
	SetReviews(ctx context.Context, id string, reviews []Review, rating float64, numReviews int) error
}

type Service struct {
	Store Store
}

type ProductInput struct {
	Name        string `json:"name"`
	PriceCents  int    `json:"price_cents"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
}

func (in *ProductInput) validate() error {
	if in.Name == "" {
		return apperr.Validation("name", "name is required")
	}
	if in.PriceCents < 0 {
		return apperr.Validation("price_cents", "price cannot be negative")
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]Product, error) {
	return s.Store.ListProducts(ctx)
}

func (s *Service) Create(ctx context.Context, p *auth.Principal, in ProductInput) (*Product, error) {
	if err := auth.Authorize(p, auth.ActionManageProducts, ""); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	prod := &Product{
		ID:          uuid.NewString(),
		Name:        in.Name,
		PriceCents:  in.PriceCents,
		Description: in.Description,
		Image:       in.Image,
		Category:    in.Category,
		Brand:       in.Brand,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.Store.CreateProduct(ctx, prod); err != nil {
		return nil, err
	}
	return prod, nil
}

// Update changes product metadata only. Stock is derived from the pool
// and cannot be edited directly.
func (s *Service) Update(ctx context.Context, p *auth.Principal, id string, in ProductInput) (*Product, error) {
	if err := auth.Authorize(p, auth.ActionManageProducts, ""); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	prod, err := s.Store.Product(ctx, id)
	if err != nil {
		return nil, err
	}
	prod.Name = in.Name
	prod.PriceCents = in.PriceCents
	prod.Description = in.Description
	prod.Image = in.Image
	prod.Category = in.Category
	prod.Brand = in.Brand
	prod.UpdatedAt = time.Now().UTC()
	if err := s.Store.UpdateProduct(ctx, prod); err != nil {
		return nil, err
	}
	return prod, nil
}

func (s *Service) Delete(ctx context.Context, p *auth.Principal, id string) error {
	if err := auth.Authorize(p, auth.ActionManageProducts, ""); err != nil {
		return err
	}
	return s.Store.DeleteProduct(ctx, id)
}

// AddAccounts appends credential units to the pool; the store syncs
// stock to the new pool length in the same operation.
func (s *Service) AddAccounts(ctx context.Context, p *auth.Principal, id string, accounts []Account) (*Product, error) {
	if err := auth.Authorize(p, auth.ActionManageProducts, ""); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, apperr.Validation("accounts", "accounts list cannot be empty")
	}
	for _, a := range accounts {
		if a.Email == "" || a.Password == "" {
			return nil, apperr.Validation("accounts", "every account needs an email and a password")
		}
	}
	return s.Store.AddAccounts(ctx, id, accounts)
}

func validRating(r int) bool { return r >= 0 && r <= 5 }

func (s *Service) AddReview(ctx context.Context, p *auth.Principal, productID string, rating int, comment string) error {
	if err := auth.Authorize(p, auth.ActionReviewProduct, ""); err != nil {
		return err
	}
	if !validRating(rating) {
		return apperr.Validation("rating", "rating must be between 0 and 5")
	}
	if comment == "" {
		return apperr.Validation("comment", "comment is required")
	}
	prod, err := s.Store.Product(ctx, productID)
	if err != nil {
		return err
	}
	for _, r := range prod.Reviews {
		if r.UserID == p.ID {
			return apperr.Validation("review", "product already reviewed")
		}
	}
	now := time.Now().UTC()
	reviews := append(prod.Reviews, Review{
		UserID:    p.ID,
		Name:      p.FullName,
		Rating:    rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	})
	rt, n := aggregate(reviews)
	return s.Store.SetReviews(ctx, productID, reviews, rt, n)
}

func (s *Service) UpdateReview(ctx context.Context, p *auth.Principal, productID string, rating int, comment string) error {
	if err := auth.Authorize(p, auth.ActionReviewProduct, ""); err != nil {
		return err
	}
	if !validRating(rating) {
		return apperr.Validation("rating", "rating must be between 0 and 5")
	}
	prod, err := s.Store.Product(ctx, productID)
	if err != nil {
		return err
	}
	found := false
	for i := range prod.Reviews {
		if prod.Reviews[i].UserID == p.ID {
			prod.Reviews[i].Rating = rating
			prod.Reviews[i].Comment = comment
			prod.Reviews[i].UpdatedAt = time.Now().UTC()
			found = true
			break
		}
	}
	if !found {
		return apperr.NotFound("review")
	}
	rt, n := aggregate(prod.Reviews)
	return s.Store.SetReviews(ctx, productID, prod.Reviews, rt, n)
}

func (s *Service) DeleteReview(ctx context.Context, p *auth.Principal, productID string) error {
	if err := auth.Authorize(p, auth.ActionReviewProduct, ""); err != nil {
		return err
	}
	prod, err := s.Store.Product(ctx, productID)
	if err != nil {
		return err
	}
	kept := prod.Reviews[:0]
	found := false
	for _, r := range prod.Reviews {
		if r.UserID == p.ID {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	if !found {
		return apperr.NotFound("review")
	}
	rt, n := aggregate(kept)
	return s.Store.SetReviews(ctx, productID, kept, rt, n)
}
