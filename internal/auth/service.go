package auth

import (
	"context"
	"net/mail"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type User struct {
	ID           string    `json:"id"`
	FullName     string    `json:"full_name"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	PhoneNumber  string    `json:"phone_number"`
	BirthDate    string    `json:"birth_date"` // DD/MM/YYYY
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists users. CreateUser must reject duplicate username or email.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	UserByUsername(ctx context.Context, username string) (*User, error)
}

type Service struct {
	Store  Store
	Tokens *TokenManager
}

type RegisterInput struct {
	FullName    string `json:"full_name"`
	Email       string `json:"email"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
	BirthDate   string `json:"birth_date"`
}

func (in *RegisterInput) validate() error {
	if in.FullName == "" {
		return apperr.Validation("full_name", "full name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return apperr.Validation("email", "email is invalid")
	}
	if in.Username == "" {
		return apperr.Validation("username", "username is required")
	}
	if len(in.Password) < 6 {
		return apperr.Validation("password", "password must be at least 6 characters")
	}
	if in.PhoneNumber == "" {
		return apperr.Validation("phone_number", "phone number is required")
	}
	if _, err := time.Parse("02/01/2006", in.BirthDate); err != nil {
		return apperr.Validation("birth_date", "birth date must use format DD/MM/YYYY")
	}
	return nil
}

func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	u := &User{
		ID:           uuid.NewString(),
		FullName:     in.FullName,
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: string(hash),
		PhoneNumber:  in.PhoneNumber,
		BirthDate:    in.BirthDate,
		Role:         RoleUser,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and issues a signed token. Both unknown
// username and wrong password come back as Unauthenticated.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	u, err := s.Store.UserByUsername(ctx, username)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return "", nil, apperr.Unauthenticated()
		}
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return "", nil, apperr.Unauthenticated()
	}
	tok, err := s.Tokens.Issue(&Principal{ID: u.ID, Role: u.Role, Username: u.Username, FullName: u.FullName})
	if err != nil {
		return "", nil, apperr.Internal(err)
	}
	return tok, u, nil
}
