package catalog

import "time"

// Account is one sellable credential pair. It lives in exactly one
// product's pool or inside exactly one order line, never both.
type Account struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Review struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	PriceCents  int       `json:"price_cents"`
	Stock       int       `json:"stock"` // derived: always len(Accounts)
	Description string    `json:"description"`
	Image       string    `json:"image"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Rating      float64   `json:"rating"`
	NumReviews  int       `json:"num_reviews"`
	Accounts    []Account `json:"-"` // unassigned pool, never serialized to buyers
	Reviews     []Review  `json:"reviews"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// aggregate recomputes the review summary.
func aggregate(reviews []Review) (rating float64, numReviews int) {
	if len(reviews) == 0 {
		return 0, 0
	}
	sum := 0
	for _, r := range reviews {
		sum += r.Rating
	}
	return float64(sum) / float64(len(reviews)), len(reviews)
}
