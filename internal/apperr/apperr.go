package apperr

import "fmt"

type Kind int

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidation
	KindInsufficientStock
	KindInvalidCoupon
	KindInvalidState
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "UNAUTHENTICATED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindValidation:
		return "VALIDATION"
	case KindInsufficientStock:
		return "INSUFFICIENT_STOCK"
	case KindInvalidCoupon:
		return "INVALID_COUPON"
	case KindInvalidState:
		return "INVALID_STATE"
	case KindPersistence:
		return "PERSISTENCE"
	default:
		return "INTERNAL"
	}
}

// Error carries a stable kind plus the detail fields the response layer
// is allowed to expose. Err (if set) stays server-side.
type Error struct {
	Kind     Kind
	Msg      string
	Resource string // NOT_FOUND
	Field    string // VALIDATION
	Product  string // INSUFFICIENT_STOCK
	Expected string // INVALID_STATE
	Actual   string // INVALID_STATE
	Err      error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func Unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Msg: "authentication required"}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Msg: msg}
}

func NotFound(resource string) *Error {
	return &Error{Kind: KindNotFound, Resource: resource, Msg: resource + " not found"}
}

func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: msg}
}

func InsufficientStock(productID string) *Error {
	return &Error{Kind: KindInsufficientStock, Product: productID, Msg: "insufficient stock for product " + productID}
}

func InvalidCoupon(reason string) *Error {
	return &Error{Kind: KindInvalidCoupon, Msg: reason}
}

func InvalidState(expected, actual string) *Error {
	return &Error{
		Kind:     KindInvalidState,
		Expected: expected,
		Actual:   actual,
		Msg:      fmt.Sprintf("expected status %q, got %q", expected, actual),
	}
}

func Persistence(err error) *Error {
	return &Error{Kind: KindPersistence, Msg: "storage failure", Err: err}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Msg: "internal error", Err: err}
}

// KindOf classifies any error; non-apperr errors count as internal.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindInternal
}

func AsError(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
