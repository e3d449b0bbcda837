package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/rs/zerolog/log"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Kind     string `json:"kind"`
	Message  string `json:"message"`
	Resource string `json:"resource,omitempty"`
	Field    string `json:"field,omitempty"`
	Product  string `json:"product,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// writeError turns a domain error into a structured response. Anything
// unclassified or persistence-level is logged server-side and reported
// as a generic internal error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	body := errorBody{Kind: kind.String(), Message: err.Error()}
	if e, ok := apperr.AsError(err); ok {
		body.Resource = e.Resource
		body.Field = e.Field
		body.Product = e.Product
		body.Expected = e.Expected
		body.Actual = e.Actual
	}

	var code int
	switch kind {
	case apperr.KindUnauthenticated:
		code = http.StatusUnauthorized
	case apperr.KindForbidden:
		code = http.StatusForbidden
	case apperr.KindNotFound:
		code = http.StatusNotFound
	case apperr.KindValidation, apperr.KindInvalidCoupon:
		code = http.StatusBadRequest
	case apperr.KindInsufficientStock, apperr.KindInvalidState:
		code = http.StatusConflict
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		code = http.StatusInternalServerError
		body.Message = "internal server error"
	}
	writeJSON(w, code, map[string]errorBody{"error": body})
}
