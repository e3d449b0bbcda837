package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/auth"
	"github.com/ariefcatur/go-account-shop.git/internal/coupons"
	"github.com/go-chi/chi/v5"
)

type CouponsHandler struct {
	Service *coupons.Service
}

func (h *CouponsHandler) Register(r *chi.Mux) {
	r.Get("/api/coupons", h.list)
	r.Post("/api/coupons", h.create)
	r.Delete("/api/coupons/{code}", h.delete)
}

func (h *CouponsHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	cs, err := h.Service.List(ctx, auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *CouponsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in coupons.CouponInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	c, err := h.Service.Create(ctx, auth.FromContext(r.Context()), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "coupon added successfully", "coupon": c})
}

func (h *CouponsHandler) delete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Service.Delete(ctx, auth.FromContext(r.Context()), chi.URLParam(r, "code")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "coupon deleted successfully"})
}
