package httpx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/auth"
	"github.com/ariefcatur/go-account-shop.git/internal/orders"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	Service *orders.Service
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/api/orders", h.create)
	r.Get("/api/orders", h.listAll)
	r.Get("/api/orders/my-orders", h.myOrders)
	r.Put("/api/orders/check-expired-orders", h.sweep)
	r.Get("/api/orders/{id}/status", h.status)
	r.Put("/api/orders/{id}/status", h.setStatus)
	r.Put("/api/orders/{id}/pay", h.pay)
}

type createOrderReq struct {
	Items      []orders.CartLine `json:"items"`
	CouponCode string            `json:"coupon_code"`
}

func (h *OrdersHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Create(ctx, auth.FromContext(r.Context()), req.Items, req.CouponCode)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// accounts stay hidden until the order is paid
	writeJSON(w, http.StatusCreated, map[string]any{"message": "order created successfully", "order": o.Redacted()})
}

func (h *OrdersHandler) listAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Service.ListAll(ctx, auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]*orders.Order, len(list))
	for i := range list {
		out[i] = list[i].Redacted()
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *OrdersHandler) myOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	list, err := h.Service.MyOrders(ctx, auth.FromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	st, err := h.Service.Status(ctx, auth.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"order_id": id, "status": st})
}

type setStatusReq struct {
	Status orders.Status `json:"status"`
}

func (h *OrdersHandler) setStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid json"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.SetStatus(ctx, auth.FromContext(r.Context()), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "order status updated", "order": o.Redacted()})
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Service.Pay(ctx, auth.FromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	// the one place credential units are disclosed
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "order paid successfully, here are your accounts",
		"order":   o,
	})
}

func (h *OrdersHandler) sweep(w http.ResponseWriter, r *http.Request) {
	p := auth.FromContext(r.Context())
	if err := auth.Authorize(p, auth.ActionSweepOrders, ""); err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	n, err := h.Service.SweepExpired(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("%d orders were cancelled due to overdue payment", n),
	})
}
