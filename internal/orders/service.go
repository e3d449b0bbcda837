package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/go-account-shop.git/internal/apperr"
	"github.com/ariefcatur/go-account-shop.git/internal/auth"
	kafkax "github.com/ariefcatur/go-account-shop.git/internal/kafka"
	"github.com/ariefcatur/go-account-shop.git/internal/redisx"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

// Store is the persistence contract for the reservation lifecycle.
//
// CreateOrder must be all-or-nothing: it withdraws every line's units,
// snapshots current prices, applies and consumes the coupon, and
// persists the pending order in one atomic unit. Any shortage or
// failure leaves no units outside a pool.
//
// ClaimCompleted and CancelAndRestock are conditional on the order
// still being pending, so at most one of pay/sweep wins per order.
type Store interface {
	CreateOrder(ctx context.Context, userID string, lines []CartLine, couponCode string, now, expiresAt time.Time) (*Order, error)
	Order(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListUserOrders(ctx context.Context, userID string) ([]Order, error)
	ClaimCompleted(ctx context.Context, id string) (*Order, error)
	CancelAndRestock(ctx context.Context, id string) (bool, error)
	ExpiredPending(ctx context.Context, cutoff time.Time) ([]string, error)
}

// Publisher emits lifecycle events. Satisfied by kafkax.Producer.
type Publisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

type Service struct {
	Store       Store
	Producer    Publisher     // optional
	Redis       *redis.Client // optional status cache + sweep lock
	ServiceName string
	Hold        time.Duration // payment hold window, e.g. 15m
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Create runs the checkout path: validate the cart, withdraw units for
// every line atomically, apply the coupon, persist the pending order.
// The returned order carries the assigned accounts; callers redact it
// for buyer-facing responses until payment completes.
func (s *Service) Create(ctx context.Context, p *auth.Principal, lines []CartLine, couponCode string) (*Order, error) {
	if err := auth.Authorize(p, auth.ActionCreateOrder, ""); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, apperr.Validation("items", "cart cannot be empty")
	}
	for _, l := range lines {
		if l.ProductID == "" {
			return nil, apperr.Validation("items", "every line needs a product")
		}
		if l.Quantity <= 0 {
			return nil, apperr.Validation("items", "quantity must be positive")
		}
	}

	now := s.now()
	o, err := s.Store.CreateOrder(ctx, p.ID, lines, couponCode, now, now.Add(s.Hold))
	if err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, o.ID, o.Status)
	items := make([]LineQty, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, LineQty{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	s.publish(TopicOrderCreated, EventOrderCreated, o.ID, OrderCreatedPayload{
		OrderID: o.ID, UserID: o.UserID, Items: items, TotalCents: o.TotalCents,
	})
	return o, nil
}

// Pay confirms payment on a pending order. The deadline is advisory: a
// pay arriving after paymentExpiresAt still succeeds as long as no sweep
// has claimed the order first.
func (s *Service) Pay(ctx context.Context, p *auth.Principal, orderID string) (*Order, error) {
	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(p, auth.ActionPayOrder, o.UserID); err != nil {
		return nil, err
	}
	o, err = s.Store.ClaimCompleted(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, o.ID, o.Status)
	s.publish(TopicOrderCompleted, EventOrderCompleted, o.ID, OrderCompletedPayload{
		OrderID: o.ID, TotalCents: o.TotalCents,
	})
	return o, nil
}

// Status is the lightweight status lookup, served from the redis cache
// when possible and re-primed from the store on a miss.
func (s *Service) Status(ctx context.Context, p *auth.Principal, orderID string) (Status, error) {
	if err := auth.Authorize(p, auth.ActionViewOwnOrders, ""); err != nil {
		return "", err
	}
	if s.Redis != nil {
		key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
		if v, err := s.Redis.Get(ctx, key).Result(); err == nil {
			var body struct {
				Status Status `json:"status"`
			}
			if json.Unmarshal([]byte(v), &body) == nil && body.Status.Valid() {
				return body.Status, nil
			}
		}
	}
	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return "", err
	}
	s.cacheStatus(ctx, o.ID, o.Status)
	return o.Status, nil
}

func (s *Service) ListAll(ctx context.Context, p *auth.Principal) ([]Order, error) {
	if err := auth.Authorize(p, auth.ActionListAllOrders, ""); err != nil {
		return nil, err
	}
	return s.Store.ListOrders(ctx)
}

// MyOrders lists the caller's orders with accounts redacted until the
// order is completed.
func (s *Service) MyOrders(ctx context.Context, p *auth.Principal) ([]Order, error) {
	if err := auth.Authorize(p, auth.ActionViewOwnOrders, ""); err != nil {
		return nil, err
	}
	list, err := s.Store.ListUserOrders(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	out := make([]Order, len(list))
	for i := range list {
		out[i] = *list[i].Redacted()
	}
	return out, nil
}

// SetStatus is the admin override. It funnels into the same conditional
// claims as pay and the sweeper, so terminal states stay terminal and a
// cancellation always returns the held units.
func (s *Service) SetStatus(ctx context.Context, p *auth.Principal, orderID string, st Status) (*Order, error) {
	if err := auth.Authorize(p, auth.ActionSetOrderStatus, ""); err != nil {
		return nil, err
	}
	if !st.Valid() {
		return nil, apperr.Validation("status", "invalid status")
	}
	o, err := s.Store.Order(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == st {
		return o, nil
	}
	if !CanTransition(o.Status, st) {
		return nil, apperr.InvalidState(string(StatusPending), string(o.Status))
	}
	switch st {
	case StatusCompleted:
		o, err = s.Store.ClaimCompleted(ctx, orderID)
		if err != nil {
			return nil, err
		}
		s.publish(TopicOrderCompleted, EventOrderCompleted, o.ID, OrderCompletedPayload{OrderID: o.ID, TotalCents: o.TotalCents})
	case StatusCancelled:
		claimed, err := s.Store.CancelAndRestock(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if !claimed {
			o, err = s.Store.Order(ctx, orderID)
			if err != nil {
				return nil, err
			}
			return nil, apperr.InvalidState(string(StatusPending), string(o.Status))
		}
		s.publish(TopicOrderCancelled, EventOrderCancelled, orderID, OrderCancelledPayload{OrderID: orderID, Reason: CancelReasonAdmin})
		o, err = s.Store.Order(ctx, orderID)
		if err != nil {
			return nil, err
		}
	}
	s.cacheStatus(ctx, o.ID, o.Status)
	return o, nil
}

// SweepExpired cancels every pending order past its deadline and returns
// the held units to their pools. Safe to run concurrently: each order is
// claimed with a conditional pending->cancelled transition, so a racing
// pay or a second sweep sees it already settled and skips it.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	if s.Redis != nil {
		ok, err := s.Redis.SetNX(ctx, redisx.KeySweepLock, s.ServiceName, redisx.TTLSweepLock).Result()
		switch {
		case err != nil:
			// lock state unknown: sweep anyway, but leave the key alone
			log.Warn().Err(err).Msg("sweep: lock unavailable")
		case !ok:
			return 0, nil // another sweep is running
		default:
			defer s.Redis.Del(ctx, redisx.KeySweepLock)
		}
	}

	ids, err := s.Store.ExpiredPending(ctx, s.now())
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, id := range ids {
		claimed, err := s.Store.CancelAndRestock(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("order_id", id).Msg("sweep: cancel failed")
			continue
		}
		if !claimed {
			continue // paid or already cancelled since the scan
		}
		cancelled++
		s.cacheStatus(ctx, id, StatusCancelled)
		s.publish(TopicOrderCancelled, EventOrderCancelled, id, OrderCancelledPayload{OrderID: id, Reason: CancelReasonExpired})
	}
	return cancelled, nil
}

func (s *Service) cacheStatus(ctx context.Context, orderID string, st Status) {
	if s.Redis == nil {
		return
	}
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	_ = s.Redis.Set(ctx, key, fmt.Sprintf(`{"status":%q}`, st), redisx.TTLStatusCache).Err()
}

func (s *Service) publish(topic, eventType, orderID string, payload any) {
	if s.Producer == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    s.now(),
		Producer:      s.ServiceName,
		CorrelationID: orderID,
	}
	ev.Payload = kafkax.MustMarshal(payload)
	s.Producer.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
