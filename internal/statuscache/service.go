// Package statuscache keeps a redis projection of each order's current
// payment/preparation status, fed from the order lifecycle topics, so
// status polls do not hit Postgres.
package statuscache

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/orders"
	"github.com/canteenworks/canteen-orders/internal/redisx"
)

// Snapshot is the cached JSON value.
type Snapshot struct {
	PaymentStatus orders.PaymentStatus `json:"payment_status,omitempty"`
	OrderStatus   orders.OrderStatus   `json:"order_status,omitempty"`
}

type Service struct {
	Cache       redisx.Cache
	Log         *zap.Logger
	ServiceName string // dedup namespace
}

// HandleEvent is the consumer handler for all three order topics.
// Redeliveries are dropped via a redis SETNX on the event id.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := s.Cache.SetNX(ctx, dkey, "1", redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	switch env.EventType {
	case orders.EventOrderCreated:
		var p orders.OrderCreatedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return s.write(ctx, p.OrderID, Snapshot{
			PaymentStatus: p.PaymentStatus,
			OrderStatus:   p.OrderStatus,
		})
	case orders.EventPaymentApplied:
		var p orders.PaymentAppliedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return s.merge(ctx, p.OrderID, Snapshot{PaymentStatus: p.PaymentStatus})
	case orders.EventOrderStatusChanged:
		var p orders.OrderStatusChangedPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		return s.merge(ctx, p.OrderID, Snapshot{OrderStatus: p.OrderStatus})
	}
	return nil // unknown event types are ignored
}

// merge overlays the non-empty fields of upd on whatever is cached.
// A miss just writes the partial snapshot; the read path falls back to
// the store anyway.
func (s *Service) merge(ctx context.Context, orderID string, upd Snapshot) error {
	cur, err := s.read(ctx, orderID)
	if err != nil {
		return err
	}
	if upd.PaymentStatus != "" {
		cur.PaymentStatus = upd.PaymentStatus
	}
	if upd.OrderStatus != "" {
		cur.OrderStatus = upd.OrderStatus
	}
	return s.write(ctx, orderID, cur)
}

func (s *Service) read(ctx context.Context, orderID string) (Snapshot, error) {
	raw, err := s.Cache.Get(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID))
	if err != nil || raw == "" {
		return Snapshot{}, err
	}
	var snap Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// Treat a corrupt entry as a miss and overwrite it.
		s.Log.Warn("dropping corrupt status cache entry", zap.String("order_id", orderID))
		return Snapshot{}, nil
	}
	return snap, nil
}

func (s *Service) write(ctx context.Context, orderID string, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.Cache.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, orderID), string(b), redisx.TTLStatusCache)
}
