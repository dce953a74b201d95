package orders

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/metrics"
)

// Reconciler maps asynchronous payment notifications onto local order
// state. Notifications may be redelivered any number of times; the
// status comparison inside ApplyPaymentStatus makes replays no-ops, so
// compensation runs exactly once per order.
type Reconciler struct {
	Store    Store
	Verifier NotificationVerifier
	Events   EventPublisher // nil-safe
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Name     string
}

// HandleNotification verifies and applies one webhook delivery.
// The signature gate runs before any state is touched.
func (r *Reconciler) HandleNotification(ctx context.Context, raw []byte) error {
	var n PaymentNotification
	if err := json.Unmarshal(raw, &n); err != nil {
		r.count("malformed")
		return ErrInvalidRequest("malformed notification payload")
	}

	if r.Verifier == nil || !r.Verifier.Verify(n) {
		r.count("invalid_signature")
		return ErrInvalidSignature()
	}

	order, err := r.Store.OrderByID(ctx, n.OrderID)
	if err != nil {
		r.count("order_not_found")
		return err
	}

	status, ok := paymentStatusFor(n.TransactionStatus, n.FraudStatus)
	if !ok {
		if r.Log != nil {
			r.Log.Debug("notification carries no state change",
				zap.String("order_id", n.OrderID),
				zap.String("transaction_status", n.TransactionStatus),
				zap.String("fraud_status", n.FraudStatus))
		}
		r.count("ignored")
		return nil
	}
	if order.PaymentStatus == status {
		r.count("replay")
		return nil
	}

	changed, err := r.Store.ApplyPaymentStatus(ctx, n.OrderID, status)
	if err != nil {
		return err
	}
	if !changed {
		// Lost the race against a concurrent delivery that applied the
		// same transition first.
		r.count("replay")
		return nil
	}

	released := status == PaymentCancelled
	if released && r.Metrics != nil {
		r.Metrics.StockCompensated.Inc()
	}
	r.count("applied")
	if r.Log != nil {
		r.Log.Info("payment status applied",
			zap.String("order_id", n.OrderID),
			zap.String("payment_status", string(status)),
			zap.Bool("stock_released", released))
	}

	publishEvent(r.Events, r.Name, TopicOrderPayment, EventPaymentApplied, n.OrderID, PaymentAppliedPayload{
		OrderID:       n.OrderID,
		PaymentStatus: status,
		StockReleased: released,
	})
	return nil
}

func (r *Reconciler) count(outcome string) {
	if r.Metrics != nil {
		r.Metrics.WebhookOutcomes.WithLabelValues(outcome).Inc()
	}
}
