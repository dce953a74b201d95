package orders

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// PaymentItem is one line passed to the payment gateway.
type PaymentItem struct {
	ID         string
	Name       string
	PriceCents int
	Qty        int
}

// Buyer is the contact block forwarded to the gateway.
type Buyer struct {
	Name  string
	Email string
	Phone string
}

// PaymentGateway creates a remote payment transaction and returns the
// hosted-page redirect URL. An unconfigured gateway returns ("", nil);
// the orchestrator treats that as "no link", never as an error.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, orderID string, totalCents int, items []PaymentItem, buyer Buyer) (string, error)
}

// EventPublisher is satisfied by kafka.Producer. Implementations must
// not block the request path.
type EventPublisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// PaymentNotification is the provider-defined webhook payload. Only the
// fields the reconciler needs are decoded; the signature covers
// order_id + status_code + gross_amount.
type PaymentNotification struct {
	TransactionID     string `json:"transaction_id"`
	OrderID           string `json:"order_id"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
}

// NotificationVerifier checks webhook authenticity. It must be
// consulted before any state is touched.
type NotificationVerifier interface {
	Verify(n PaymentNotification) bool
}
