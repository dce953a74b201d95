package orders

import (
	"encoding/json"
	"time"
)

const (
	TopicOrderCreated  = "canteen.order.created"
	TopicOrderPayment  = "canteen.order.payment"
	TopicOrderProgress = "canteen.order.progress"
)

const (
	EventOrderCreated       = "OrderCreated"
	EventPaymentApplied     = "PaymentApplied"
	EventOrderStatusChanged = "OrderStatusChanged"
)

type Envelope struct {
	EventID       string          `json:"event_id"` // uuid
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "canteen-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type ItemQty struct {
	MenuID string `json:"menu_id"`
	Qty    int    `json:"qty"`
}

type OrderCreatedPayload struct {
	OrderID       string        `json:"order_id"`
	UserID        string        `json:"user_id"`
	CanteenID     string        `json:"canteen_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	OrderStatus   OrderStatus   `json:"order_status"`
	Items         []ItemQty     `json:"items"`
	TotalCents    int           `json:"total_cents"`
}

type PaymentAppliedPayload struct {
	OrderID       string        `json:"order_id"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	StockReleased bool          `json:"stock_released"`
}

type OrderStatusChangedPayload struct {
	OrderID     string      `json:"order_id"`
	CanteenID   string      `json:"canteen_id"`
	OrderStatus OrderStatus `json:"order_status"`
}

// PartitionKey keeps every event of one order on the same partition so
// consumers observe them in order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
