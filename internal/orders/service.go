package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/auth"
	"github.com/canteenworks/canteen-orders/internal/metrics"
)

// Service is the order orchestrator. Store handles the atomic unit of
// work; the service validates input, talks to the payment gateway after
// the reservation is durable, and publishes lifecycle events.
type Service struct {
	Store   Store
	Gateway PaymentGateway // nil when no gateway integration is configured
	Events  EventPublisher // nil-safe
	Metrics *metrics.Metrics
	Log     *zap.Logger
	Name    string // producer name stamped on event envelopes
}

// ListFilter are the optional query parameters of the list endpoint.
type ListFilter struct {
	OrderStatus   OrderStatus
	PaymentStatus PaymentStatus
	SortAsc       bool
}

// OrderDetail is the detail projection: the order plus menu metadata
// for display (menus are weak references; price comes from the
// snapshot, never from here).
type OrderDetail struct {
	Order Order
	Menus map[string]Menu // keyed by menu id; soft-deleted menus included
}

// CreateOrder implements the create-order use case. The stock
// reservation is committed before the payment link is requested; a
// gateway failure degrades to a nil link, it never fails the order.
func (s *Service) CreateOrder(ctx context.Context, ident auth.Identity, lines []Line) (*Order, error) {
	merged, err := validateLines(lines)
	if err != nil {
		s.countFailure("invalid_request")
		return nil, err
	}

	order, err := s.Store.CreateOrder(ctx, ident.UserID, merged)
	if err != nil {
		if e, ok := AsError(err); ok {
			s.countFailure(strings.ToLower(string(e.Code)))
		}
		return nil, err
	}
	if s.Metrics != nil {
		s.Metrics.OrdersCreated.Inc()
	}

	s.attachPaymentLink(ctx, order, ident)
	s.publishCreated(ctx, order)
	return order, nil
}

// attachPaymentLink asks the gateway for a hosted-payment URL and
// persists it. Any failure here is logged and swallowed: the order has
// already been committed and stands on its own.
func (s *Service) attachPaymentLink(ctx context.Context, order *Order, ident auth.Identity) {
	if s.Gateway == nil {
		s.countLinkMiss()
		return
	}

	ids := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.MenuID)
	}
	menus, err := s.Store.MenusByIDs(ctx, ids)
	if err != nil {
		s.logWarn("payment link skipped: menu lookup failed", order.ID, err)
		s.countLinkMiss()
		return
	}
	names := map[string]string{}
	for _, m := range menus {
		names[m.ID] = m.Name
	}

	items := make([]PaymentItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, PaymentItem{
			ID:         it.MenuID,
			Name:       names[it.MenuID],
			PriceCents: it.PriceCents,
			Qty:        it.Qty,
		})
	}

	link, err := s.Gateway.CreatePaymentLink(ctx, order.ID, order.TotalCents(), items, Buyer{
		Name:  ident.Name,
		Email: ident.Email,
		Phone: ident.Phone,
	})
	if err != nil {
		s.logWarn("payment link acquisition failed", order.ID, err)
		s.countLinkMiss()
		return
	}
	if link == "" { // gateway unconfigured
		s.countLinkMiss()
		return
	}
	if err := s.Store.SetPaymentLink(ctx, order.ID, link); err != nil {
		s.logWarn("persisting payment link failed", order.ID, err)
		return
	}
	order.PaymentLink = link
}

// List returns the caller-scoped order summaries.
func (s *Service) List(ctx context.Context, ident auth.Identity, f ListFilter) ([]OrderSummary, error) {
	q, err := ScopeFor(ctx, s.Store, ident)
	if err != nil {
		return nil, err
	}
	q.OrderStatus = f.OrderStatus
	q.PaymentStatus = f.PaymentStatus
	q.SortAsc = f.SortAsc
	return s.Store.ListOrders(ctx, q)
}

// Detail returns one order with menu display metadata, scoped to the
// caller. An order outside the caller's scope reads as not found.
func (s *Service) Detail(ctx context.Context, ident auth.Identity, orderID string) (*OrderDetail, error) {
	q, err := ScopeFor(ctx, s.Store, ident)
	if err != nil {
		return nil, err
	}
	order, err := s.Store.OrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if q.UserID != "" && order.UserID != q.UserID {
		return nil, ErrNotFound("order not found: %s", orderID)
	}
	if q.CanteenID != "" && order.CanteenID != q.CanteenID {
		return nil, ErrNotFound("order not found: %s", orderID)
	}

	ids := make([]string, 0, len(order.Items))
	for _, it := range order.Items {
		ids = append(ids, it.MenuID)
	}
	menus, err := s.Store.MenusByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]Menu, len(menus))
	for _, m := range menus {
		byID[m.ID] = m
	}
	return &OrderDetail{Order: *order, Menus: byID}, nil
}

// Advance sets a preparation status on a paid order of the caller's
// canteen.
func (s *Service) Advance(ctx context.Context, ident auth.Identity, orderID string, status OrderStatus) error {
	if !status.Preparation() {
		return ErrInvalidRequest("order status must be one of %s, %s, %s",
			StatusCooking, StatusReady, StatusCompleted)
	}
	canteenID, err := s.Store.CanteenIDByOwner(ctx, ident.UserID)
	if err != nil {
		return err
	}
	if err := s.Store.AdvanceOrderStatus(ctx, canteenID, orderID, status); err != nil {
		return err
	}
	s.publish(ctx, TopicOrderProgress, EventOrderStatusChanged, orderID, OrderStatusChangedPayload{
		OrderID:     orderID,
		CanteenID:   canteenID,
		OrderStatus: status,
	})
	return nil
}

// Menus lists a canteen's active menu items.
func (s *Service) Menus(ctx context.Context, canteenID string) ([]Menu, error) {
	return s.Store.MenusByCanteen(ctx, canteenID)
}

// SubmitFeedback records a rating for the caller's completed order.
func (s *Service) SubmitFeedback(ctx context.Context, ident auth.Identity, orderID string, rating int, comment string) (*Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRequest("rating must be between 1 and 5")
	}
	fb := &Feedback{OrderID: orderID, UserID: ident.UserID, Rating: rating, Comment: comment}
	if err := s.Store.CreateFeedback(ctx, fb); err != nil {
		return nil, err
	}
	return fb, nil
}

// CanteenFeedback lists feedback for the owner's canteen.
func (s *Service) CanteenFeedback(ctx context.Context, ident auth.Identity) ([]Feedback, error) {
	canteenID, err := s.Store.CanteenIDByOwner(ctx, ident.UserID)
	if err != nil {
		return nil, err
	}
	return s.Store.FeedbackByCanteen(ctx, canteenID)
}

// validateLines aggregates field-level failures into one error and
// merges duplicate menu ids so the conditional decrement sees a single
// quantity per item.
func validateLines(lines []Line) ([]Line, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidRequest("at least one item is required")
	}
	var problems []string
	for i, l := range lines {
		if l.MenuID == "" {
			problems = append(problems, fmt.Sprintf("items[%d].menu_id is required", i))
		}
		if l.Qty <= 0 {
			problems = append(problems, fmt.Sprintf("items[%d].quantity must be positive", i))
		}
	}
	if len(problems) > 0 {
		return nil, ErrInvalidRequest("%s", strings.Join(problems, "; "))
	}

	idx := map[string]int{}
	merged := make([]Line, 0, len(lines))
	for _, l := range lines {
		if at, ok := idx[l.MenuID]; ok {
			merged[at].Qty += l.Qty
			continue
		}
		idx[l.MenuID] = len(merged)
		merged = append(merged, l)
	}
	return merged, nil
}

func (s *Service) publishCreated(ctx context.Context, order *Order) {
	items := make([]ItemQty, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, ItemQty{MenuID: it.MenuID, Qty: it.Qty})
	}
	s.publish(ctx, TopicOrderCreated, EventOrderCreated, order.ID, OrderCreatedPayload{
		OrderID:       order.ID,
		UserID:        order.UserID,
		CanteenID:     order.CanteenID,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		Items:         items,
		TotalCents:    order.TotalCents(),
	})
}

func (s *Service) publish(ctx context.Context, topic, eventType, orderID string, payload any) {
	publishEvent(s.Events, s.Name, topic, eventType, orderID, payload)
}

// publishEvent wraps a payload in the versioned envelope and hands it
// to the async producer. A nil publisher disables events.
func publishEvent(p EventPublisher, producer, topic, eventType, orderID string, payload any) {
	if p == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       mustMarshal(payload),
	}
	p.Publish(topic, PartitionKey(orderID), mustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) countFailure(reason string) {
	if s.Metrics != nil {
		s.Metrics.OrderFailures.WithLabelValues(reason).Inc()
	}
}

func (s *Service) countLinkMiss() {
	if s.Metrics != nil {
		s.Metrics.PaymentLinkMiss.Inc()
	}
}

func (s *Service) logWarn(msg, orderID string, err error) {
	if s.Log != nil {
		s.Log.Warn(msg, zap.String("order_id", orderID), zap.Error(err))
	}
}
