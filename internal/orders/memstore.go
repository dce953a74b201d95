package orders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store with the same semantics as PGStore.
// A single mutex stands in for the database's transaction boundary, so
// every method is one atomic unit of work. Used by tests and local
// development wiring.
type MemStore struct {
	mu       sync.Mutex
	menus    map[string]*Menu
	orders   map[string]*Order
	feedback map[string]*Feedback // keyed by order id
	canteens map[string]string    // owner id -> canteen id
}

func NewMemStore() *MemStore {
	return &MemStore{
		menus:    map[string]*Menu{},
		orders:   map[string]*Order{},
		feedback: map[string]*Feedback{},
		canteens: map[string]string{},
	}
}

// AddMenu seeds a menu item.
func (s *MemStore) AddMenu(m Menu) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	s.menus[m.ID] = &m
}

// AddCanteen seeds the owner -> canteen mapping.
func (s *MemStore) AddCanteen(canteenID, ownerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.canteens[ownerID] = canteenID
}

// Stock returns the current stock for assertions.
func (s *MemStore) Stock(menuID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.menus[menuID]; ok {
		return m.Stock
	}
	return -1
}

func (s *MemStore) CreateOrder(ctx context.Context, userID string, lines []Line) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []string
	for _, l := range lines {
		m, ok := s.menus[l.MenuID]
		if !ok || m.Deleted() {
			missing = append(missing, l.MenuID)
		}
	}
	if len(missing) > 0 {
		return nil, ErrNotFound("menu(s) not found: %s", strings.Join(missing, ", "))
	}

	canteenID := s.menus[lines[0].MenuID].CanteenID
	for _, l := range lines {
		if s.menus[l.MenuID].CanteenID != canteenID {
			return nil, ErrInvalidRequest("all items must be from the same canteen")
		}
	}

	for _, l := range lines {
		if m := s.menus[l.MenuID]; m.Stock < l.Qty {
			return nil, ErrInsufficientStock(m.Name, m.Stock, l.Qty)
		}
	}

	now := time.Now().UTC()
	order := &Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		CanteenID:     canteenID,
		PaymentStatus: PaymentUnpaid,
		OrderStatus:   StatusWaiting,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for _, l := range lines {
		order.Items = append(order.Items, OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			MenuID:     l.MenuID,
			Qty:        l.Qty,
			PriceCents: s.menus[l.MenuID].PriceCents,
		})
		s.menus[l.MenuID].Stock -= l.Qty
	}
	s.orders[order.ID] = order
	return cloneOrder(order), nil
}

func (s *MemStore) SetPaymentLink(ctx context.Context, orderID, link string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return ErrNotFound("order not found: %s", orderID)
	}
	o.PaymentLink = link
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) ApplyPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return false, ErrNotFound("order not found: %s", orderID)
	}
	if o.PaymentStatus == status {
		return false, nil
	}
	o.PaymentStatus = status
	o.UpdatedAt = time.Now().UTC()
	if status == PaymentCancelled {
		for _, it := range o.Items {
			if m, ok := s.menus[it.MenuID]; ok {
				m.Stock += it.Qty
			}
		}
	}
	return true, nil
}

func (s *MemStore) AdvanceOrderStatus(ctx context.Context, canteenID, orderID string, status OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || o.CanteenID != canteenID {
		return ErrNotFound("order not found for this canteen")
	}
	if o.PaymentStatus != PaymentPaid {
		return ErrInvalidState("payment for this order is not completed")
	}
	o.OrderStatus = status
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemStore) OrderByID(ctx context.Context, orderID string) (*Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil, ErrNotFound("order not found: %s", orderID)
	}
	return cloneOrder(o), nil
}

func (s *MemStore) ListOrders(ctx context.Context, q OrderQuery) ([]OrderSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OrderSummary
	for _, o := range s.orders {
		if q.UserID != "" && o.UserID != q.UserID {
			continue
		}
		if q.CanteenID != "" && o.CanteenID != q.CanteenID {
			continue
		}
		if q.OrderStatus != "" && o.OrderStatus != q.OrderStatus {
			continue
		}
		if q.PaymentStatus != "" && o.PaymentStatus != q.PaymentStatus {
			continue
		}
		out = append(out, OrderSummary{
			ID:            o.ID,
			UserID:        o.UserID,
			CanteenID:     o.CanteenID,
			PaymentStatus: o.PaymentStatus,
			OrderStatus:   o.OrderStatus,
			PaymentLink:   o.PaymentLink,
			TotalCents:    o.TotalCents(),
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if q.SortAsc {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemStore) MenusByIDs(ctx context.Context, ids []string) ([]Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Menu
	for _, id := range ids {
		if m, ok := s.menus[id]; ok {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (s *MemStore) MenusByCanteen(ctx context.Context, canteenID string) ([]Menu, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Menu
	for _, m := range s.menus {
		if m.CanteenID == canteenID && !m.Deleted() {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemStore) CanteenIDByOwner(ctx context.Context, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.canteens[ownerID]
	if !ok {
		return "", ErrNotFound("no canteen registered for this owner")
	}
	return id, nil
}

func (s *MemStore) CreateFeedback(ctx context.Context, fb *Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[fb.OrderID]
	if !ok || o.UserID != fb.UserID {
		return ErrNotFound("order not found: %s", fb.OrderID)
	}
	if o.OrderStatus != StatusCompleted {
		return ErrInvalidState("feedback is only allowed for completed orders")
	}
	if _, exists := s.feedback[fb.OrderID]; exists {
		return ErrConflict("feedback already exists for this order")
	}
	fb.ID = uuid.NewString()
	fb.CanteenID = o.CanteenID
	fb.CreatedAt = time.Now().UTC()
	cp := *fb
	s.feedback[fb.OrderID] = &cp
	return nil
}

func (s *MemStore) FeedbackByCanteen(ctx context.Context, canteenID string) ([]Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Feedback
	for _, f := range s.feedback {
		if f.CanteenID == canteenID && f.DeletedAt == nil {
			out = append(out, *f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func cloneOrder(o *Order) *Order {
	cp := *o
	cp.Items = append([]OrderItem(nil), o.Items...)
	return &cp
}
