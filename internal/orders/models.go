package orders

import "time"

type Menu struct {
	ID         string
	CanteenID  string
	Name       string
	PriceCents int
	Stock      int
	PhotoURL   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

func (m Menu) Deleted() bool { return m.DeletedAt != nil }

type Order struct {
	ID            string
	UserID        string
	CanteenID     string
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
	PaymentLink   string // empty when no payment link was obtained
	Items         []OrderItem
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TotalCents is the gross amount: sum of snapshot price x quantity.
func (o Order) TotalCents() int {
	total := 0
	for _, it := range o.Items {
		total += it.PriceCents * it.Qty
	}
	return total
}

type OrderItem struct {
	ID      string
	OrderID string
	MenuID  string
	Qty     int
	// PriceCents is snapshot at order time; later menu price changes
	// never touch it.
	PriceCents int
}

// OrderSummary is the list-view projection with the total precomputed.
type OrderSummary struct {
	ID            string
	UserID        string
	CanteenID     string
	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
	PaymentLink   string
	TotalCents    int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Feedback struct {
	ID        string
	OrderID   string
	UserID    string
	CanteenID string
	Rating    int // 1..5
	Comment   string
	CreatedAt time.Time
	DeletedAt *time.Time
}
