package orders

import "context"

// Line is one requested order line as submitted by the user.
type Line struct {
	MenuID string `json:"menu_id"`
	Qty    int    `json:"quantity"`
}

// OrderQuery is the canonical filter produced by the scope resolver.
// Exactly one of UserID/CanteenID is set for USER / CANTEEN_OWNER.
type OrderQuery struct {
	UserID        string
	CanteenID     string
	OrderStatus   OrderStatus   // optional
	PaymentStatus PaymentStatus // optional
	SortAsc       bool          // default newest first
}

// Store is the order aggregate store plus the inventory ledger. Every
// method that mutates more than one row runs as one atomic unit of
// work: partial effects are never observable.
type Store interface {
	// CreateOrder loads the referenced menus, rejects missing/deleted
	// ids, cross-canteen mixes and stock shortfalls, snapshots prices,
	// and persists the order, its items and the stock decrements
	// all-or-nothing. The returned order is UNPAID/WAITING.
	CreateOrder(ctx context.Context, userID string, lines []Line) (*Order, error)

	// SetPaymentLink persists the gateway redirect URL after the order
	// (and its stock reservation) has been durably committed.
	SetPaymentLink(ctx context.Context, orderID, link string) error

	// ApplyPaymentStatus transitions the order's payment status,
	// serialized per order. It is a no-op (changed=false) when the
	// order already has the target status, which makes webhook
	// redelivery safe. A transition to CANCELLED restores stock for
	// every line item in the same unit of work.
	ApplyPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) (changed bool, err error)

	// AdvanceOrderStatus sets a preparation status on a PAID order
	// belonging to the given canteen.
	AdvanceOrderStatus(ctx context.Context, canteenID, orderID string, status OrderStatus) error

	OrderByID(ctx context.Context, orderID string) (*Order, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]OrderSummary, error)

	// MenusByIDs returns menus for display lookup, including
	// soft-deleted ones (historic orders still reference them).
	MenusByIDs(ctx context.Context, ids []string) ([]Menu, error)
	MenusByCanteen(ctx context.Context, canteenID string) ([]Menu, error)

	CanteenIDByOwner(ctx context.Context, ownerID string) (string, error)

	// CreateFeedback inserts feedback for the caller's own COMPLETED
	// order; a second feedback for the same order is a Conflict.
	CreateFeedback(ctx context.Context, fb *Feedback) error
	FeedbackByCanteen(ctx context.Context, canteenID string) ([]Feedback, error)
}
