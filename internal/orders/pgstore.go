package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is the production Store on Postgres. All multi-row mutations
// run inside explicit transactions; the stock decrement is conditional
// (WHERE stock >= qty) so the non-negative invariant holds under
// concurrent writers without read-then-write races.
type PGStore struct{ DB *pgxpool.Pool }

const pgUniqueViolation = "23505"

func (s *PGStore) CreateOrder(ctx context.Context, userID string, lines []Line) (*Order, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.MenuID)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, canteen_id, name, price_cents, stock
		FROM menus WHERE id = ANY($1) AND deleted_at IS NULL`, ids)
	if err != nil {
		return nil, err
	}
	menus := map[string]Menu{}
	for rows.Next() {
		var m Menu
		if err := rows.Scan(&m.ID, &m.CanteenID, &m.Name, &m.PriceCents, &m.Stock); err != nil {
			rows.Close()
			return nil, err
		}
		menus[m.ID] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := menus[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, ErrNotFound("menu(s) not found: %s", strings.Join(missing, ", "))
	}

	canteenID := menus[ids[0]].CanteenID
	for _, m := range menus {
		if m.CanteenID != canteenID {
			return nil, ErrInvalidRequest("all items must be from the same canteen")
		}
	}

	for _, l := range lines {
		if m := menus[l.MenuID]; m.Stock < l.Qty {
			return nil, ErrInsufficientStock(m.Name, m.Stock, l.Qty)
		}
	}

	order := &Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		CanteenID:     canteenID,
		PaymentStatus: PaymentUnpaid,
		OrderStatus:   StatusWaiting,
	}
	err = tx.QueryRow(ctx, `
		INSERT INTO orders(id, user_id, canteen_id, payment_status, order_status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		order.ID, userID, canteenID, PaymentUnpaid, StatusWaiting,
	).Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return nil, err
	}

	for _, l := range lines {
		item := OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			MenuID:     l.MenuID,
			Qty:        l.Qty,
			PriceCents: menus[l.MenuID].PriceCents,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, menu_id, qty, price_cents)
			VALUES ($1, $2, $3, $4, $5)`,
			item.ID, item.OrderID, item.MenuID, item.Qty, item.PriceCents,
		); err != nil {
			return nil, err
		}
		order.Items = append(order.Items, item)
	}

	// Stable lock order across concurrent multi-item orders.
	decrements := append([]Line(nil), lines...)
	sort.Slice(decrements, func(i, j int) bool { return decrements[i].MenuID < decrements[j].MenuID })
	for _, l := range decrements {
		ct, err := tx.Exec(ctx, `
			UPDATE menus SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2`, l.MenuID, l.Qty)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() != 1 {
			// Raced with another order since the read above; the
			// conditional update is the authoritative check.
			m := menus[l.MenuID]
			var avail int
			_ = tx.QueryRow(ctx, `SELECT stock FROM menus WHERE id=$1`, l.MenuID).Scan(&avail)
			return nil, ErrInsufficientStock(m.Name, avail, l.Qty)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PGStore) SetPaymentLink(ctx context.Context, orderID, link string) error {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET payment_link = $2, updated_at = now() WHERE id = $1`, orderID, link)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return ErrNotFound("order not found: %s", orderID)
	}
	return nil
}

func (s *PGStore) ApplyPaymentStatus(ctx context.Context, orderID string, status PaymentStatus) (bool, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Row lock serializes near-simultaneous webhook redeliveries for
	// the same order.
	var current PaymentStatus
	err = tx.QueryRow(ctx, `
		SELECT payment_status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound("order not found: %s", orderID)
	}
	if err != nil {
		return false, err
	}
	if current == status {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`, orderID, status); err != nil {
		return false, err
	}

	if status == PaymentCancelled {
		items, err := s.itemsTx(ctx, tx, orderID)
		if err != nil {
			return false, err
		}
		for _, it := range items {
			if _, err := tx.Exec(ctx, `
				UPDATE menus SET stock = stock + $2, updated_at = now() WHERE id = $1`,
				it.MenuID, it.Qty); err != nil {
				return false, err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PGStore) AdvanceOrderStatus(ctx context.Context, canteenID, orderID string, status OrderStatus) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var payment PaymentStatus
	err = tx.QueryRow(ctx, `
		SELECT payment_status FROM orders
		WHERE id = $1 AND canteen_id = $2 FOR UPDATE`, orderID, canteenID).Scan(&payment)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound("order not found for this canteen")
	}
	if err != nil {
		return err
	}
	if payment != PaymentPaid {
		return ErrInvalidState("payment for this order is not completed")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET order_status = $2, updated_at = now() WHERE id = $1`, orderID, status); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) OrderByID(ctx context.Context, orderID string) (*Order, error) {
	var o Order
	var link *string
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, canteen_id, payment_status, order_status, payment_link, created_at, updated_at
		FROM orders WHERE id = $1`, orderID).
		Scan(&o.ID, &o.UserID, &o.CanteenID, &o.PaymentStatus, &o.OrderStatus, &link, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound("order not found: %s", orderID)
	}
	if err != nil {
		return nil, err
	}
	if link != nil {
		o.PaymentLink = *link
	}
	items, err := s.itemsTx(ctx, s.DB, orderID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (s *PGStore) itemsTx(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, menu_id, qty, price_cents
		FROM order_items WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.MenuID, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *PGStore) ListOrders(ctx context.Context, q OrderQuery) ([]OrderSummary, error) {
	where := []string{}
	args := []any{}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.UserID != "" {
		add("o.user_id = $%d", q.UserID)
	}
	if q.CanteenID != "" {
		add("o.canteen_id = $%d", q.CanteenID)
	}
	if q.OrderStatus != "" {
		add("o.order_status = $%d", q.OrderStatus)
	}
	if q.PaymentStatus != "" {
		add("o.payment_status = $%d", q.PaymentStatus)
	}
	sql := `
		SELECT o.id, o.user_id, o.canteen_id, o.payment_status, o.order_status,
		       o.payment_link, COALESCE(SUM(i.price_cents * i.qty), 0),
		       o.created_at, o.updated_at
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.id`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += " GROUP BY o.id ORDER BY o.created_at"
	if q.SortAsc {
		sql += " ASC"
	} else {
		sql += " DESC"
	}

	rows, err := s.DB.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderSummary
	for rows.Next() {
		var o OrderSummary
		var link *string
		if err := rows.Scan(&o.ID, &o.UserID, &o.CanteenID, &o.PaymentStatus, &o.OrderStatus,
			&link, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if link != nil {
			o.PaymentLink = *link
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PGStore) MenusByIDs(ctx context.Context, ids []string) ([]Menu, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, canteen_id, name, price_cents, stock, COALESCE(photo_url, ''), created_at, updated_at, deleted_at
		FROM menus WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMenus(rows)
}

func (s *PGStore) MenusByCanteen(ctx context.Context, canteenID string) ([]Menu, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, canteen_id, name, price_cents, stock, COALESCE(photo_url, ''), created_at, updated_at, deleted_at
		FROM menus WHERE canteen_id = $1 AND deleted_at IS NULL ORDER BY name`, canteenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMenus(rows)
}

func scanMenus(rows pgx.Rows) ([]Menu, error) {
	var out []Menu
	for rows.Next() {
		var m Menu
		if err := rows.Scan(&m.ID, &m.CanteenID, &m.Name, &m.PriceCents, &m.Stock,
			&m.PhotoURL, &m.CreatedAt, &m.UpdatedAt, &m.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PGStore) CanteenIDByOwner(ctx context.Context, ownerID string) (string, error) {
	var id string
	err := s.DB.QueryRow(ctx, `SELECT id FROM canteens WHERE owner_id = $1`, ownerID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound("no canteen registered for this owner")
	}
	return id, err
}

func (s *PGStore) CreateFeedback(ctx context.Context, fb *Feedback) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var userID, canteenID string
	var status OrderStatus
	err = tx.QueryRow(ctx, `
		SELECT user_id, canteen_id, order_status FROM orders WHERE id = $1`, fb.OrderID).
		Scan(&userID, &canteenID, &status)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && userID != fb.UserID) {
		return ErrNotFound("order not found: %s", fb.OrderID)
	}
	if err != nil {
		return err
	}
	if status != StatusCompleted {
		return ErrInvalidState("feedback is only allowed for completed orders")
	}

	fb.ID = uuid.NewString()
	fb.CanteenID = canteenID
	err = tx.QueryRow(ctx, `
		INSERT INTO feedback(id, order_id, user_id, canteen_id, rating, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		fb.ID, fb.OrderID, fb.UserID, fb.CanteenID, fb.Rating, fb.Comment,
	).Scan(&fb.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrConflict("feedback already exists for this order")
		}
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) FeedbackByCanteen(ctx context.Context, canteenID string) ([]Feedback, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, user_id, canteen_id, rating, COALESCE(comment, ''), created_at
		FROM feedback WHERE canteen_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, canteenID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.OrderID, &f.UserID, &f.CanteenID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
