package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/auth"
	"github.com/canteenworks/canteen-orders/internal/orders"
	"github.com/canteenworks/canteen-orders/internal/redisx"
	"github.com/canteenworks/canteen-orders/internal/statuscache"
)

type OrdersHandler struct {
	Service *orders.Service
	Cache   redisx.Cache // status read path; nil disables the cache
	Log     *zap.Logger
}

type CreateOrderReq struct {
	Items []orders.Line `json:"items"`
}

type OrderItemResp struct {
	ID           string `json:"id"`
	MenuID       string `json:"menu_id"`
	Quantity     int    `json:"quantity"`
	PriceAtOrder int    `json:"price_at_order"`
}

type OrderResp struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	CanteenID     string          `json:"canteen_id"`
	PaymentStatus string          `json:"payment_status"`
	OrderStatus   string          `json:"order_status"`
	Items         []OrderItemResp `json:"items"`
	TotalCents    int             `json:"total_cents"`
	PaymentLink   *string         `json:"payment_link"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderSummaryResp struct {
	ID            string    `json:"id"`
	CanteenID     string    `json:"canteen_id"`
	PaymentStatus string    `json:"payment_status"`
	OrderStatus   string    `json:"order_status"`
	TotalCents    int       `json:"total_cents"`
	PaymentLink   *string   `json:"payment_link,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type OrderDetailItemResp struct {
	ID           string `json:"id"`
	MenuID       string `json:"menu_id"`
	MenuName     string `json:"menu_name"`
	MenuPhotoURL string `json:"menu_photo_url,omitempty"`
	Quantity     int    `json:"quantity"`
	PriceAtOrder int    `json:"price_at_order"`
}

type OrderDetailResp struct {
	ID            string                `json:"id"`
	UserID        string                `json:"user_id"`
	CanteenID     string                `json:"canteen_id"`
	PaymentStatus string                `json:"payment_status"`
	OrderStatus   string                `json:"order_status"`
	Items         []OrderDetailItemResp `json:"items"`
	TotalCents    int                   `json:"total_cents"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

type FeedbackReq struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Group(func(r chi.Router) {
		r.Use(Identity)

		r.With(RequireRole(auth.RoleUser)).Post("/orders", h.createOrder)
		r.With(RequireRole(auth.RoleUser, auth.RoleCanteenOwner)).Get("/orders", h.listOrders)
		r.With(RequireRole(auth.RoleUser, auth.RoleCanteenOwner)).Get("/orders/{id}", h.orderDetail)
		r.Get("/orders/{id}/status", h.orderStatus)
		r.With(RequireRole(auth.RoleCanteenOwner)).Patch("/orders/{id}/status", h.advanceOrder)

		r.With(RequireRole(auth.RoleUser)).Post("/orders/{id}/feedback", h.createFeedback)
		r.With(RequireRole(auth.RoleCanteenOwner)).Get("/feedback", h.listFeedback)
	})
	r.Get("/canteens/{id}/menus", h.listMenus)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	order, err := h.Service.CreateOrder(r.Context(), ident, req.Items)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "order created successfully",
		"order":   toOrderResp(order),
	})
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	f := orders.ListFilter{
		OrderStatus:   orders.OrderStatus(r.URL.Query().Get("order_status")),
		PaymentStatus: orders.PaymentStatus(r.URL.Query().Get("payment_status")),
		SortAsc:       r.URL.Query().Get("order_by") == "asc",
	}
	list, err := h.Service.List(r.Context(), ident, f)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]OrderSummaryResp, 0, len(list))
	for _, o := range list {
		resp := OrderSummaryResp{
			ID:            o.ID,
			CanteenID:     o.CanteenID,
			PaymentStatus: string(o.PaymentStatus),
			OrderStatus:   string(o.OrderStatus),
			TotalCents:    o.TotalCents,
			CreatedAt:     o.CreatedAt,
			UpdatedAt:     o.UpdatedAt,
		}
		// Payment links are for the buyer, not the canteen.
		if ident.Role == auth.RoleUser && o.PaymentLink != "" {
			link := o.PaymentLink
			resp.PaymentLink = &link
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": out})
}

func (h *OrdersHandler) orderDetail(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	orderID := chi.URLParam(r, "id")

	detail, err := h.Service.Detail(r.Context(), ident, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	o := detail.Order
	resp := OrderDetailResp{
		ID:            o.ID,
		UserID:        o.UserID,
		CanteenID:     o.CanteenID,
		PaymentStatus: string(o.PaymentStatus),
		OrderStatus:   string(o.OrderStatus),
		TotalCents:    o.TotalCents(),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, it := range o.Items {
		m := detail.Menus[it.MenuID]
		resp.Items = append(resp.Items, OrderDetailItemResp{
			ID:           it.ID,
			MenuID:       it.MenuID,
			MenuName:     m.Name,
			MenuPhotoURL: m.PhotoURL,
			Quantity:     it.Qty,
			PriceAtOrder: it.PriceCents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"order": resp})
}

// orderStatus serves the redis projection maintained by the worker and
// falls back to the store on a miss.
func (h *OrdersHandler) orderStatus(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	orderID := chi.URLParam(r, "id")

	if h.Cache != nil {
		if raw, err := h.Cache.Get(r.Context(), fmt.Sprintf(redisx.KeyOrderStatus, orderID)); err == nil && raw != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(raw))
			return
		}
	}

	detail, err := h.Service.Detail(r.Context(), ident, orderID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	snap := statuscache.Snapshot{
		PaymentStatus: detail.Order.PaymentStatus,
		OrderStatus:   detail.Order.OrderStatus,
	}
	if h.Cache != nil {
		if b, err := json.Marshal(snap); err == nil {
			_ = h.Cache.Set(r.Context(), fmt.Sprintf(redisx.KeyOrderStatus, orderID), string(b), redisx.TTLStatusCache)
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *OrdersHandler) advanceOrder(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	orderID := chi.URLParam(r, "id")

	var req struct {
		OrderStatus orders.OrderStatus `json:"order_status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.Service.Advance(r.Context(), ident, orderID, req.OrderStatus); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "order status updated successfully"})
}

func (h *OrdersHandler) createFeedback(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())
	orderID := chi.URLParam(r, "id")

	var req FeedbackReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	fb, err := h.Service.SubmitFeedback(r.Context(), ident, orderID, req.Rating, req.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "feedback submitted",
		"feedback": map[string]any{
			"id":       fb.ID,
			"order_id": fb.OrderID,
			"rating":   fb.Rating,
			"comment":  fb.Comment,
		},
	})
}

func (h *OrdersHandler) listFeedback(w http.ResponseWriter, r *http.Request) {
	ident, _ := auth.FromContext(r.Context())

	list, err := h.Service.CanteenFeedback(r.Context(), ident)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	type fbResp struct {
		ID        string    `json:"id"`
		OrderID   string    `json:"order_id"`
		Rating    int       `json:"rating"`
		Comment   string    `json:"comment,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]fbResp, 0, len(list))
	for _, f := range list {
		out = append(out, fbResp{ID: f.ID, OrderID: f.OrderID, Rating: f.Rating, Comment: f.Comment, CreatedAt: f.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedback": out})
}

func (h *OrdersHandler) listMenus(w http.ResponseWriter, r *http.Request) {
	canteenID := chi.URLParam(r, "id")

	menus, err := h.Service.Menus(r.Context(), canteenID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	type menuResp struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		PriceCents int    `json:"price_cents"`
		Stock      int    `json:"stock"`
		PhotoURL   string `json:"photo_url,omitempty"`
	}
	out := make([]menuResp, 0, len(menus))
	for _, m := range menus {
		out = append(out, menuResp{ID: m.ID, Name: m.Name, PriceCents: m.PriceCents, Stock: m.Stock, PhotoURL: m.PhotoURL})
	}
	writeJSON(w, http.StatusOK, map[string]any{"menus": out})
}

func toOrderResp(o *orders.Order) OrderResp {
	resp := OrderResp{
		ID:            o.ID,
		UserID:        o.UserID,
		CanteenID:     o.CanteenID,
		PaymentStatus: string(o.PaymentStatus),
		OrderStatus:   string(o.OrderStatus),
		TotalCents:    o.TotalCents(),
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	if o.PaymentLink != "" {
		link := o.PaymentLink
		resp.PaymentLink = &link
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, OrderItemResp{
			ID:           it.ID,
			MenuID:       it.MenuID,
			Quantity:     it.Qty,
			PriceAtOrder: it.PriceCents,
		})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// writeDomainError maps typed domain errors onto their HTTP status;
// anything else is a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	if e, ok := orders.AsError(err); ok {
		writeError(w, e.Status, e.Message)
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
