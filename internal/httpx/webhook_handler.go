package httpx

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/canteenworks/canteen-orders/internal/orders"
)

// WebhookHandler receives payment-gateway notifications. The endpoint
// is unauthenticated by design: authenticity comes from the signature
// inside the payload, which the reconciler checks before any state is
// touched.
type WebhookHandler struct {
	Reconciler *orders.Reconciler
	Log        *zap.Logger
}

func (h *WebhookHandler) Register(r *chi.Mux) {
	r.Post("/webhooks/midtrans", h.handleNotification)
}

func (h *WebhookHandler) handleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	if err := h.Reconciler.HandleNotification(r.Context(), body); err != nil {
		if h.Log != nil {
			h.Log.Warn("webhook rejected", zap.Error(err))
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OK"})
}
