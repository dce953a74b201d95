package midtrans

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"

	"github.com/canteenworks/canteen-orders/internal/orders"
)

// WebhookVerifier implements orders.NotificationVerifier using the
// Midtrans signature scheme: the signature_key field must equal
// sha512(order_id + status_code + gross_amount + server_key).
type WebhookVerifier struct {
	serverKey string
}

func NewWebhookVerifier(serverKey string) *WebhookVerifier {
	return &WebhookVerifier{serverKey: serverKey}
}

func (v *WebhookVerifier) Verify(n orders.PaymentNotification) bool {
	if v.serverKey == "" || n.SignatureKey == "" {
		return false
	}
	sum := sha512.Sum512([]byte(n.OrderID + n.StatusCode + n.GrossAmount + v.serverKey))
	want := hex.EncodeToString(sum[:])
	return hmac.Equal([]byte(want), []byte(n.SignatureKey))
}
