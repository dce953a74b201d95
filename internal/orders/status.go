package orders

type PaymentStatus string

const (
	PaymentUnpaid    PaymentStatus = "UNPAID"
	PaymentPaid      PaymentStatus = "PAID"
	PaymentCancelled PaymentStatus = "CANCELLED"
)

type OrderStatus string

const (
	StatusWaiting   OrderStatus = "WAITING"
	StatusCooking   OrderStatus = "COOKING"
	StatusReady     OrderStatus = "READY"
	StatusCompleted OrderStatus = "COMPLETED"
)

// preparationStatuses are the owner-settable states. Sequencing among
// them is deliberately not enforced; the only gate is payment.
var preparationStatuses = map[OrderStatus]bool{
	StatusCooking:   true,
	StatusReady:     true,
	StatusCompleted: true,
}

func (s OrderStatus) Preparation() bool { return preparationStatuses[s] }

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentUnpaid, PaymentPaid, PaymentCancelled:
		return true
	}
	return false
}

// paymentStatusFor maps the gateway's transaction/fraud status pair to
// the local payment status. ok=false means the notification carries no
// state change (e.g. pending, or a capture flagged by fraud review).
func paymentStatusFor(txStatus, fraudStatus string) (PaymentStatus, bool) {
	switch txStatus {
	case "settlement", "capture":
		if fraudStatus == "accept" {
			return PaymentPaid, true
		}
		return "", false
	case "cancel", "expire", "deny", "failure":
		return PaymentCancelled, true
	}
	return "", false
}
