// Package metrics holds the Prometheus instruments shared by the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	OrdersCreated    prometheus.Counter
	OrderFailures    *prometheus.CounterVec // label: reason
	PaymentLinkMiss  prometheus.Counter     // gateway unconfigured or call failed
	WebhookOutcomes  *prometheus.CounterVec // label: outcome
	StockCompensated prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canteen_orders_created_total",
			Help: "Orders successfully created.",
		}),
		OrderFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canteen_order_failures_total",
			Help: "Rejected order creations by reason.",
		}, []string{"reason"}),
		PaymentLinkMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canteen_payment_link_missing_total",
			Help: "Orders created without a payment link.",
		}),
		WebhookOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "canteen_webhook_notifications_total",
			Help: "Webhook notifications by outcome.",
		}, []string{"outcome"}),
		StockCompensated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "canteen_stock_compensations_total",
			Help: "Cancelled orders whose stock was restored.",
		}),
	}
	reg.MustRegister(m.OrdersCreated, m.OrderFailures, m.PaymentLinkMiss, m.WebhookOutcomes, m.StockCompensated)
	return m
}
