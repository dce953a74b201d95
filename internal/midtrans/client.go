// Package midtrans integrates the Midtrans Snap payment gateway: one
// call to create a hosted-payment transaction, plus signature
// verification for inbound webhook notifications.
package midtrans

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/canteenworks/canteen-orders/internal/orders"
)

const (
	SandboxBase    = "https://app.sandbox.midtrans.com/snap/v1"
	ProductionBase = "https://app.midtrans.com/snap/v1"

	defaultTimeout = 10 * time.Second
)

type Config struct {
	ServerKey string // empty = gateway not configured
	APIBase   string // defaults to SandboxBase
	Timeout   time.Duration
}

// Client implements orders.PaymentGateway. An unconfigured client (no
// server key) is valid: CreatePaymentLink returns ("", nil) so order
// creation proceeds without a link.
type Client struct {
	serverKey string
	base      string
	http      *http.Client
}

func NewClient(cfg Config) *Client {
	base := cfg.APIBase
	if base == "" {
		base = SandboxBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		serverKey: cfg.ServerKey,
		base:      strings.TrimRight(base, "/"),
		http:      &http.Client{Timeout: timeout},
	}
}

func (c *Client) Configured() bool { return c.serverKey != "" }

type snapItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    int    `json:"price"`
	Quantity int    `json:"quantity"`
}

type snapRequest struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int    `json:"gross_amount"`
	} `json:"transaction_details"`
	ItemDetails     []snapItem `json:"item_details"`
	CustomerDetails struct {
		FirstName string `json:"first_name,omitempty"`
		Email     string `json:"email,omitempty"`
		Phone     string `json:"phone,omitempty"`
	} `json:"customer_details"`
}

type snapResponse struct {
	Token         string   `json:"token"`
	RedirectURL   string   `json:"redirect_url"`
	ErrorMessages []string `json:"error_messages"`
}

// CreatePaymentLink creates a Snap transaction and returns the hosted
// payment page URL.
func (c *Client) CreatePaymentLink(ctx context.Context, orderID string, totalCents int, items []orders.PaymentItem, buyer orders.Buyer) (string, error) {
	if !c.Configured() {
		return "", nil
	}

	var req snapRequest
	req.TransactionDetails.OrderID = orderID
	req.TransactionDetails.GrossAmount = totalCents
	for _, it := range items {
		req.ItemDetails = append(req.ItemDetails, snapItem{
			ID:       it.ID,
			Name:     it.Name,
			Price:    it.PriceCents,
			Quantity: it.Qty,
		})
	}
	req.CustomerDetails.FirstName = buyer.Name
	req.CustomerDetails.Email = buyer.Email
	req.CustomerDetails.Phone = buyer.Phone

	body, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/transactions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Basic "+basicAuth(c.serverKey))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out snapResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("midtrans: decode response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		if len(out.ErrorMessages) > 0 {
			return "", fmt.Errorf("midtrans: %s", strings.Join(out.ErrorMessages, "; "))
		}
		return "", fmt.Errorf("midtrans: unexpected status %d", resp.StatusCode)
	}
	return out.RedirectURL, nil
}

// The Snap API authenticates with the server key as basic-auth user
// and an empty password.
func basicAuth(serverKey string) string {
	return base64.StdEncoding.EncodeToString([]byte(serverKey + ":"))
}
