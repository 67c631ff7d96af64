// Package payment is thin glue over an external payment gateway (PayPal
// REST). Payment reconciliation correctness is out of scope; this package
// only creates a payment, exposes its approval URL, and executes it after
// the payer approves. Correlation between a payment and the event draft it
// pays for is persisted externally with a TTL (see directory.PaymentRef),
// never in process memory.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrPaymentRejected means the gateway refused to create or execute the
// payment.
var ErrPaymentRejected = errors.New("payment rejected by gateway")

// Gateway is the payment collaborator contract.
type Gateway interface {
	// CreatePayment registers a pending payment and returns its gateway ID
	// and the URL the payer must visit to approve it.
	CreatePayment(ctx context.Context, amountCents int64, currency, description string) (paymentID, approvalURL string, err error)

	// ExecutePayment captures an approved payment.
	ExecutePayment(ctx context.Context, paymentID, payerID string) error
}

// PayPalGateway implements Gateway against the PayPal REST payments API.
type PayPalGateway struct {
	httpClient   *http.Client
	baseURL      string
	clientID     string
	clientSecret string
}

var _ Gateway = (*PayPalGateway)(nil)

// NewPayPalGateway creates a gateway client.
func NewPayPalGateway(baseURL, clientID, clientSecret string) *PayPalGateway {
	return &PayPalGateway{
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

type createPaymentResponse struct {
	ID    string `json:"id"`
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (g *PayPalGateway) CreatePayment(ctx context.Context, amountCents int64, currency, description string) (string, string, error) {
	payload := map[string]any{
		"intent": "sale",
		"payer":  map[string]string{"payment_method": "paypal"},
		"transactions": []map[string]any{{
			"amount": map[string]string{
				"total":    fmt.Sprintf("%d.%02d", amountCents/100, amountCents%100),
				"currency": currency,
			},
			"description": description,
		}},
	}

	var resp createPaymentResponse
	if err := g.post(ctx, "/v1/payments/payment", payload, &resp); err != nil {
		return "", "", err
	}

	for _, link := range resp.Links {
		if link.Rel == "approval_url" {
			log.Info().Str("paymentId", resp.ID).Msg("Payment created")
			return resp.ID, link.Href, nil
		}
	}
	return "", "", fmt.Errorf("no approval URL in gateway response: %w", ErrPaymentRejected)
}

func (g *PayPalGateway) ExecutePayment(ctx context.Context, paymentID, payerID string) error {
	payload := map[string]string{"payer_id": payerID}
	path := fmt.Sprintf("/v1/payments/payment/%s/execute", paymentID)
	if err := g.post(ctx, path, payload, &struct{}{}); err != nil {
		return err
	}
	log.Info().Str("paymentId", paymentID).Msg("Payment executed")
	return nil
}

func (g *PayPalGateway) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create payment request: %w", err)
	}
	req.SetBasicAuth(g.clientID, g.clientSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("payment gateway call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(diag)), ErrPaymentRejected)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode payment response: %w", err)
	}
	return nil
}
