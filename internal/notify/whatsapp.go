// Package notify sends guests their album retrieval links over the WhatsApp
// Graph API.
//
// Sends are fire-and-forget per recipient: one guest's failure never aborts
// a batch. Idempotence across runs is the operator's responsibility; within
// a single run a seen-set keyed by (event, phone) prevents duplicate sends.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog/log"
)

// Sender delivers one text message to one phone number.
type Sender interface {
	Send(ctx context.Context, phone, text string) error
}

// WhatsAppClient sends messages through the WhatsApp Business Graph API.
type WhatsAppClient struct {
	httpClient  *retryablehttp.Client
	apiURL      string
	accessToken string
}

var _ Sender = (*WhatsAppClient)(nil)

// NewWhatsAppClient creates a messaging client. Transient 5xx responses are
// retried a bounded number of times with backoff.
func NewWhatsAppClient(apiURL, accessToken string) *WhatsAppClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 15 * time.Second
	rc.Logger = nil // zerolog handles logging

	return &WhatsAppClient{
		httpClient:  rc,
		apiURL:      apiURL,
		accessToken: accessToken,
	}
}

// message is the Graph API text-message payload.
type message struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             messageText `json:"text"`
}

type messageText struct {
	Body string `json:"body"`
}

// Send posts one text message. phone is E.164-ish, digits with an optional
// leading plus.
func (c *WhatsAppClient) Send(ctx context.Context, phone, text string) error {
	payload, err := json.Marshal(message{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text:             messageText{Body: text},
	})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", phone, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		diag, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("send message to %s: status %d: %s", phone, resp.StatusCode, strings.TrimSpace(string(diag)))
	}

	log.Debug().Str("phone", phone).Msg("Message sent")
	return nil
}
