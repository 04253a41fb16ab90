package paystack

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"tixhub/internal/services/bank"
)

const (
	SignatureHeader    = "x-paystack-signature"
	EventChargeSuccess = "charge.success"
)

type WebhookEvent struct {
	Event string               `json:"event"`
	Data  bank.TransactionData `json:"data"`
}

// TicketID returns the ticket the charge was initialized for, if any.
func (w *WebhookEvent) TicketID() string {
	s, _ := w.Data.Metadata["ticket_id"].(string)
	return s
}

func (w *WebhookEvent) EventID() string {
	s, _ := w.Data.Metadata["event_id"].(string)
	return s
}

// VerifySignature checks the HMAC-SHA512 signature Paystack puts on webhook bodies.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// ParseWebhook authenticates and decodes a webhook delivery.
func ParseWebhook(secret string, body []byte, signature string) (*WebhookEvent, error) {
	if !VerifySignature(secret, body, signature) {
		return nil, ErrInvalidSignature
	}
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("parseWebhook: json.Unmarshal: %w", err)
	}
	return &ev, nil
}
