package bank

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrGateway wraps every failure to reach the provider or to understand its reply.
// It never means the payment itself was declined.
var ErrGateway = errors.New("bank: gateway unavailable")

// SuccessStatus is the transaction status reported for a settled charge.
const SuccessStatus = "success"

// InitializeRequest starts a hosted checkout.
type InitializeRequest struct {
	Email       string            `json:"email"`
	AmountMinor int64             `json:"amount"`
	CallbackURL string            `json:"callback_url"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Authorization is the provider's answer to an initialize call.
type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type Customer struct {
	Email string `json:"email"`
}

type TransactionData struct {
	Status          string     `json:"status"`
	Reference       string     `json:"reference"`
	Amount          int64      `json:"amount"`
	Currency        string     `json:"currency"`
	GatewayResponse string     `json:"gateway_response"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	Customer        Customer   `json:"customer"`
	Metadata        Metadata   `json:"metadata,omitempty"`
}

// Metadata echoes what was sent on initialize. Paystack returns an empty
// string instead of an object when nothing was sent.
type Metadata map[string]any

func (m *Metadata) UnmarshalJSON(b []byte) error {
	if len(b) == 0 || b[0] != '{' {
		*m = nil
		return nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// Verification is the provider's answer to a verify call.
type Verification struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    TransactionData `json:"data"`
}

// Successful reports whether the provider confirmed the charge settled.
func (v *Verification) Successful() bool {
	return v != nil && v.Status && v.Data.Status == SuccessStatus
}

// MetadataString returns a metadata value sent with the initialize call.
func (v *Verification) MetadataString(key string) string {
	if v == nil || v.Data.Metadata == nil {
		return ""
	}
	s, _ := v.Data.Metadata[key].(string)
	return s
}

// Gateway is a hosted checkout payment provider.
type Gateway interface {
	InitializeTransaction(ctx context.Context, req InitializeRequest) (*Authorization, error)
	VerifyTransaction(ctx context.Context, reference string) (*Verification, error)
}

// MinorUnits converts a major currency amount to the provider's integer unit (kobo, cents).
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
