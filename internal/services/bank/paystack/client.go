package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tixhub/internal/services/bank"
	"tixhub/monitoring"
	"tixhub/utils"
)

const DefaultBaseURL = "https://api.paystack.co"

type Config struct {
	SecretKey string
	BaseURL   string
	Timeout   time.Duration
}

type Client struct {
	// baseURL is the base url of the Paystack API.
	baseURL string

	// secretKey authenticates every call as a Bearer token.
	secretKey string

	// breaker fails fast while Paystack is unreachable.
	breaker *utils.CircuitBreaker

	// hc is the http client.
	hc *http.Client
}

var _ bank.Gateway = (*Client)(nil)

// New creates a Paystack client. The breaker may be nil.
func New(c Config, breaker *utils.CircuitBreaker) (*Client, error) {
	if strings.TrimSpace(c.SecretKey) == "" {
		return nil, errors.New("paystack: secret key is required")
	}
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("paystack: base url: %w", err)
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if breaker == nil {
		breaker = utils.NewCircuitBreaker("paystack")
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: c.SecretKey,
		breaker:   breaker,
		hc:        &http.Client{Timeout: timeout},
	}, nil
}

// InitializeTransaction starts a hosted checkout and returns the url the buyer must visit.
func (c *Client) InitializeTransaction(ctx context.Context, in bank.InitializeRequest) (auth *bank.Authorization, err error) {
	defer func(start time.Time) { monitoring.TrackGatewayCall("initialize", start, err) }(time.Now())

	body, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("initializeTransaction: json.Marshal: %w", err)
	}

	var reply struct {
		Status  bool               `json:"status"`
		Message string             `json:"message"`
		Data    bank.Authorization `json:"data"`
	}
	code, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &reply)
	if err != nil {
		return nil, fmt.Errorf("initializeTransaction: %w", err)
	}
	if code != http.StatusOK || !reply.Status {
		return nil, fmt.Errorf("initializeTransaction: %w: status %d: %s", bank.ErrGateway, code, reply.Message)
	}
	if reply.Data.AuthorizationURL == "" || reply.Data.Reference == "" {
		return nil, fmt.Errorf("initializeTransaction: %w: empty authorization", bank.ErrGateway)
	}

	return &reply.Data, nil
}

// VerifyTransaction fetches the authoritative state of a transaction. An unknown
// reference is a definitive answer, not a gateway failure.
func (c *Client) VerifyTransaction(ctx context.Context, reference string) (v *bank.Verification, err error) {
	defer func(start time.Time) { monitoring.TrackGatewayCall("verify", start, err) }(time.Now())

	if strings.TrimSpace(reference) == "" {
		return nil, errors.New("verifyTransaction: empty reference")
	}

	var reply bank.Verification
	code, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &reply)
	if err != nil {
		return nil, fmt.Errorf("verifyTransaction: %w", err)
	}

	switch {
	case code == http.StatusOK:
		return &reply, nil
	case code == http.StatusBadRequest || code == http.StatusNotFound:
		reply.Status = false
		return &reply, nil
	default:
		return nil, fmt.Errorf("verifyTransaction: %w: status %d: %s", bank.ErrGateway, code, reply.Message)
	}
}

// do sends the request through the breaker. Server errors trip the breaker,
// client errors are returned with their status code for the caller to judge.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) (int, error) {
	var code int

	err := c.breaker.Execute(ctx, func() error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.secretKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			return fmt.Errorf("%w: http.Do: %v", bank.ErrGateway, err)
		}
		defer resp.Body.Close()

		code = resp.StatusCode
		if code >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d", bank.ErrGateway, code)
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
			return fmt.Errorf("%w: json.Decode: %v", bank.ErrGateway, err)
		}
		return nil
	})
	if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
		return 0, fmt.Errorf("%w: %v", bank.ErrGateway, err)
	}
	return code, err
}

var ErrInvalidSignature = errors.New("paystack: invalid webhook signature")
