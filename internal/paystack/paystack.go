package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/dbs-storefront/internal/telemetry"
)

// SignatureHeader carries hex(HMAC-SHA512(secret, raw body)).
const SignatureHeader = "x-paystack-signature"

var (
	ErrNotConfigured = errors.New("paystack secret key not configured")
	ErrNotSettled    = errors.New("paystack transaction not successful")
)

// Sign returns the signature Paystack would send for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares in constant time over the exact bytes received.
func VerifySignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	want := Sign(secret, body)
	return hmac.Equal([]byte(want), []byte(header))
}

// APIError is a non-2xx answer from the Paystack API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack: %d %s", e.StatusCode, e.Message)
}

type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

func NewClient(baseURL, secret string) *Client {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    telemetry.Client(&http.Client{Timeout: 15 * time.Second}),
	}
}

type InitializeRequest struct {
	Email       string            `json:"email"`
	AmountKobo  int64             `json:"amount"`
	Reference   string            `json:"reference,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type Authorization struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the subset of /transaction/verify we read.
type Transaction struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	PaidAt    string `json:"paid_at"`
	Channel   string `json:"channel"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.secret == "" {
		return ErrNotConfigured
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "unreadable response"}
	}
	if resp.StatusCode/100 != 2 || !env.Status {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// Initialize opens a hosted checkout and returns where to send the shopper.
func (c *Client) Initialize(ctx context.Context, in InitializeRequest) (Authorization, error) {
	var a Authorization
	err := c.do(ctx, http.MethodPost, "/transaction/initialize", in, &a)
	return a, err
}

func (c *Client) Verify(ctx context.Context, reference string) (Transaction, error) {
	var t Transaction
	err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &t)
	return t, err
}

// Confirm succeeds only when Paystack reports the reference as a successful charge.
func (c *Client) Confirm(ctx context.Context, reference string) error {
	t, err := c.Verify(ctx, reference)
	if err != nil {
		return err
	}
	if t.Status != "success" {
		return fmt.Errorf("%w: %s is %q", ErrNotSettled, reference, t.Status)
	}
	return nil
}
