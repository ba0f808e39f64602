// Package monobank is a client for the Monobank Acquiring API.
package monobank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

type Config struct {
	Token      string
	BaseURL    string
	PublicKey  string // base64-encoded PEM, optional; fetched on demand when empty
	RPS        int
	MaxRetries int
	// KeyRefreshInterval bounds how often a failed verification may refetch
	// the public key. Defaults to one minute.
	KeyRefreshInterval time.Duration
}

type Client struct {
	httpClient *http.Client
	token      string
	baseURL    string
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration

	keyMu        sync.RWMutex
	pubKeyB64    string
	keyFetchedAt time.Time
	keyRefresh   time.Duration
	keyGroup     singleflight.Group
	now          func() time.Time
}

func NewClient(cfg Config) *Client {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	keyRefresh := cfg.KeyRefreshInterval
	if keyRefresh <= 0 {
		keyRefresh = time.Minute
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.monobank.ua"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		token:      cfg.Token,
		baseURL:    baseURL,
		limiter:    rate.NewLimiter(rate.Every(time.Second/time.Duration(rps)), 1),
		maxRetries: cfg.MaxRetries,
		backoff:    500 * time.Millisecond,
		pubKeyB64:  cfg.PublicKey,
		keyRefresh: keyRefresh,
		now:        time.Now,
	}
}

// APIError is a non-retryable error response from the API.
type APIError struct {
	StatusCode int
	ErrCode    string `json:"errCode"`
	ErrText    string `json:"errText"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("monobank: status %d: %s %s", e.StatusCode, e.ErrCode, e.ErrText)
}

var currencyCodes = map[string]int{
	"UAH": 980,
	"USD": 840,
	"EUR": 978,
}

// CurrencyCode returns the ISO 4217 numeric code for an alphabetic currency.
func CurrencyCode(currency string) (int, bool) {
	c, ok := currencyCodes[currency]
	return c, ok
}

type MerchantPaymInfo struct {
	Reference   string `json:"reference"`
	Destination string `json:"destination"`
}

type InvoiceRequest struct {
	Amount           int64            `json:"amount"`
	Ccy              int              `json:"ccy"`
	MerchantPaymInfo MerchantPaymInfo `json:"merchantPaymInfo"`
	RedirectURL      string           `json:"redirectUrl,omitempty"`
	WebHookURL       string           `json:"webHookUrl,omitempty"`
	Validity         int64            `json:"validity,omitempty"` // seconds
}

type InvoiceResponse struct {
	InvoiceID string `json:"invoiceId"`
	PageURL   string `json:"pageUrl"`
}

// CreateInvoice creates a hosted payment page for req.
func (c *Client) CreateInvoice(ctx context.Context, req InvoiceRequest) (InvoiceResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return InvoiceResponse{}, err
	}
	var res InvoiceResponse
	if err := c.do(ctx, http.MethodPost, "/api/merchant/invoice/create", body, &res); err != nil {
		return InvoiceResponse{}, err
	}
	if res.InvoiceID == "" || res.PageURL == "" {
		return InvoiceResponse{}, errors.New("monobank: empty invoice response")
	}
	return res, nil
}

// FetchPubKey returns the base64-encoded PEM key used to sign webhooks.
func (c *Client) FetchPubKey(ctx context.Context) (string, error) {
	var res struct {
		Key string `json:"key"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/merchant/pubkey", nil, &res); err != nil {
		return "", err
	}
	if res.Key == "" {
		return "", errors.New("monobank: empty public key")
	}
	return res.Key, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, target interface{}) error {
	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			// Backoff: base, 2*base, 4*base...
			backoff := c.backoff * time.Duration(1<<uint(i-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return err
		}
		req.Header.Set("X-Token", c.token)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("monobank: unexpected status code: %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			apiErr := &APIError{StatusCode: resp.StatusCode}
			_ = json.Unmarshal(raw, apiErr)
			return apiErr
		}

		return json.Unmarshal(raw, target)
	}
	return fmt.Errorf("after %d retries: %w", c.maxRetries, lastErr)
}
