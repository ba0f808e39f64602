package monobank

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidSignature = errors.New("monobank: invalid webhook signature")
	ErrKeyUnavailable   = errors.New("monobank: public key unavailable")
)

// WebhookEvent is the invoice status notification body.
type WebhookEvent struct {
	InvoiceID     string    `json:"invoiceId"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failureReason,omitempty"`
	Amount        int64     `json:"amount"`
	Ccy           int       `json:"ccy"`
	FinalAmount   int64     `json:"finalAmount,omitempty"`
	Reference     string    `json:"reference"`
	CreatedDate   time.Time `json:"createdDate"`
	ModifiedDate  time.Time `json:"modifiedDate"`
	PaymentInfo   struct {
		Rrn       string `json:"rrn,omitempty"`
		TranID    string `json:"tranId,omitempty"`
		MaskedPan string `json:"maskedPan,omitempty"`
	} `json:"paymentInfo"`
}

// TransactionID prefers the acquirer transaction id and falls back to the invoice id.
func (e WebhookEvent) TransactionID() string {
	if e.PaymentInfo.TranID != "" {
		return e.PaymentInfo.TranID
	}
	return e.InvoiceID
}

func ParseWebhook(body []byte) (WebhookEvent, error) {
	var ev WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return WebhookEvent{}, fmt.Errorf("monobank: decode webhook: %w", err)
	}
	if ev.InvoiceID == "" || ev.Status == "" {
		return WebhookEvent{}, errors.New("monobank: webhook missing invoiceId or status")
	}
	return ev, nil
}

// VerifyWebhook checks the X-Sign header value against the raw body. The
// signature is a base64 ASN.1 ECDSA signature over SHA-256 of the body. When
// the cached key fails, the key may be refetched in case it was rotated, at
// most once per KeyRefreshInterval.
func (c *Client) VerifyWebhook(ctx context.Context, body []byte, xSign string) error {
	if xSign == "" {
		return ErrInvalidSignature
	}
	sig, err := base64.StdEncoding.DecodeString(xSign)
	if err != nil {
		return ErrInvalidSignature
	}
	digest := sha256.Sum256(body)

	keyB64 := c.cachedKey()
	if keyB64 != "" {
		key, err := parsePublicKey(keyB64)
		if err != nil {
			return err
		}
		if ecdsa.VerifyASN1(key, digest[:], sig) {
			return nil
		}
	}

	fresh, err := c.refreshKey(ctx)
	if err != nil {
		return err
	}
	if fresh == "" {
		return ErrKeyUnavailable
	}
	if fresh == keyB64 {
		return ErrInvalidSignature
	}
	key, err := parsePublicKey(fresh)
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(key, digest[:], sig) {
		return ErrInvalidSignature
	}
	return nil
}

// refreshKey returns the public key, fetching it when the last fetch is older
// than keyRefresh. Concurrent callers share one fetch.
func (c *Client) refreshKey(ctx context.Context) (string, error) {
	v, err, _ := c.keyGroup.Do("pubkey", func() (interface{}, error) {
		c.keyMu.Lock()
		if !c.keyFetchedAt.IsZero() && c.now().Sub(c.keyFetchedAt) < c.keyRefresh {
			key := c.pubKeyB64
			c.keyMu.Unlock()
			return key, nil
		}
		c.keyFetchedAt = c.now()
		c.keyMu.Unlock()

		fresh, err := c.FetchPubKey(ctx)
		if err != nil {
			return "", fmt.Errorf("monobank: fetch public key: %w", err)
		}
		if _, err := parsePublicKey(fresh); err != nil {
			return "", err
		}
		c.keyMu.Lock()
		c.pubKeyB64 = fresh
		c.keyMu.Unlock()
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) cachedKey() string {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.pubKeyB64
}

func parsePublicKey(keyB64 string) (*ecdsa.PublicKey, error) {
	pemBytes, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("monobank: decode public key: %w", err)
	}
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("monobank: public key is not PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("monobank: parse public key: %w", err)
	}
	key, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("monobank: public key is not ECDSA")
	}
	return key, nil
}
