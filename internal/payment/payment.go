package payment

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("payment not found")
	ErrDuplicateOrderID = errors.New("order id already exists")
	ErrNotPending       = errors.New("payment is not pending")
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusExpired Status = "expired"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed || s == StatusExpired
}

var supportedCurrencies = map[string]bool{"UAH": true, "USD": true, "EUR": true}

func SupportedCurrency(c string) bool {
	return supportedCurrencies[c]
}

// Payment is a payment intent. It moves from pending to exactly one terminal
// status and is immutable afterwards, except for ConsumedAt on standalone
// book payments.
type Payment struct {
	ID                string     `json:"id"`
	Amount            int64      `json:"amount"` // minor units
	Currency          string     `json:"currency"`
	Status            Status     `json:"status"`
	OrderID           string     `json:"order_id"`
	CustomerEmail     string     `json:"customer_email"`
	Description       string     `json:"description"`
	UserID            *string    `json:"user_id,omitempty"`
	SubscriptionID    *string    `json:"subscription_id,omitempty"`
	BookID            *string    `json:"book_id,omitempty"`
	ProviderInvoiceID *string    `json:"provider_invoice_id,omitempty"`
	PaymentURL        *string    `json:"payment_url,omitempty"`
	TransactionID     *string    `json:"transaction_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	ExpiresAt         time.Time  `json:"expires_at"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	ConsumedAt        *time.Time `json:"consumed_at,omitempty"`
}

// OverdueAt reports whether a pending payment has passed its expiry.
func (p Payment) OverdueAt(now time.Time) bool {
	return p.Status == StatusPending && !now.Before(p.ExpiresAt)
}

// matches reports whether in describes the same payment as p: same payer,
// same amount and the same subscription or book.
func (p Payment) matches(in CreateInput) bool {
	return p.Amount == in.Amount &&
		p.Currency == in.Currency &&
		deref(p.UserID) == in.UserID &&
		deref(p.SubscriptionID) == in.SubscriptionID &&
		deref(p.BookID) == in.BookID
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// MapProviderStatus translates a Monobank invoice status. terminal is false for
// in-flight statuses that must be acknowledged without a transition.
func MapProviderStatus(external string) (status Status, terminal bool, ok bool) {
	switch external {
	case "success":
		return StatusSuccess, true, true
	case "failure", "reversed":
		return StatusFailed, true, true
	case "expired":
		return StatusExpired, true, true
	case "created", "processing", "hold":
		return StatusPending, false, true
	}
	return "", false, false
}

// CreateInput describes a new payment. OrderID is the caller's idempotency key.
type CreateInput struct {
	Amount         int64
	Currency       string
	Description    string
	OrderID        string
	CustomerEmail  string
	UserID         string
	SubscriptionID string
	BookID         string
}

type CallbackResult struct {
	Success bool    `json:"success"`
	Payment Payment `json:"payment"`
}

// Invoice is a hosted payment page created by the provider.
type Invoice struct {
	ID  string
	URL string
}
