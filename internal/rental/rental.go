package rental

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("rental not found")
	ErrBookNotFound     = errors.New("book not found")
	ErrOutOfStock       = errors.New("book out of stock")
	ErrCapacityExceeded = errors.New("no rental entitlement left")
	ErrNotActive        = errors.New("rental is not active")
)

type Status string

const (
	StatusActive   Status = "active"
	StatusReturned Status = "returned"
)

// Rental is one physical copy checked out to a user. Overdue is derived at
// read time and never stored.
type Rental struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	BookID         string     `json:"book_id"`
	Status         Status     `json:"status"`
	CheckedOutAt   time.Time  `json:"checked_out_at"`
	DueAt          time.Time  `json:"due_at"`
	ReturnedAt     *time.Time `json:"returned_at,omitempty"`
	SubscriptionID *string    `json:"subscription_id,omitempty"`
	PaymentID      *string    `json:"payment_id,omitempty"`
	Overdue        bool       `json:"overdue"`
}

func (r Rental) withOverdue(now time.Time) Rental {
	r.Overdue = r.Status == StatusActive && r.DueAt.Before(now)
	return r
}

// CheckoutParams carries what the store needs to decide and record a checkout.
type CheckoutParams struct {
	UserID string
	BookID string
	Now    time.Time
	DueAt  time.Time
}
