package subscription

import (
	"errors"
	"time"

	"stefabooks/internal/payment"
	"stefabooks/internal/plan"
)

var (
	ErrNotFound       = errors.New("subscription not found")
	ErrNotPending     = errors.New("subscription is not pending")
	ErrNotCancellable = errors.New("subscription is not cancellable")
	// ErrTierNotHigher is returned when activation would replace an active
	// subscription of the same or a higher tier.
	ErrTierNotHigher  = errors.New("an active subscription of the same or a higher tier exists")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Subscription moves pending -> active -> {expired, cancelled}. A pending
// subscription may also be cancelled before it is paid.
type Subscription struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Type        plan.Type  `json:"type"`
	Status      Status     `json:"status"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	PaymentID   *string    `json:"payment_id,omitempty"`
	AutoRenew   bool       `json:"auto_renew"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// OverdueAt reports whether an active subscription has passed its end date.
func (s Subscription) OverdueAt(now time.Time) bool {
	return s.Status == StatusActive && s.EndDate != nil && s.EndDate.Before(now)
}

// Activation is what a notifier learns about a newly active subscription.
type Activation struct {
	UserID         string
	SubscriptionID string
	Plan           plan.Plan
	EndDate        time.Time
}

type CancelResult struct {
	Success      bool         `json:"success"`
	Subscription Subscription `json:"subscription"`
}

type CheckoutResult struct {
	Subscription Subscription    `json:"subscription"`
	Payment      payment.Payment `json:"payment"`
}
