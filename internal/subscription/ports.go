package subscription

//go:generate mockgen -source=ports.go -destination=mock_ports.go -package=subscription

import (
	"context"
	"time"

	"stefabooks/internal/payment"
)

type Repository interface {
	Create(ctx context.Context, s *Subscription) error
	GetByID(ctx context.Context, id string) (Subscription, error)
	ActiveForUser(ctx context.Context, userID string) (Subscription, error)
	ListByUser(ctx context.Context, userID string) ([]Subscription, error)
	// Activate moves a pending subscription to active, cancels any other active
	// subscription of the user and records the plan on the user, atomically.
	Activate(ctx context.Context, id string, paymentID *string, start, end time.Time) (Subscription, error)
	Cancel(ctx context.Context, id string, at time.Time) (Subscription, error)
	// ExpireIfOverdue expires the subscription when it is active past its end
	// date and returns its current state either way.
	ExpireIfOverdue(ctx context.Context, id string, now time.Time) (Subscription, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type PaymentCreator interface {
	CreatePayment(ctx context.Context, in payment.CreateInput) (payment.Payment, error)
}

type Notifier interface {
	SubscriptionActivated(ctx context.Context, a Activation) error
}
