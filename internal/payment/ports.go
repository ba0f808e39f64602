package payment

//go:generate mockgen -source=ports.go -destination=mock_ports.go -package=payment

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (Payment, error)
	GetByOrderID(ctx context.Context, orderID string) (Payment, error)
	GetByInvoiceID(ctx context.Context, invoiceID string) (Payment, error)
	// SetInvoice stores the provider invoice unless one is already attached.
	SetInvoice(ctx context.Context, id, invoiceID, paymentURL string) (bool, error)
	// Transition moves a pending payment to a terminal status. It returns
	// ErrNotPending when another transition won.
	Transition(ctx context.Context, id string, to Status, transactionID string, at time.Time) (Payment, error)
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// Provider creates hosted payment pages.
type Provider interface {
	CreateInvoice(ctx context.Context, p Payment) (Invoice, error)
}

// SubscriptionActivator activates the subscription a successful payment pays for.
// It must be idempotent for an already-active subscription paid by paymentID.
type SubscriptionActivator interface {
	ActivateFromPayment(ctx context.Context, subscriptionID, paymentID string) error
}
