package rental

//go:generate mockgen -source=ports.go -destination=mock_ports.go -package=rental

import (
	"context"
	"time"
)

type Repository interface {
	// Checkout atomically checks stock and entitlement, decrements stock and
	// records the rental.
	Checkout(ctx context.Context, p CheckoutParams) (Rental, error)
	Return(ctx context.Context, id string, at time.Time) (Rental, error)
	GetByID(ctx context.Context, id string) (Rental, error)
	ListByUser(ctx context.Context, userID string) ([]Rental, error)
}

// StockListener is told when a book's availability changed.
type StockListener interface {
	Invalidate()
}
