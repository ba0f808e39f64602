package rental

import (
	"context"
	"errors"
	"time"

	"stefabooks/internal/apperr"
	"stefabooks/internal/logger"
)

type Config struct {
	Period time.Duration
	Now    func() time.Time
}

type Service struct {
	repo   Repository
	stock  StockListener
	period time.Duration
	now    func() time.Time
}

// NewService builds the rental service. stock may be nil.
func NewService(repo Repository, stock StockListener, cfg Config) *Service {
	if cfg.Period <= 0 {
		cfg.Period = 14 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{repo: repo, stock: stock, period: cfg.Period, now: cfg.Now}
}

// Checkout lends one copy of bookID to userID against their active
// subscription, or failing that an unused paid rental of that book.
func (s *Service) Checkout(ctx context.Context, userID, bookID string) (Rental, error) {
	now := s.now()
	r, err := s.repo.Checkout(ctx, CheckoutParams{UserID: userID, BookID: bookID, Now: now, DueAt: now.Add(s.period)})
	switch {
	case errors.Is(err, ErrBookNotFound):
		return Rental{}, apperr.NotFound("book not found")
	case errors.Is(err, ErrOutOfStock):
		return Rental{}, apperr.OutOfStock("no copies of this book are available")
	case errors.Is(err, ErrCapacityExceeded):
		return Rental{}, apperr.CapacityExceeded("subscription capacity reached and no paid rental for this book")
	case err != nil:
		return Rental{}, apperr.ExternalService("rental store unavailable", err)
	}

	logger.FromContext(ctx).Info("book checked out",
		"rental_id", r.ID, "user_id", userID, "book_id", bookID, "due_at", r.DueAt)
	s.stockChanged()
	return r.withOverdue(now), nil
}

// ReturnBook closes an active rental and puts the copy back in stock.
func (s *Service) ReturnBook(ctx context.Context, id string) (Rental, error) {
	r, err := s.repo.Return(ctx, id, s.now())
	switch {
	case errors.Is(err, ErrNotFound):
		return Rental{}, apperr.NotFound("rental not found")
	case errors.Is(err, ErrNotActive):
		return Rental{}, apperr.InvalidState("rental is already returned")
	case err != nil:
		return Rental{}, apperr.ExternalService("rental store unavailable", err)
	}

	logger.FromContext(ctx).Info("book returned", "rental_id", r.ID, "user_id", r.UserID, "book_id", r.BookID)
	s.stockChanged()
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (Rental, error) {
	r, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Rental{}, apperr.NotFound("rental not found")
	}
	if err != nil {
		return Rental{}, apperr.ExternalService("rental store unavailable", err)
	}
	return r.withOverdue(s.now()), nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Rental, error) {
	rentals, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.ExternalService("rental store unavailable", err)
	}
	now := s.now()
	for i := range rentals {
		rentals[i] = rentals[i].withOverdue(now)
	}
	return rentals, nil
}

func (s *Service) stockChanged() {
	if s.stock != nil {
		s.stock.Invalidate()
	}
}
