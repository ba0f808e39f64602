package rental

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stefabooks/internal/plan"
)

type PostgresRepo struct {
	db      *pgxpool.Pool
	plans   *plan.Catalog
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, plans *plan.Catalog, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, plans: plans, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

const rentalColumns = `id, user_id, book_id, status, checked_out_at, due_at, returned_at, subscription_id, payment_id`

func scanRental(row pgx.Row) (Rental, error) {
	var rt Rental
	err := row.Scan(&rt.ID, &rt.UserID, &rt.BookID, &rt.Status, &rt.CheckedOutAt, &rt.DueAt,
		&rt.ReturnedAt, &rt.SubscriptionID, &rt.PaymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Rental{}, ErrNotFound
		}
		return Rental{}, err
	}
	return rt, nil
}

func (r *PostgresRepo) Checkout(ctx context.Context, p CheckoutParams) (Rental, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return Rental{}, err
	}
	defer tx.Rollback(timeoutCtx)

	var available int
	err = tx.QueryRow(timeoutCtx, `SELECT qty_available FROM books WHERE id = $1`, p.BookID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rental{}, ErrBookNotFound
	}
	if err != nil {
		return Rental{}, fmt.Errorf("read stock: %w", err)
	}
	if available <= 0 {
		return Rental{}, ErrOutOfStock
	}

	subscriptionID, paymentID, err := r.claimEntitlement(timeoutCtx, tx, p)
	if err != nil {
		return Rental{}, err
	}

	tag, err := tx.Exec(timeoutCtx, `
	UPDATE books SET qty_available = qty_available - 1, updated_at = now()
	WHERE id = $1 AND qty_available > 0`, p.BookID)
	if err != nil {
		return Rental{}, fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Rental{}, ErrOutOfStock
	}

	insertSQL := `
	INSERT INTO rentals (user_id, book_id, status, checked_out_at, due_at, subscription_id, payment_id)
	VALUES ($1, $2, 'active', $3, $4, $5, $6)
	RETURNING ` + rentalColumns
	rt, err := scanRental(tx.QueryRow(timeoutCtx, insertSQL, p.UserID, p.BookID, p.Now, p.DueAt, subscriptionID, paymentID))
	if err != nil {
		return Rental{}, fmt.Errorf("insert rental: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return Rental{}, err
	}
	return rt, nil
}

// claimEntitlement picks what pays for the checkout: spare capacity on the
// user's active subscription, or an unconsumed paid rental of the book.
// The subscription row lock serialises concurrent checkouts of one user.
func (r *PostgresRepo) claimEntitlement(ctx context.Context, tx pgx.Tx, p CheckoutParams) (subscriptionID, paymentID *string, err error) {
	var (
		subID    string
		planType plan.Type
	)
	err = tx.QueryRow(ctx, `
	SELECT id, type FROM subscriptions
	WHERE user_id = $1 AND status = 'active' AND end_date >= $2
	ORDER BY end_date DESC LIMIT 1
	FOR UPDATE`, p.UserID, p.Now).Scan(&subID, &planType)
	switch {
	case err == nil:
		capacity := 0
		if pl, perr := r.plans.Get(planType); perr == nil {
			capacity = pl.MaxConcurrentBooks
		}
		var inUse int
		err = tx.QueryRow(ctx, `
		SELECT count(*) FROM rentals
		WHERE user_id = $1 AND status = 'active' AND payment_id IS NULL`, p.UserID).Scan(&inUse)
		if err != nil {
			return nil, nil, fmt.Errorf("count active rentals: %w", err)
		}
		if inUse < capacity {
			return &subID, nil, nil
		}
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, nil, fmt.Errorf("lock subscription: %w", err)
	}

	var payID string
	err = tx.QueryRow(ctx, `
	UPDATE payments SET consumed_at = $3, updated_at = now()
	WHERE id = (
		SELECT id FROM payments
		WHERE user_id = $1 AND book_id = $2 AND status = 'success' AND consumed_at IS NULL
		ORDER BY paid_at
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	)
	RETURNING id`, p.UserID, p.BookID, p.Now).Scan(&payID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrCapacityExceeded
	}
	if err != nil {
		return nil, nil, fmt.Errorf("claim paid rental: %w", err)
	}
	return nil, &payID, nil
}

func (r *PostgresRepo) Return(ctx context.Context, id string, at time.Time) (Rental, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return Rental{}, err
	}
	defer tx.Rollback(timeoutCtx)

	returnSQL := `
	UPDATE rentals SET status = 'returned', returned_at = $2
	WHERE id = $1 AND status = 'active'
	RETURNING ` + rentalColumns
	rt, err := scanRental(tx.QueryRow(timeoutCtx, returnSQL, id, at))
	if errors.Is(err, ErrNotFound) {
		var exists bool
		if err := tx.QueryRow(timeoutCtx, `SELECT EXISTS (SELECT 1 FROM rentals WHERE id = $1)`, id).Scan(&exists); err != nil {
			return Rental{}, err
		}
		if exists {
			return Rental{}, ErrNotActive
		}
		return Rental{}, ErrNotFound
	}
	if err != nil {
		return Rental{}, fmt.Errorf("return rental: %w", err)
	}

	_, err = tx.Exec(timeoutCtx, `
	UPDATE books SET qty_available = qty_available + 1, updated_at = now()
	WHERE id = $1 AND qty_available < qty_total`, rt.BookID)
	if err != nil {
		return Rental{}, fmt.Errorf("increment stock: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return Rental{}, err
	}
	return rt, nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE id = $1 LIMIT 1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanRental(r.db.QueryRow(timeoutCtx, query, id))
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Rental, error) {
	query := `SELECT ` + rentalColumns + ` FROM rentals WHERE user_id = $1 ORDER BY checked_out_at DESC`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(timeoutCtx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rentals := make([]Rental, 0)
	for rows.Next() {
		rt, err := scanRental(rows)
		if err != nil {
			return nil, err
		}
		rentals = append(rentals, rt)
	}
	return rentals, rows.Err()
}
