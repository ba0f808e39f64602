package subscription

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

const subscriptionColumns = `id, user_id, type, status, start_date, end_date, payment_id, auto_renew,
	created_at, updated_at, cancelled_at`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var s Subscription
	err := row.Scan(&s.ID, &s.UserID, &s.Type, &s.Status, &s.StartDate, &s.EndDate, &s.PaymentID,
		&s.AutoRenew, &s.CreatedAt, &s.UpdatedAt, &s.CancelledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, err
	}
	return s, nil
}

// clearPlanSQL drops the denormalised plan from a user left without an active subscription.
const clearPlanSQL = `
	UPDATE users SET subscription_type = NULL, updated_at = now()
	WHERE id = $1 AND subscription_type IS NOT NULL
	  AND NOT EXISTS (SELECT 1 FROM subscriptions WHERE user_id = $1 AND status = 'active')`

func (r *PostgresRepo) Create(ctx context.Context, s *Subscription) error {
	query := `
	INSERT INTO subscriptions (user_id, type, status, auto_renew)
	VALUES ($1, $2, $3, $4)
	RETURNING ` + subscriptionColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	created, err := scanSubscription(r.db.QueryRow(timeoutCtx, query, s.UserID, string(s.Type), string(s.Status), s.AutoRenew))
	if err != nil {
		return err
	}
	*s = created
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 LIMIT 1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanSubscription(r.db.QueryRow(timeoutCtx, query, id))
}

func (r *PostgresRepo) ActiveForUser(ctx context.Context, userID string) (Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
	WHERE user_id = $1 AND status = 'active'
	ORDER BY end_date DESC LIMIT 1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanSubscription(r.db.QueryRow(timeoutCtx, query, userID))
}

func (r *PostgresRepo) ListByUser(ctx context.Context, userID string) ([]Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY created_at DESC`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Query(timeoutCtx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func (r *PostgresRepo) Activate(ctx context.Context, id string, paymentID *string, start, end time.Time) (Subscription, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return Subscription{}, err
	}
	defer tx.Rollback(timeoutCtx)

	// The user row serialises activations of the same user.
	const lockSQL = `
	SELECT s.user_id, s.type FROM subscriptions s
	JOIN users u ON u.id = s.user_id
	WHERE s.id = $1
	FOR UPDATE OF u`
	var (
		userID  string
		newType plan.Type
	)
	if err := tx.QueryRow(timeoutCtx, lockSQL, id).Scan(&userID, &newType); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, fmt.Errorf("lock user: %w", err)
	}
	if err := r.checkTier(timeoutCtx, tx, userID, id, newType, start); err != nil {
		return Subscription{}, err
	}

	activateSQL := `
	UPDATE subscriptions
	SET status = 'active', start_date = $2, end_date = $3, payment_id = COALESCE($4, payment_id), updated_at = now()
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + subscriptionColumns
	active, err := scanSubscription(tx.QueryRow(timeoutCtx, activateSQL, id, start, end, paymentID))
	if errors.Is(err, ErrNotFound) {
		return Subscription{}, ErrNotPending
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("activate subscription: %w", err)
	}

	const supersedeSQL = `
	UPDATE subscriptions SET status = 'cancelled', cancelled_at = $3, updated_at = now()
	WHERE user_id = $1 AND status = 'active' AND id <> $2`
	if _, err := tx.Exec(timeoutCtx, supersedeSQL, active.UserID, active.ID, start); err != nil {
		return Subscription{}, fmt.Errorf("cancel superseded subscription: %w", err)
	}

	const userSQL = `UPDATE users SET subscription_type = $2, updated_at = now() WHERE id = $1`
	if _, err := tx.Exec(timeoutCtx, userSQL, active.UserID, string(active.Type)); err != nil {
		return Subscription{}, fmt.Errorf("record user plan: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return Subscription{}, err
	}
	return active, nil
}

// checkTier refuses activation while the user holds an unexpired active
// subscription whose tier is not strictly lower than newType.
func (r *PostgresRepo) checkTier(ctx context.Context, tx pgx.Tx, userID, id string, newType plan.Type, at time.Time) error {
	next, err := r.plans.Get(newType)
	if err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}

	rows, err := tx.Query(ctx, `
	SELECT type FROM subscriptions
	WHERE user_id = $1 AND status = 'active' AND id <> $2 AND end_date >= $3`, userID, id, at)
	if err != nil {
		return fmt.Errorf("load active subscriptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t plan.Type
		if err := rows.Scan(&t); err != nil {
			return err
		}
		current, err := r.plans.Get(t)
		if err != nil || current.Tier >= next.Tier {
			return ErrTierNotHigher
		}
	}
	return rows.Err()
}

func (r *PostgresRepo) Cancel(ctx context.Context, id string, at time.Time) (Subscription, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return Subscription{}, err
	}
	defer tx.Rollback(timeoutCtx)

	cancelSQL := `
	UPDATE subscriptions SET status = 'cancelled', cancelled_at = $2, updated_at = now()
	WHERE id = $1 AND (status = 'pending' OR (status = 'active' AND end_date >= $2))
	RETURNING ` + subscriptionColumns
	cancelled, err := scanSubscription(tx.QueryRow(timeoutCtx, cancelSQL, id, at))
	if errors.Is(err, ErrNotFound) {
		return Subscription{}, ErrNotCancellable
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("cancel subscription: %w", err)
	}

	if _, err := tx.Exec(timeoutCtx, clearPlanSQL, cancelled.UserID); err != nil {
		return Subscription{}, fmt.Errorf("clear user plan: %w", err)
	}
	if err := tx.Commit(timeoutCtx); err != nil {
		return Subscription{}, err
	}
	return cancelled, nil
}

func (r *PostgresRepo) ExpireIfOverdue(ctx context.Context, id string, now time.Time) (Subscription, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return Subscription{}, err
	}
	defer tx.Rollback(timeoutCtx)

	expireSQL := `
	UPDATE subscriptions SET status = 'expired', updated_at = now()
	WHERE id = $1 AND status = 'active' AND end_date < $2
	RETURNING ` + subscriptionColumns
	sub, err := scanSubscription(tx.QueryRow(timeoutCtx, expireSQL, id, now))
	if errors.Is(err, ErrNotFound) {
		// Someone else already moved it on.
		return scanSubscription(tx.QueryRow(timeoutCtx,
			`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, id))
	}
	if err != nil {
		return Subscription{}, fmt.Errorf("expire subscription: %w", err)
	}

	if _, err := tx.Exec(timeoutCtx, clearPlanSQL, sub.UserID); err != nil {
		return Subscription{}, fmt.Errorf("clear user plan: %w", err)
	}
	if err := tx.Commit(timeoutCtx); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}

func (r *PostgresRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Begin(timeoutCtx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(timeoutCtx)

	tag, err := tx.Exec(timeoutCtx, `
	UPDATE subscriptions SET status = 'expired', updated_at = now()
	WHERE status = 'active' AND end_date < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire subscriptions: %w", err)
	}

	_, err = tx.Exec(timeoutCtx, `
	UPDATE users u SET subscription_type = NULL, updated_at = now()
	WHERE u.subscription_type IS NOT NULL
	  AND NOT EXISTS (SELECT 1 FROM subscriptions s WHERE s.user_id = u.id AND s.status = 'active')`)
	if err != nil {
		return 0, fmt.Errorf("clear user plans: %w", err)
	}

	if err := tx.Commit(timeoutCtx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
