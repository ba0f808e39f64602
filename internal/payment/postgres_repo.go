package payment

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

const paymentColumns = `id, amount, currency, status, order_id, customer_email, description,
	user_id, subscription_id, book_id, provider_invoice_id, payment_url, transaction_id,
	created_at, updated_at, expires_at, paid_at, consumed_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.Amount, &p.Currency, &p.Status, &p.OrderID, &p.CustomerEmail, &p.Description,
		&p.UserID, &p.SubscriptionID, &p.BookID, &p.ProviderInvoiceID, &p.PaymentURL, &p.TransactionID,
		&p.CreatedAt, &p.UpdatedAt, &p.ExpiresAt, &p.PaidAt, &p.ConsumedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PostgresRepo) Create(ctx context.Context, p *Payment) error {
	query := `
	INSERT INTO payments (amount, currency, status, order_id, customer_email, description,
	                      user_id, subscription_id, book_id, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	RETURNING ` + paymentColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	created, err := scanPayment(r.db.QueryRow(timeoutCtx, query,
		p.Amount, p.Currency, string(p.Status), p.OrderID, p.CustomerEmail, p.Description,
		p.UserID, p.SubscriptionID, p.BookID, p.ExpiresAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateOrderID
		}
		return err
	}
	*p = created
	return nil
}

func (r *PostgresRepo) getBy(ctx context.Context, column, value string) (Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` + column + ` = $1 LIMIT 1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanPayment(r.db.QueryRow(timeoutCtx, query, value))
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (Payment, error) {
	return r.getBy(ctx, "id", id)
}

func (r *PostgresRepo) GetByOrderID(ctx context.Context, orderID string) (Payment, error) {
	return r.getBy(ctx, "order_id", orderID)
}

func (r *PostgresRepo) GetByInvoiceID(ctx context.Context, invoiceID string) (Payment, error) {
	return r.getBy(ctx, "provider_invoice_id", invoiceID)
}

func (r *PostgresRepo) SetInvoice(ctx context.Context, id, invoiceID, paymentURL string) (bool, error) {
	const query = `
	UPDATE payments
	SET provider_invoice_id = $2, payment_url = $3, updated_at = now()
	WHERE id = $1 AND provider_invoice_id IS NULL`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, query, id, invoiceID, paymentURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepo) Transition(ctx context.Context, id string, to Status, transactionID string, at time.Time) (Payment, error) {
	query := `
	UPDATE payments
	SET status = $2,
	    transaction_id = COALESCE(NULLIF($3, ''), transaction_id),
	    paid_at = CASE WHEN $2 = 'success' THEN $4 ELSE paid_at END,
	    updated_at = now()
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + paymentColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	p, err := scanPayment(r.db.QueryRow(timeoutCtx, query, id, string(to), transactionID, at))
	if errors.Is(err, ErrNotFound) {
		// Either the id is unknown or another transition already happened.
		if _, gerr := r.GetByID(ctx, id); gerr != nil {
			return Payment{}, gerr
		}
		return Payment{}, ErrNotPending
	}
	return p, err
}

func (r *PostgresRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	const query = `
	UPDATE payments SET status = 'expired', updated_at = now()
	WHERE status = 'pending' AND expires_at <= $1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	tag, err := r.db.Exec(timeoutCtx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
