package user

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"stefabooks/internal/access"
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

const userColumns = `id, email, name, role, status, subscription_type, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.Status, &u.SubscriptionType, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// Create inserts u, or refreshes email and name when the id already exists.
// The id comes from the auth provider.
func (r *PostgresRepo) Create(ctx context.Context, u *User) error {
	const query = `
	INSERT INTO users (id, email, name, role, status)
	VALUES ($1, $2, $3, COALESCE(NULLIF($4, ''), 'user'), COALESCE(NULLIF($5, ''), 'active'))
	ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, name = EXCLUDED.name, updated_at = now()
	RETURNING ` + userColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	created, err := scanUser(r.db.QueryRow(timeoutCtx, query, u.ID, u.Email, u.Name, string(u.Role), string(u.Status)))
	if err != nil {
		return err
	}
	*u = created
	return nil
}

func (r *PostgresRepo) GetByID(ctx context.Context, id string) (User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1 LIMIT 1`
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(r.db.QueryRow(timeoutCtx, query, id))
}

func (r *PostgresRepo) UpdateRole(ctx context.Context, id string, role access.Role) (User, error) {
	query := `UPDATE users SET role = $2, updated_at = now() WHERE id = $1 RETURNING ` + userColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(r.db.QueryRow(timeoutCtx, query, id, string(role)))
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, status access.Status) (User, error) {
	query := `UPDATE users SET status = $2, updated_at = now() WHERE id = $1 RETURNING ` + userColumns
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	return scanUser(r.db.QueryRow(timeoutCtx, query, id, string(status)))
}
