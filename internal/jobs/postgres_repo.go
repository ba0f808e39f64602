package jobs

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	CreateRun(ctx context.Context, run *Run) (int64, error)
	UpdateRun(ctx context.Context, run *Run) error
}

type PostgresRepo struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewPostgresRepo(db *pgxpool.Pool, timeout time.Duration) *PostgresRepo {
	return &PostgresRepo{db: db, timeout: timeout}
}

func (r *PostgresRepo) CreateRun(ctx context.Context, run *Run) (int64, error) {
	const sql = `
		INSERT INTO job_runs (job, status, started_at)
		VALUES ($1, $2, $3)
		RETURNING id`

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	var id int64
	err := r.db.QueryRow(timeoutCtx, sql, run.Job, run.Status, run.StartedAt).Scan(&id)
	return id, err
}

func (r *PostgresRepo) UpdateRun(ctx context.Context, run *Run) error {
	const sql = `
		UPDATE job_runs SET
			finished_at = $1,
			status = $2,
			subscriptions_expired = $3,
			payments_expired = $4,
			error = NULLIF($5, '')
		WHERE id = $6`

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	_, err := r.db.Exec(timeoutCtx, sql, run.FinishedAt, run.Status, run.SubscriptionsExpired, run.PaymentsExpired, run.Error, run.ID)
	return err
}
