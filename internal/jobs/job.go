package jobs

import (
	"time"
)

const (
	StatusRunning   = "RUNNING"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

const JobExpire = "expire"

type Run struct {
	ID                   int64      `json:"id"`
	Job                  string     `json:"job"`
	StartedAt            time.Time  `json:"started_at"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
	Status               string     `json:"status"` // RUNNING, COMPLETED, FAILED
	SubscriptionsExpired int64      `json:"subscriptions_expired"`
	PaymentsExpired      int64      `json:"payments_expired"`
	Error                string     `json:"error,omitempty"`
}
