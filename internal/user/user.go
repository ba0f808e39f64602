package user

import (
	"errors"
	"time"

	"stefabooks/internal/access"
)

var ErrNotFound = errors.New("user not found")

type User struct {
	ID               string        `json:"id"`
	Email            string        `json:"email"`
	Name             string        `json:"name"`
	Role             access.Role   `json:"role"`
	Status           access.Status `json:"status"`
	SubscriptionType *string       `json:"subscription_type"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (u User) Subject() access.Subject {
	return access.Subject{UserID: u.ID, Role: u.Role, Status: u.Status}
}
