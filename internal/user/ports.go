package user

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=user

import (
	"context"

	"stefabooks/internal/access"
)

type Repository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (User, error)
	UpdateRole(ctx context.Context, id string, role access.Role) (User, error)
	UpdateStatus(ctx context.Context, id string, status access.Status) (User, error)
}
