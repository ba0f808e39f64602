package user

import (
	"context"
	"errors"
	"fmt"

	"stefabooks/internal/access"
	"stefabooks/internal/apperr"
	"stefabooks/internal/httpx"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Get(ctx context.Context, id string) (User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// LoadSubject resolves the authorization subject for a token's user id.
func (s *Service) LoadSubject(ctx context.Context, userID string) (access.Subject, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return access.Subject{}, httpx.ErrUnknownSubject
	}
	if err != nil {
		return access.Subject{}, fmt.Errorf("load subject: %w", err)
	}
	return u.Subject(), nil
}

// UpdateRole changes the role of user id. Admins cannot change their own role.
func (s *Service) UpdateRole(ctx context.Context, actor access.Subject, id string, role access.Role) (User, error) {
	if !role.Valid() {
		return User{}, apperr.Validation("unknown role")
	}
	if actor.UserID == id {
		return User{}, apperr.Validation("cannot change your own role")
	}
	u, err := s.repo.UpdateRole(ctx, id, role)
	if errors.Is(err, ErrNotFound) {
		return User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("update role: %w", err)
	}
	return u, nil
}

// SetStatus soft-deactivates or reactivates a user. Users are never deleted.
func (s *Service) SetStatus(ctx context.Context, actor access.Subject, id string, status access.Status) (User, error) {
	if !status.Valid() {
		return User{}, apperr.Validation("unknown status")
	}
	if actor.UserID == id && status == access.StatusInactive {
		return User{}, apperr.Validation("cannot deactivate yourself")
	}
	u, err := s.repo.UpdateStatus(ctx, id, status)
	if errors.Is(err, ErrNotFound) {
		return User{}, apperr.NotFound("user not found")
	}
	if err != nil {
		return User{}, fmt.Errorf("set status: %w", err)
	}
	return u, nil
}
