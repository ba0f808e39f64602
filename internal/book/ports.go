package book

//go:generate mockgen -source=ports.go -destination=mock_repository.go -package=book

import (
	"context"
)

// Repository defines read access to the books table.
type Repository interface {
	ListAll(ctx context.Context) ([]Book, error)
	GetByID(ctx context.Context, id string) (Book, error)
}
