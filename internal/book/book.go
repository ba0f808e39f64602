package book

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a book is not found.
var ErrNotFound = errors.New("book not found")

// Book is a catalog entry. Only QtyAvailable is ever written by this service.
type Book struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	Category     string    `json:"category"`
	AgeRange     string    `json:"age_range,omitempty"`
	Description  string    `json:"description,omitempty"`
	CoverURL     *string   `json:"cover_url,omitempty"`
	QtyTotal     int       `json:"qty_total"`
	QtyAvailable int       `json:"qty_available"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Available reports whether at least one copy can be checked out.
func (b Book) Available() bool {
	return b.QtyAvailable > 0
}
