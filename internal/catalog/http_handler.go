package catalog

import (
	"context"
	"net/http"
	"strconv"

	"stefabooks/internal/book"
	"stefabooks/internal/httpx"
)

type Reader interface {
	List(ctx context.Context, f Filter) ([]book.Book, error)
	GetByID(ctx context.Context, id string) (book.Book, error)
}

type HTTPHandler struct {
	store Reader
}

func NewHTTPHandler(store Reader) *HTTPHandler {
	return &HTTPHandler{store: store}
}

// List handles GET /v1/books
// @Summary Browse the catalog
// @Description Search and filter books from the cached catalog. Availability is indicative only.
// @Tags books
// @Produce json
// @Param q query string false "Search in title, author, code and category"
// @Param category query string false "Filter by category"
// @Param available query bool false "Only books with copies available"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Items per page" default(20)
// @Success 200 {object} httpx.SuccessResponse{data=[]book.Book}
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 502 {object} httpx.ErrorResponse
// @Router /v1/books [get]
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	page, _ := strconv.Atoi(query.Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}

	f := Filter{
		Query:    query.Get("q"),
		Category: query.Get("category"),
	}
	if v := query.Get("available"); v != "" {
		available, err := strconv.ParseBool(v)
		if err != nil {
			httpx.JSONError(w, r, http.StatusBadRequest, "VALIDATION_ERROR", "available must be true or false", nil)
			return
		}
		f.Available = &available
	}

	books, err := h.store.List(r.Context(), f)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	total := len(books)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	httpx.JSONSuccess(w, r, books[start:end], map[string]interface{}{
		"page":        page,
		"page_size":   pageSize,
		"total":       total,
		"total_pages": (total + pageSize - 1) / pageSize,
	})
}

// GetByID handles GET /v1/books/{id}
// @Summary Get a book
// @Tags books
// @Produce json
// @Param id path string true "Book ID"
// @Success 200 {object} httpx.SuccessResponse{data=book.Book}
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/books/{id} [get]
func (h *HTTPHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	b, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, b, nil)
}

type InternalHandler struct {
	store *Store
}

func NewInternalHandler(store *Store) *InternalHandler {
	return &InternalHandler{store: store}
}

// Invalidate handles POST /internal/catalog/invalidate
// @Summary Mark the catalog snapshot stale
// @Description Called after an external catalog import so the next read refreshes.
// @Tags internal
// @Produce json
// @Param X-Internal-Secret header string true "Internal secret for authentication"
// @Success 200 {object} httpx.SuccessResponse
// @Failure 401 {object} httpx.ErrorResponse
// @Router /internal/catalog/invalidate [post]
func (h *InternalHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	h.store.Invalidate()
	httpx.JSONSuccess(w, r, map[string]string{"message": "catalog invalidated"}, nil)
}
