package rental

import (
	"net/http"

	"stefabooks/internal/access"
	"stefabooks/internal/apperr"
	"stefabooks/internal/httpx"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

type checkoutReq struct {
	BookID string `json:"book_id" validate:"required,uuid"`
}

// Checkout handles POST /v1/rentals
// @Summary Rent a book
// @Description Checks out one copy against the active subscription or a paid rental of the book.
// @Tags rentals
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body checkoutReq true "Book"
// @Success 201 {object} httpx.SuccessResponse{data=Rental}
// @Failure 404 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse "OUT_OF_STOCK or CAPACITY_EXCEEDED"
// @Router /v1/rentals [post]
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}

	rt, err := h.svc.Checkout(r.Context(), httpx.UserIDFrom(r), req.BookID)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, rt)
}

// ListMine handles GET /v1/rentals/me
// @Summary List my rentals
// @Tags rentals
// @Produce json
// @Security Bearer
// @Success 200 {object} httpx.SuccessResponse{data=[]Rental}
// @Router /v1/rentals/me [get]
func (h *HTTPHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	rentals, err := h.svc.ListByUser(r.Context(), httpx.UserIDFrom(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	overdue := 0
	for _, rt := range rentals {
		if rt.Overdue {
			overdue++
		}
	}
	httpx.JSONSuccess(w, r, rentals, map[string]interface{}{"total": len(rentals), "overdue": overdue})
}

// Return handles POST /v1/rentals/{id}/return
// @Summary Return a book
// @Tags rentals
// @Produce json
// @Security Bearer
// @Param id path string true "Rental ID"
// @Success 200 {object} httpx.SuccessResponse{data=Rental}
// @Failure 404 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Router /v1/rentals/{id}/return [post]
func (h *HTTPHandler) Return(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "rental")
	if !ok {
		return
	}
	rt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if !access.CanActOn(httpx.SubjectFrom(r), rt.UserID, access.CapRentBooks, access.CapManageAnyRental) {
		httpx.WriteError(w, r, apperr.NotFound("rental not found"))
		return
	}

	rt, err = h.svc.ReturnBook(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, rt, nil)
}
