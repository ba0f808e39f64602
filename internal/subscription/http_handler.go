package subscription

import (
	"net/http"

	"stefabooks/internal/access"
	"stefabooks/internal/apperr"
	"stefabooks/internal/httpx"
	"stefabooks/internal/plan"
)

type HTTPHandler struct {
	svc *Service
}

func NewHTTPHandler(svc *Service) *HTTPHandler {
	return &HTTPHandler{svc: svc}
}

type checkoutReq struct {
	Plan          string `json:"plan" validate:"required,oneof=mini maxi premium"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
}

// Checkout handles POST /v1/subscriptions
// @Summary Start a subscription
// @Description Creates a pending subscription and the payment that activates it.
// @Tags subscriptions
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body checkoutReq true "Plan"
// @Success 201 {object} httpx.SuccessResponse{data=CheckoutResult}
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 502 {object} httpx.ErrorResponse
// @Router /v1/subscriptions [post]
func (h *HTTPHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Checkout(r.Context(), httpx.UserIDFrom(r), req.CustomerEmail, plan.Type(req.Plan))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, res)
}

// ListMine handles GET /v1/subscriptions/me
// @Summary List my subscriptions
// @Tags subscriptions
// @Produce json
// @Security Bearer
// @Success 200 {object} httpx.SuccessResponse{data=[]Subscription}
// @Router /v1/subscriptions/me [get]
func (h *HTTPHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	subs, err := h.svc.ListByUser(r.Context(), httpx.UserIDFrom(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, subs, map[string]interface{}{"total": len(subs)})
}

// Cancel handles POST /v1/subscriptions/{id}/cancel
// @Summary Cancel a subscription
// @Tags subscriptions
// @Produce json
// @Security Bearer
// @Param id path string true "Subscription ID"
// @Success 200 {object} httpx.SuccessResponse{data=CancelResult}
// @Failure 404 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Router /v1/subscriptions/{id}/cancel [post]
func (h *HTTPHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "subscription")
	if !ok {
		return
	}
	sub, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	if !access.CanActOn(httpx.SubjectFrom(r), sub.UserID, access.CapManageOwnSubscription, access.CapManageAnySubscription) {
		httpx.WriteError(w, r, apperr.NotFound("subscription not found"))
		return
	}

	res, err := h.svc.CancelSubscription(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, res, nil)
}
