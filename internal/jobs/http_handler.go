package jobs

import (
	"net/http"

	"stefabooks/internal/apperr"
	"stefabooks/internal/httpx"
)

type HTTPHandler struct {
	runner *Runner
}

func NewHTTPHandler(runner *Runner) *HTTPHandler {
	return &HTTPHandler{runner: runner}
}

// Expire handles POST /internal/jobs/expire and POST /v1/admin/jobs/expire
// @Summary Run the expiry sweep
// @Description Expires overdue subscriptions and stale pending payments. Intended for an external scheduler.
// @Tags internal
// @Produce json
// @Param X-Internal-Secret header string true "Internal secret for authentication"
// @Success 200 {object} httpx.SuccessResponse{data=Run}
// @Failure 401 {object} httpx.ErrorResponse
// @Failure 502 {object} httpx.ErrorResponse
// @Router /internal/jobs/expire [post]
// @Router /v1/admin/jobs/expire [post]
func (h *HTTPHandler) Expire(w http.ResponseWriter, r *http.Request) {
	run, err := h.runner.Run(r.Context())
	if err != nil {
		httpx.WriteError(w, r, apperr.ExternalService("expiry job failed", err))
		return
	}
	httpx.JSONSuccess(w, r, run, nil)
}
