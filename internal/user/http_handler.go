package user

import (
	"net/http"

	"stefabooks/internal/access"
	"stefabooks/internal/httpx"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

type updateRoleReq struct {
	Role string `json:"role" validate:"required,oneof=user moderator admin"`
}

type updateStatusReq struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// GetCurrentUser handles GET /v1/me
// @Summary Get current user
// @Tags users
// @Produce json
// @Security Bearer
// @Success 200 {object} httpx.SuccessResponse{data=User}
// @Failure 401 {object} httpx.ErrorResponse
// @Router /v1/me [get]
func (h *HTTPHandler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.Get(r.Context(), httpx.UserIDFrom(r))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, u, nil)
}

// UpdateRole handles PATCH /v1/admin/users/{id}/role
// @Summary Change a user's role
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param request body updateRoleReq true "New role"
// @Success 200 {object} httpx.SuccessResponse{data=User}
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 403 {object} httpx.ErrorResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/admin/users/{id}/role [patch]
func (h *HTTPHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleReq
	id, ok := httpx.PathID(w, r, "user")
	if !ok {
		return
	}
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	u, err := h.service.UpdateRole(r.Context(), httpx.SubjectFrom(r), id, access.Role(req.Role))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, u, nil)
}

// UpdateStatus handles PATCH /v1/admin/users/{id}/status
// @Summary Activate or deactivate a user
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path string true "User ID"
// @Param request body updateStatusReq true "New status"
// @Success 200 {object} httpx.SuccessResponse{data=User}
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/admin/users/{id}/status [patch]
func (h *HTTPHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusReq
	id, ok := httpx.PathID(w, r, "user")
	if !ok {
		return
	}
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}
	u, err := h.service.SetStatus(r.Context(), httpx.SubjectFrom(r), id, access.Status(req.Status))
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, u, nil)
}
