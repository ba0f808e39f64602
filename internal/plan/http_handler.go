package plan

import (
	"net/http"

	"stefabooks/internal/httpx"
)

type HTTPHandler struct {
	catalog *Catalog
}

func NewHTTPHandler(catalog *Catalog) *HTTPHandler {
	return &HTTPHandler{catalog: catalog}
}

// List handles GET /v1/plans
// @Summary List subscription plans
// @Tags plans
// @Produce json
// @Success 200 {object} httpx.SuccessResponse{data=[]Plan}
// @Router /v1/plans [get]
func (h *HTTPHandler) List(w http.ResponseWriter, r *http.Request) {
	httpx.JSONSuccess(w, r, h.catalog.All(), nil)
}
