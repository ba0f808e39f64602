package payment

import (
	"context"
	"errors"
	"io"
	"net/http"

	"stefabooks/internal/access"
	"stefabooks/internal/apperr"
	"stefabooks/internal/httpx"
	"stefabooks/internal/logger"
	"stefabooks/internal/platform/monobank"
)

// WebhookVerifier checks the provider signature of a raw webhook body.
type WebhookVerifier interface {
	VerifyWebhook(ctx context.Context, body []byte, signature string) error
}

type HTTPHandler struct {
	svc         *Service
	verifier    WebhookVerifier
	rentalPrice int64
}

func NewHTTPHandler(svc *Service, verifier WebhookVerifier, rentalPrice int64) *HTTPHandler {
	return &HTTPHandler{svc: svc, verifier: verifier, rentalPrice: rentalPrice}
}

type createReq struct {
	Amount        int64  `json:"amount" validate:"omitempty,gt=0"`
	Currency      string `json:"currency" validate:"omitempty,oneof=UAH USD EUR"`
	Description   string `json:"description" validate:"max=255"`
	OrderID       string `json:"order_id" validate:"required,order_id"`
	CustomerEmail string `json:"customer_email" validate:"required,email"`
	BookID        string `json:"book_id" validate:"omitempty,uuid"`
}

// Create handles POST /v1/payments
// @Summary Create a payment
// @Description Creates a payment intent and returns the hosted payment page. order_id is an idempotency key.
// @Description With book_id the payment buys a single rental of that book at the fixed rental price.
// @Tags payments
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body createReq true "Payment"
// @Success 201 {object} httpx.SuccessResponse{data=Payment}
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Failure 502 {object} httpx.ErrorResponse
// @Router /v1/payments [post]
func (h *HTTPHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if !httpx.DecodeJSON(w, r, &req) {
		return
	}

	in := CreateInput{
		Amount:        req.Amount,
		Currency:      req.Currency,
		Description:   req.Description,
		OrderID:       req.OrderID,
		CustomerEmail: req.CustomerEmail,
		UserID:        httpx.UserIDFrom(r),
	}
	if req.BookID != "" {
		in.Amount = h.rentalPrice
		in.Currency = "UAH"
		in.BookID = req.BookID
		if in.Description == "" {
			in.Description = "Book rental"
		}
	}

	p, err := h.svc.CreatePayment(r.Context(), in)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONCreated(w, r, p)
}

// Get handles GET /v1/payments/{id}
// @Summary Get a payment
// @Description Pending payments past their expiry are reported as expired.
// @Tags payments
// @Produce json
// @Security Bearer
// @Param id path string true "Payment ID"
// @Success 200 {object} httpx.SuccessResponse{data=Payment}
// @Failure 404 {object} httpx.ErrorResponse
// @Router /v1/payments/{id} [get]
func (h *HTTPHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.PathID(w, r, "payment")
	if !ok {
		return
	}
	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	owner := ""
	if p.UserID != nil {
		owner = *p.UserID
	}
	if !access.CanActOn(httpx.SubjectFrom(r), owner, access.CapMakePayments, access.CapManageAnyPayment) {
		// Hide existence from other users.
		httpx.WriteError(w, r, apperr.NotFound("payment not found"))
		return
	}
	httpx.JSONSuccess(w, r, p, nil)
}

// Callback handles POST /v1/payments/callback
// @Summary Monobank webhook
// @Description Invoice status notification signed with the X-Sign header.
// @Tags payments
// @Accept json
// @Produce json
// @Param X-Sign header string true "Base64 ECDSA signature of the body"
// @Success 200 {object} httpx.SuccessResponse{data=CallbackResult}
// @Failure 400 {object} httpx.ErrorResponse
// @Failure 404 {object} httpx.ErrorResponse
// @Failure 409 {object} httpx.ErrorResponse
// @Router /v1/payments/callback [post]
func (h *HTTPHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httpx.JSONError(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return
		}
		httpx.WriteError(w, r, apperr.Validation("could not read body"))
		return
	}

	if err := h.verifier.VerifyWebhook(r.Context(), body, r.Header.Get("X-Sign")); err != nil {
		if errors.Is(err, monobank.ErrInvalidSignature) {
			log.Warn("rejected payment webhook",
				"event", "security.webhook_signature_invalid",
				"remote_addr", r.RemoteAddr)
			httpx.WriteError(w, r, apperr.Validation("invalid signature"))
			return
		}
		httpx.WriteError(w, r, apperr.ExternalService("could not verify signature", err))
		return
	}

	ev, err := monobank.ParseWebhook(body)
	if err != nil {
		httpx.WriteError(w, r, apperr.Validation("malformed webhook body"))
		return
	}

	paymentID, err := h.svc.ResolveProviderPayment(r.Context(), ev.InvoiceID, ev.Reference)
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}

	res, err := h.svc.ProcessCallback(r.Context(), paymentID, ev.Status, ev.TransactionID())
	if err != nil {
		httpx.WriteError(w, r, err)
		return
	}
	httpx.JSONSuccess(w, r, res, nil)
}
