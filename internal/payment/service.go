package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"stefabooks/internal/apperr"
	"stefabooks/internal/logger"
)

type Config struct {
	TTL time.Duration
	Now func() time.Time
}

type Service struct {
	repo      Repository
	provider  Provider
	activator SubscriptionActivator
	ttl       time.Duration
	now       func() time.Time
}

func NewService(repo Repository, provider Provider, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{repo: repo, provider: provider, ttl: cfg.TTL, now: cfg.Now}
}

// SetActivator wires the subscription side. Subscriptions depend on payments
// for checkout, so the link is made after both services exist.
func (s *Service) SetActivator(a SubscriptionActivator) {
	s.activator = a
}

func validateCreate(in CreateInput) error {
	switch {
	case in.Amount <= 0:
		return apperr.Validation("amount must be positive")
	case !SupportedCurrency(in.Currency):
		return apperr.Validation("unsupported currency")
	case in.OrderID == "":
		return apperr.Validation("order_id is required")
	case len(in.OrderID) > 128:
		return apperr.Validation("order_id is too long")
	}
	return nil
}

// CreatePayment creates a pending payment and its hosted payment page.
// Repeating a call with the order id of a pending payment returns that payment.
func (s *Service) CreatePayment(ctx context.Context, in CreateInput) (Payment, error) {
	in.OrderID = strings.TrimSpace(in.OrderID)
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if err := validateCreate(in); err != nil {
		return Payment{}, err
	}

	existing, err := s.repo.GetByOrderID(ctx, in.OrderID)
	if err == nil {
		return s.resume(ctx, existing, in)
	}
	if !errors.Is(err, ErrNotFound) {
		return Payment{}, apperr.ExternalService("payment store unavailable", err)
	}

	p := &Payment{
		Amount:         in.Amount,
		Currency:       in.Currency,
		Status:         StatusPending,
		OrderID:        in.OrderID,
		CustomerEmail:  in.CustomerEmail,
		Description:    in.Description,
		UserID:         optional(in.UserID),
		SubscriptionID: optional(in.SubscriptionID),
		BookID:         optional(in.BookID),
		ExpiresAt:      s.now().Add(s.ttl),
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, ErrDuplicateOrderID) {
			// Lost the insert race; the winner's row is the payment.
			winner, gerr := s.repo.GetByOrderID(ctx, in.OrderID)
			if gerr != nil {
				return Payment{}, apperr.ExternalService("payment store unavailable", gerr)
			}
			return s.resume(ctx, winner, in)
		}
		return Payment{}, apperr.ExternalService("payment store unavailable", err)
	}

	logger.FromContext(ctx).Info("payment created",
		"payment_id", p.ID, "order_id", p.OrderID, "amount", p.Amount, "currency", p.Currency)
	return s.attachInvoice(ctx, *p)
}

// resume handles a create request whose order id is already taken.
func (s *Service) resume(ctx context.Context, p Payment, in CreateInput) (Payment, error) {
	if !p.matches(in) {
		return Payment{}, apperr.Conflict("order id already used for a different payment")
	}
	p, err := s.expireIfOverdue(ctx, p)
	if err != nil {
		return Payment{}, err
	}
	if p.Status != StatusPending {
		return Payment{}, apperr.Conflict("order id already used")
	}
	if p.PaymentURL == nil {
		return s.attachInvoice(ctx, p)
	}
	return p, nil
}

func (s *Service) attachInvoice(ctx context.Context, p Payment) (Payment, error) {
	inv, err := s.provider.CreateInvoice(ctx, p)
	if err != nil {
		logger.FromContext(ctx).Warn("payment provider failed to create invoice",
			"payment_id", p.ID, "order_id", p.OrderID, "error", err)
		return Payment{}, apperr.ExternalService("payment provider unavailable, please retry", err)
	}

	stored, err := s.repo.SetInvoice(ctx, p.ID, inv.ID, inv.URL)
	if err != nil {
		return Payment{}, apperr.ExternalService("payment store unavailable", err)
	}
	if !stored {
		// A concurrent retry attached its invoice first.
		return s.reload(ctx, p.ID)
	}
	p.ProviderInvoiceID = &inv.ID
	p.PaymentURL = &inv.URL
	return p, nil
}

// Get returns the payment, expiring it first if it is pending past its expiry.
func (s *Service) Get(ctx context.Context, id string) (Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Payment{}, apperr.NotFound("payment not found")
	}
	if err != nil {
		return Payment{}, apperr.ExternalService("payment store unavailable", err)
	}
	return s.expireIfOverdue(ctx, p)
}

func (s *Service) expireIfOverdue(ctx context.Context, p Payment) (Payment, error) {
	if !p.OverdueAt(s.now()) {
		return p, nil
	}
	expired, err := s.repo.Transition(ctx, p.ID, StatusExpired, "", s.now())
	if errors.Is(err, ErrNotPending) {
		return s.reload(ctx, p.ID)
	}
	if err != nil {
		return Payment{}, apperr.ExternalService("payment store unavailable", err)
	}
	logger.FromContext(ctx).Info("payment expired", "payment_id", p.ID, "order_id", p.OrderID)
	return expired, nil
}

// ProcessCallback applies a provider status to a payment. Only pending payments
// transition; callbacks for terminal payments are acknowledged without change.
func (s *Service) ProcessCallback(ctx context.Context, paymentID, externalStatus, transactionID string) (CallbackResult, error) {
	log := logger.FromContext(ctx).With("payment_id", paymentID, "external_status", externalStatus)

	p, err := s.repo.GetByID(ctx, paymentID)
	if errors.Is(err, ErrNotFound) {
		return CallbackResult{}, apperr.NotFound("payment not found")
	}
	if err != nil {
		return CallbackResult{}, apperr.ExternalService("payment store unavailable", err)
	}

	target, terminal, ok := MapProviderStatus(externalStatus)
	if !ok {
		return CallbackResult{}, apperr.Conflict(fmt.Sprintf("unrecognised payment status %q", externalStatus))
	}
	if !terminal {
		log.Debug("non-terminal payment status acknowledged")
		return CallbackResult{Success: true, Payment: p}, nil
	}

	if p.Status.Terminal() {
		return s.redelivered(ctx, log, p, target)
	}

	updated, err := s.repo.Transition(ctx, p.ID, target, transactionID, s.now())
	if errors.Is(err, ErrNotPending) {
		current, gerr := s.reload(ctx, p.ID)
		if gerr != nil {
			return CallbackResult{}, gerr
		}
		return s.redelivered(ctx, log, current, target)
	}
	if err != nil {
		return CallbackResult{}, apperr.ExternalService("payment store unavailable", err)
	}
	log.Info("payment transitioned", "status", updated.Status)

	if updated.Status == StatusSuccess {
		if err := s.activate(ctx, updated); err != nil {
			return CallbackResult{}, err
		}
	}
	return CallbackResult{Success: true, Payment: updated}, nil
}

// redelivered handles a terminal callback for an already-terminal payment.
// A repeated success re-drives activation in case the first attempt failed.
func (s *Service) redelivered(ctx context.Context, log *slog.Logger, p Payment, target Status) (CallbackResult, error) {
	if p.Status == StatusSuccess && target == StatusSuccess {
		if err := s.activate(ctx, p); err != nil {
			return CallbackResult{}, err
		}
	}
	if p.Status == StatusExpired && target == StatusSuccess {
		log.Warn("success callback for an expired payment needs manual reconciliation", "order_id", p.OrderID)
	}
	return CallbackResult{Success: true, Payment: p}, nil
}

func (s *Service) activate(ctx context.Context, p Payment) error {
	if p.SubscriptionID == nil || s.activator == nil {
		return nil
	}
	if err := s.activator.ActivateFromPayment(ctx, *p.SubscriptionID, p.ID); err != nil {
		if apperr.IsKind(err, apperr.KindInvalidState) {
			// Cancelled before the money arrived; nothing to activate.
			logger.FromContext(ctx).Warn("paid subscription is not activatable",
				"payment_id", p.ID, "subscription_id", *p.SubscriptionID, "error", err)
			return nil
		}
		logger.FromContext(ctx).Error("subscription activation failed",
			"payment_id", p.ID, "subscription_id", *p.SubscriptionID, "error", err)
		return apperr.ExternalService("subscription activation failed, retry the callback", err)
	}
	return nil
}

// ResolveProviderPayment finds the payment a provider notification refers to,
// by invoice id first and then by order id.
func (s *Service) ResolveProviderPayment(ctx context.Context, invoiceID, orderID string) (string, error) {
	p, err := s.repo.GetByInvoiceID(ctx, invoiceID)
	if errors.Is(err, ErrNotFound) && orderID != "" {
		p, err = s.repo.GetByOrderID(ctx, orderID)
	}
	if errors.Is(err, ErrNotFound) {
		return "", apperr.NotFound("payment not found")
	}
	if err != nil {
		return "", apperr.ExternalService("payment store unavailable", err)
	}
	return p.ID, nil
}

// ExpireStale expires every pending payment whose expiry has passed.
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ExpireStale(ctx, now)
}

func (s *Service) reload(ctx context.Context, id string) (Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Payment{}, apperr.ExternalService("payment store unavailable", err)
	}
	return p, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
