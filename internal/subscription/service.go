package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"stefabooks/internal/apperr"
	"stefabooks/internal/logger"
	"stefabooks/internal/payment"
	"stefabooks/internal/plan"
)

type Service struct {
	repo     Repository
	plans    *plan.Catalog
	payments PaymentCreator
	notifier Notifier
	now      func() time.Time
}

// NewService builds the subscription service. notifier may be nil.
func NewService(repo Repository, plans *plan.Catalog, payments PaymentCreator, notifier Notifier, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, plans: plans, payments: payments, notifier: notifier, now: now}
}

// CreateSubscription opens a pending subscription. A user with an active
// subscription may only move to a strictly higher tier.
func (s *Service) CreateSubscription(ctx context.Context, userID string, planType plan.Type) (Subscription, error) {
	p, err := s.plans.Get(planType)
	if err != nil {
		return Subscription{}, apperr.Validation(fmt.Sprintf("unknown plan %q", planType))
	}

	current, err := s.ActiveForUser(ctx, userID)
	switch {
	case err == nil:
		if !s.outranks(p, current.Type) {
			return Subscription{}, apperr.Validation("an active subscription of the same or a higher tier already exists")
		}
	case !apperr.IsKind(err, apperr.KindNotFound):
		return Subscription{}, err
	}

	sub := &Subscription{UserID: userID, Type: p.Type, Status: StatusPending}
	if err := s.repo.Create(ctx, sub); err != nil {
		return Subscription{}, apperr.ExternalService("subscription store unavailable", err)
	}
	logger.FromContext(ctx).Info("subscription created",
		"subscription_id", sub.ID, "user_id", userID, "plan", p.Type)
	return *sub, nil
}

// outranks reports whether p is a strictly higher tier than the current plan.
// An active plan that is no longer offered is never outranked.
func (s *Service) outranks(p plan.Plan, current plan.Type) bool {
	cp, err := s.plans.Get(current)
	return err == nil && p.Tier > cp.Tier
}

// Checkout creates a pending subscription and the payment that will activate it.
func (s *Service) Checkout(ctx context.Context, userID, email string, planType plan.Type) (CheckoutResult, error) {
	sub, err := s.CreateSubscription(ctx, userID, planType)
	if err != nil {
		return CheckoutResult{}, err
	}
	p, _ := s.plans.Get(sub.Type)

	pay, err := s.payments.CreatePayment(ctx, payment.CreateInput{
		Amount:         p.Price,
		Currency:       p.Currency,
		Description:    fmt.Sprintf("Stefa.books %s subscription", p.Name),
		OrderID:        "sub_" + sub.ID,
		CustomerEmail:  email,
		UserID:         userID,
		SubscriptionID: sub.ID,
	})
	if err != nil {
		return CheckoutResult{}, err
	}
	return CheckoutResult{Subscription: sub, Payment: pay}, nil
}

// Activate moves a pending subscription to active for the plan's duration.
func (s *Service) Activate(ctx context.Context, id string) (Subscription, error) {
	return s.activate(ctx, id, nil)
}

// ActivateFromPayment activates the subscription paid by paymentID. It is
// safe to call again for the same payment.
func (s *Service) ActivateFromPayment(ctx context.Context, subscriptionID, paymentID string) error {
	sub, err := s.repo.GetByID(ctx, subscriptionID)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("subscription not found")
	}
	if err != nil {
		return apperr.ExternalService("subscription store unavailable", err)
	}
	if sub.Status == StatusActive && sub.PaymentID != nil && *sub.PaymentID == paymentID {
		return nil
	}
	_, err = s.activate(ctx, subscriptionID, &paymentID)
	return err
}

func (s *Service) activate(ctx context.Context, id string, paymentID *string) (Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Subscription{}, apperr.NotFound("subscription not found")
	}
	if err != nil {
		return Subscription{}, apperr.ExternalService("subscription store unavailable", err)
	}
	if sub.Status != StatusPending {
		return Subscription{}, apperr.InvalidState(fmt.Sprintf("subscription is %s", sub.Status))
	}
	p, err := s.plans.Get(sub.Type)
	if err != nil {
		return Subscription{}, apperr.InvalidState(fmt.Sprintf("plan %q is no longer offered", sub.Type))
	}

	current, err := s.ActiveForUser(ctx, sub.UserID)
	switch {
	case err == nil:
		if current.ID != sub.ID && !s.outranks(p, current.Type) {
			return Subscription{}, apperr.InvalidState(ErrTierNotHigher.Error())
		}
	case !apperr.IsKind(err, apperr.KindNotFound):
		return Subscription{}, err
	}

	start := s.now()
	end := start.AddDate(0, p.DurationMonths, 0)
	active, err := s.repo.Activate(ctx, id, paymentID, start, end)
	if errors.Is(err, ErrNotPending) {
		return Subscription{}, apperr.InvalidState("subscription is no longer pending")
	}
	if errors.Is(err, ErrTierNotHigher) {
		return Subscription{}, apperr.InvalidState(err.Error())
	}
	if err != nil {
		return Subscription{}, apperr.ExternalService("subscription store unavailable", err)
	}

	log := logger.FromContext(ctx)
	log.Info("subscription activated",
		"subscription_id", id, "user_id", active.UserID, "plan", active.Type, "end_date", end)

	if s.notifier != nil {
		err := s.notifier.SubscriptionActivated(ctx, Activation{
			UserID:         active.UserID,
			SubscriptionID: active.ID,
			Plan:           p,
			EndDate:        end,
		})
		if err != nil {
			log.Warn("activation notification failed", "subscription_id", id, "error", err)
		}
	}
	return active, nil
}

// CancelSubscription cancels a pending or active subscription.
func (s *Service) CancelSubscription(ctx context.Context, id string) (CancelResult, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return CancelResult{}, err
	}
	if sub.Status == StatusCancelled || sub.Status == StatusExpired {
		return CancelResult{}, apperr.InvalidState(fmt.Sprintf("subscription is already %s", sub.Status))
	}

	cancelled, err := s.repo.Cancel(ctx, id, s.now())
	if errors.Is(err, ErrNotCancellable) {
		return CancelResult{}, apperr.InvalidState("subscription is no longer cancellable")
	}
	if err != nil {
		return CancelResult{}, apperr.ExternalService("subscription store unavailable", err)
	}
	logger.FromContext(ctx).Info("subscription cancelled", "subscription_id", id, "user_id", cancelled.UserID)
	return CancelResult{Success: true, Subscription: cancelled}, nil
}

// Get returns the subscription, expiring it first if it ran past its end date.
func (s *Service) Get(ctx context.Context, id string) (Subscription, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return Subscription{}, apperr.NotFound("subscription not found")
	}
	if err != nil {
		return Subscription{}, apperr.ExternalService("subscription store unavailable", err)
	}
	return s.expireIfOverdue(ctx, sub)
}

// ActiveForUser returns the user's active subscription or a not-found error.
func (s *Service) ActiveForUser(ctx context.Context, userID string) (Subscription, error) {
	sub, err := s.repo.ActiveForUser(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Subscription{}, apperr.NotFound("no active subscription")
	}
	if err != nil {
		return Subscription{}, apperr.ExternalService("subscription store unavailable", err)
	}
	sub, err = s.expireIfOverdue(ctx, sub)
	if err != nil {
		return Subscription{}, err
	}
	if sub.Status != StatusActive {
		return Subscription{}, apperr.NotFound("no active subscription")
	}
	return sub, nil
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]Subscription, error) {
	subs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.ExternalService("subscription store unavailable", err)
	}
	for i := range subs {
		if subs[i], err = s.expireIfOverdue(ctx, subs[i]); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

// ExpireOverdue expires every active subscription past its end date.
func (s *Service) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.ExpireOverdue(ctx, now)
}

func (s *Service) expireIfOverdue(ctx context.Context, sub Subscription) (Subscription, error) {
	now := s.now()
	if !sub.OverdueAt(now) {
		return sub, nil
	}
	current, err := s.repo.ExpireIfOverdue(ctx, sub.ID, now)
	if err != nil {
		return Subscription{}, apperr.ExternalService("subscription store unavailable", err)
	}
	if current.Status == StatusExpired {
		logger.FromContext(ctx).Info("subscription expired", "subscription_id", sub.ID, "user_id", sub.UserID)
	}
	return current, nil
}
