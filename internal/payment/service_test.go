package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stefabooks/internal/apperr"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	repo      *MockRepository
	provider  *MockProvider
	activator *MockSubscriptionActivator
	svc       *Service
}

func newFixture(t *testing.T) *fixture {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	f := &fixture{
		repo:      NewMockRepository(ctrl),
		provider:  NewMockProvider(ctrl),
		activator: NewMockSubscriptionActivator(ctrl),
	}
	f.svc = NewService(f.repo, f.provider, Config{TTL: time.Hour, Now: func() time.Time { return testNow }})
	f.svc.SetActivator(f.activator)
	return f
}

func strPtr(s string) *string { return &s }

func pendingPayment() Payment {
	return Payment{
		ID:        "pay-1",
		Amount:    19900,
		Currency:  "UAH",
		Status:    StatusPending,
		OrderID:   "order_1",
		ExpiresAt: testNow.Add(time.Hour),
	}
}

func orderInput() CreateInput {
	return CreateInput{Amount: 19900, Currency: "UAH", OrderID: "order_1", CustomerEmail: "mama@example.com"}
}

func TestService_CreatePayment(t *testing.T) {
	t.Run("new order creates invoice", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(Payment{}, ErrNotFound)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p *Payment) error {
			assert.Equal(t, testNow.Add(time.Hour), p.ExpiresAt)
			assert.Equal(t, StatusPending, p.Status)
			p.ID = "pay-1"
			return nil
		})
		f.provider.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).
			Return(Invoice{ID: "inv-1", URL: "https://pay.example/inv-1"}, nil)
		f.repo.EXPECT().SetInvoice(gomock.Any(), "pay-1", "inv-1", "https://pay.example/inv-1").Return(true, nil)

		p, err := f.svc.CreatePayment(context.Background(), orderInput())
		require.NoError(t, err)
		assert.Equal(t, "pay-1", p.ID)
		assert.Equal(t, "https://pay.example/inv-1", *p.PaymentURL)
	})

	t.Run("repeated order returns the pending payment", func(t *testing.T) {
		f := newFixture(t)
		existing := pendingPayment()
		existing.PaymentURL = strPtr("https://pay.example/inv-1")
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(existing, nil).Times(2)

		first, err := f.svc.CreatePayment(context.Background(), orderInput())
		require.NoError(t, err)
		second, err := f.svc.CreatePayment(context.Background(), orderInput())
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("order id reused with a different amount", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(pendingPayment(), nil)

		in := orderInput()
		in.Amount = 20000
		_, err := f.svc.CreatePayment(context.Background(), in)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})

	t.Run("order id reused by another user", func(t *testing.T) {
		f := newFixture(t)
		theirs := pendingPayment()
		theirs.UserID = strPtr("u1")
		theirs.CustomerEmail = "mama@example.com"
		theirs.PaymentURL = strPtr("https://pay.example/1")
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(theirs, nil)

		in := orderInput()
		in.UserID = "u2"
		in.CustomerEmail = "stranger@example.com"
		p, err := f.svc.CreatePayment(context.Background(), in)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
		assert.Empty(t, p.PaymentURL)
	})

	t.Run("order id reused for another book", func(t *testing.T) {
		f := newFixture(t)
		existing := pendingPayment()
		existing.UserID = strPtr("u1")
		existing.BookID = strPtr("book-1")
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(existing, nil)

		in := orderInput()
		in.UserID = "u1"
		in.BookID = "book-2"
		_, err := f.svc.CreatePayment(context.Background(), in)
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})

	t.Run("terminal order is a conflict", func(t *testing.T) {
		f := newFixture(t)
		paid := pendingPayment()
		paid.Status = StatusSuccess
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(paid, nil)

		_, err := f.svc.CreatePayment(context.Background(), orderInput())
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})

	t.Run("overdue order expires then conflicts", func(t *testing.T) {
		f := newFixture(t)
		overdue := pendingPayment()
		overdue.ExpiresAt = testNow.Add(-time.Minute)
		expired := overdue
		expired.Status = StatusExpired
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(overdue, nil)
		f.repo.EXPECT().Transition(gomock.Any(), "pay-1", StatusExpired, "", testNow).Return(expired, nil)

		_, err := f.svc.CreatePayment(context.Background(), orderInput())
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})

	t.Run("provider failure can be retried", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(Payment{}, ErrNotFound)
		f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, p *Payment) error {
			p.ID = "pay-1"
			return nil
		})
		f.provider.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).Return(Invoice{}, errors.New("503"))

		_, err := f.svc.CreatePayment(context.Background(), orderInput())
		assert.True(t, apperr.IsKind(err, apperr.KindExternalService))

		f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(pendingPayment(), nil)
		f.provider.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).Return(Invoice{ID: "inv-2", URL: "https://pay.example/inv-2"}, nil)
		f.repo.EXPECT().SetInvoice(gomock.Any(), "pay-1", "inv-2", "https://pay.example/inv-2").Return(true, nil)

		p, err := f.svc.CreatePayment(context.Background(), orderInput())
		require.NoError(t, err)
		assert.Equal(t, "inv-2", *p.ProviderInvoiceID)
	})

	t.Run("lost insert race resumes the winner", func(t *testing.T) {
		f := newFixture(t)
		winner := pendingPayment()
		winner.PaymentURL = strPtr("https://pay.example/inv-1")
		gomock.InOrder(
			f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(Payment{}, ErrNotFound),
			f.repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(ErrDuplicateOrderID),
			f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(winner, nil),
		)

		p, err := f.svc.CreatePayment(context.Background(), orderInput())
		require.NoError(t, err)
		assert.Equal(t, "pay-1", p.ID)
	})

	t.Run("validation", func(t *testing.T) {
		f := newFixture(t)
		for name, in := range map[string]CreateInput{
			"zero amount": {Amount: 0, Currency: "UAH", OrderID: "o"},
			"currency":    {Amount: 100, Currency: "GBP", OrderID: "o"},
			"no order id": {Amount: 100, Currency: "UAH"},
		} {
			_, err := f.svc.CreatePayment(context.Background(), in)
			assert.True(t, apperr.IsKind(err, apperr.KindValidation), name)
		}
	})
}

func TestService_Get_ExpiresLazily(t *testing.T) {
	f := newFixture(t)
	overdue := pendingPayment()
	overdue.ExpiresAt = testNow
	expired := overdue
	expired.Status = StatusExpired
	f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(overdue, nil)
	f.repo.EXPECT().Transition(gomock.Any(), "pay-1", StatusExpired, "", testNow).Return(expired, nil)

	p, err := f.svc.Get(context.Background(), "pay-1")
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, p.Status)
}

func TestService_ProcessCallback(t *testing.T) {
	subPayment := func() Payment {
		p := pendingPayment()
		p.SubscriptionID = strPtr("sub-1")
		return p
	}

	t.Run("success activates the subscription", func(t *testing.T) {
		f := newFixture(t)
		paid := subPayment()
		paid.Status = StatusSuccess
		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(subPayment(), nil)
		f.repo.EXPECT().Transition(gomock.Any(), "pay-1", StatusSuccess, "tx-1", testNow).Return(paid, nil)
		f.activator.EXPECT().ActivateFromPayment(gomock.Any(), "sub-1", "pay-1").Return(nil)

		res, err := f.svc.ProcessCallback(context.Background(), "pay-1", "success", "tx-1")
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, StatusSuccess, res.Payment.Status)
	})

	t.Run("duplicate success is idempotent", func(t *testing.T) {
		f := newFixture(t)
		paid := subPayment()
		paid.Status = StatusSuccess
		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(paid, nil)
		f.activator.EXPECT().ActivateFromPayment(gomock.Any(), "sub-1", "pay-1").Return(nil)

		res, err := f.svc.ProcessCallback(context.Background(), "pay-1", "success", "tx-1")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, res.Payment.Status)
	})

	t.Run("failed activation is re-driven on redelivery", func(t *testing.T) {
		f := newFixture(t)
		paid := subPayment()
		paid.Status = StatusSuccess
		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(subPayment(), nil)
		f.repo.EXPECT().Transition(gomock.Any(), "pay-1", StatusSuccess, "tx-1", testNow).Return(paid, nil)
		f.activator.EXPECT().ActivateFromPayment(gomock.Any(), "sub-1", "pay-1").Return(errors.New("deadlock"))

		_, err := f.svc.ProcessCallback(context.Background(), "pay-1", "success", "tx-1")
		assert.True(t, apperr.IsKind(err, apperr.KindExternalService))

		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(paid, nil)
		f.activator.EXPECT().ActivateFromPayment(gomock.Any(), "sub-1", "pay-1").Return(nil)
		_, err = f.svc.ProcessCallback(context.Background(), "pay-1", "success", "tx-1")
		require.NoError(t, err)
	})

	t.Run("cancelled subscription is acknowledged", func(t *testing.T) {
		f := newFixture(t)
		paid := subPayment()
		paid.Status = StatusSuccess
		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(subPayment(), nil)
		f.repo.EXPECT().Transition(gomock.Any(), "pay-1", StatusSuccess, "tx-1", testNow).Return(paid, nil)
		f.activator.EXPECT().ActivateFromPayment(gomock.Any(), "sub-1", "pay-1").
			Return(apperr.InvalidState("subscription is cancelled"))

		res, err := f.svc.ProcessCallback(context.Background(), "pay-1", "success", "tx-1")
		require.NoError(t, err)
		assert.True(t, res.Success)
	})

	t.Run("failure after success does not regress", func(t *testing.T) {
		f := newFixture(t)
		paid := subPayment()
		paid.Status = StatusSuccess
		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(paid, nil)

		res, err := f.svc.ProcessCallback(context.Background(), "pay-1", "failure", "")
		require.NoError(t, err)
		assert.Equal(t, StatusSuccess, res.Payment.Status)
	})

	t.Run("concurrent transition falls back to current state", func(t *testing.T) {
		f := newFixture(t)
		failed := pendingPayment()
		failed.Status = StatusFailed
		gomock.InOrder(
			f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(pendingPayment(), nil),
			f.repo.EXPECT().Transition(gomock.Any(), "pay-1", StatusFailed, "", testNow).Return(Payment{}, ErrNotPending),
			f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(failed, nil),
		)

		res, err := f.svc.ProcessCallback(context.Background(), "pay-1", "failure", "")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, res.Payment.Status)
	})

	t.Run("in-flight status is acknowledged", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(pendingPayment(), nil)

		res, err := f.svc.ProcessCallback(context.Background(), "pay-1", "processing", "")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, res.Payment.Status)
	})

	t.Run("unknown status", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "pay-1").Return(pendingPayment(), nil)

		_, err := f.svc.ProcessCallback(context.Background(), "pay-1", "refunded_partially", "")
		assert.True(t, apperr.IsKind(err, apperr.KindConflict))
	})

	t.Run("unknown payment", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetByID(gomock.Any(), "ghost").Return(Payment{}, ErrNotFound)

		_, err := f.svc.ProcessCallback(context.Background(), "ghost", "success", "")
		assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	})
}

func TestService_ResolveProviderPayment(t *testing.T) {
	f := newFixture(t)
	f.repo.EXPECT().GetByInvoiceID(gomock.Any(), "inv-9").Return(Payment{}, ErrNotFound)
	f.repo.EXPECT().GetByOrderID(gomock.Any(), "order_1").Return(pendingPayment(), nil)

	id, err := f.svc.ResolveProviderPayment(context.Background(), "inv-9", "order_1")
	require.NoError(t, err)
	assert.Equal(t, "pay-1", id)

	f.repo.EXPECT().GetByInvoiceID(gomock.Any(), "inv-0").Return(Payment{}, ErrNotFound)
	_, err = f.svc.ResolveProviderPayment(context.Background(), "inv-0", "")
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		in       string
		status   Status
		terminal bool
		ok       bool
	}{
		{"success", StatusSuccess, true, true},
		{"failure", StatusFailed, true, true},
		{"reversed", StatusFailed, true, true},
		{"expired", StatusExpired, true, true},
		{"processing", StatusPending, false, true},
		{"bogus", "", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			s, terminal, ok := MapProviderStatus(tc.in)
			assert.Equal(t, tc.status, s)
			assert.Equal(t, tc.terminal, terminal)
			assert.Equal(t, tc.ok, ok)
		})
	}
}
