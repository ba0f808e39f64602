package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"

	"stefabooks/internal/access"
	"stefabooks/internal/book"
	"stefabooks/internal/catalog"
	"stefabooks/internal/config"
	"stefabooks/internal/jobs"
	"stefabooks/internal/payment"
	"stefabooks/internal/plan"
	"stefabooks/internal/rental"
	"stefabooks/internal/subscription"
	"stefabooks/internal/testutil"
	"stefabooks/internal/user"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubVerifier struct{}

func (stubVerifier) VerifyWebhook(context.Context, []byte, string) error { return nil }

type stubRuns struct{}

func (stubRuns) CreateRun(context.Context, *jobs.Run) (int64, error) { return 1, nil }
func (stubRuns) UpdateRun(context.Context, *jobs.Run) error          { return nil }

type testApp struct {
	handler  http.Handler
	users    *user.MockRepository
	rentals  *rental.MockRepository
	subs     *subscription.MockRepository
	payments *payment.MockRepository
}

func newTestApp(t *testing.T, db pinger) *testApp {
	ctrl := gomock.NewController(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	log := slog.New(slog.NewJSONHandler(io.Discard, nil))

	cfg := &config.Config{
		JWTSecret:      testutil.TestSecret,
		InternalSecret: "internal",
		RateLimitRPS:   1000,
		RateLimitBurst: 1000,
		MaxBodyBytes:   1 << 20,
		RentalPrice:    5000,
	}

	userRepo := user.NewMockRepository(ctrl)
	bookRepo := book.NewMockRepository(ctrl)
	bookRepo.EXPECT().ListAll(gomock.Any()).Return([]book.Book{{ID: testutil.TestBookID, Title: "Коза-дереза", QtyTotal: 2, QtyAvailable: 1}}, nil).AnyTimes()
	rentalRepo := rental.NewMockRepository(ctrl)

	plans := plan.Default()
	store := catalog.NewStore(bookRepo, time.Hour, log)
	paymentRepo := payment.NewMockRepository(ctrl)
	subRepo := subscription.NewMockRepository(ctrl)
	payments := payment.NewService(paymentRepo, payment.NewMockProvider(ctrl), payment.Config{})
	subs := subscription.NewService(subRepo, plans, payments, nil, nil)
	rentals := rental.NewService(rentalRepo, store, rental.Config{})

	a := &app{
		cfg:           cfg,
		log:           log,
		db:            db,
		users:         user.NewService(userRepo),
		catalog:       store,
		plans:         plans,
		payments:      payments,
		verifier:      stubVerifier{},
		subscriptions: subs,
		rentals:       rentals,
		jobs:          jobs.NewRunner(stubRuns{}, subs, payments, nil),
	}
	return &testApp{handler: a.routes(ctx), users: userRepo, rentals: rentalRepo, subs: subRepo, payments: paymentRepo}
}

func (ta *testApp) serve(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ta.handler.ServeHTTP(w, r)
	return w
}

func TestRoutes_Public(t *testing.T) {
	ta := newTestApp(t, stubPinger{})

	w := ta.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = ta.serve(httptest.NewRequest(http.MethodGet, "/v1/plans", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "premium")

	w = ta.serve(httptest.NewRequest(http.MethodGet, "/v1/books?q=%D0%BA%D0%BE%D0%B7%D0%B0", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Коза-дереза")

	w = ta.serve(httptest.NewRequest(http.MethodGet, "/books", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRoutes_ReadyzReportsDB(t *testing.T) {
	ta := newTestApp(t, stubPinger{err: errors.New("down")})
	w := ta.serve(httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRoutes_Auth(t *testing.T) {
	ta := newTestApp(t, stubPinger{})
	token := testutil.GenerateTestToken(testutil.TestSecret, testutil.TestUserID)
	member := user.User{ID: testutil.TestUserID, Role: access.RoleUser, Status: access.StatusActive}

	t.Run("missing token", func(t *testing.T) {
		w := ta.serve(testutil.NewRequest(http.MethodPost, "/v1/payments", map[string]interface{}{"amount": 100}))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := testutil.GenerateExpiredToken(testutil.TestSecret, testutil.TestUserID)
		w := ta.serve(testutil.NewRequestWithAuth(http.MethodGet, "/v1/rentals/me", nil, expired))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("member lists rentals", func(t *testing.T) {
		ta.users.EXPECT().GetByID(gomock.Any(), testutil.TestUserID).Return(member, nil)
		ta.rentals.EXPECT().ListByUser(gomock.Any(), testutil.TestUserID).Return([]rental.Rental{}, nil)

		w := ta.serve(testutil.NewRequestWithAuth(http.MethodGet, "/v1/rentals/me", nil, token))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("member cannot administer users", func(t *testing.T) {
		ta.users.EXPECT().GetByID(gomock.Any(), testutil.TestUserID).Return(member, nil)

		w := ta.serve(testutil.NewRequestWithAuth(http.MethodPatch, "/v1/admin/users/x/role", map[string]string{"role": "admin"}, token))
		res := testutil.RecordHTTPResponse(w)
		assert.Equal(t, http.StatusForbidden, res.Code)
		assert.Equal(t, "FORBIDDEN", res.ErrorCode())
	})

	t.Run("inactive member cannot rent", func(t *testing.T) {
		inactive := member
		inactive.Status = access.StatusInactive
		ta.users.EXPECT().GetByID(gomock.Any(), testutil.TestUserID).Return(inactive, nil)

		w := ta.serve(testutil.NewRequestWithAuth(http.MethodPost, "/v1/rentals", map[string]string{"book_id": testutil.TestBookID}, token))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestRoutes_Internal(t *testing.T) {
	ta := newTestApp(t, stubPinger{})

	w := ta.serve(httptest.NewRequest(http.MethodPost, "/internal/catalog/invalidate", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	r := httptest.NewRequest(http.MethodPost, "/internal/catalog/invalidate", nil)
	r.Header.Set("X-Internal-Secret", "internal")
	w = ta.serve(r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRoutes_AdminJobs(t *testing.T) {
	ta := newTestApp(t, stubPinger{})

	t.Run("moderator is refused", func(t *testing.T) {
		token := testutil.GenerateTestToken(testutil.TestSecret, testutil.TestUserID)
		ta.users.EXPECT().GetByID(gomock.Any(), testutil.TestUserID).
			Return(user.User{ID: testutil.TestUserID, Role: access.RoleModerator, Status: access.StatusActive}, nil)

		w := ta.serve(testutil.NewRequestWithAuth(http.MethodPost, "/v1/admin/jobs/expire", nil, token))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("admin runs the sweep", func(t *testing.T) {
		token := testutil.GenerateTestToken(testutil.TestSecret, testutil.TestAdminID)
		ta.users.EXPECT().GetByID(gomock.Any(), testutil.TestAdminID).
			Return(user.User{ID: testutil.TestAdminID, Role: access.RoleAdmin, Status: access.StatusActive}, nil)
		ta.subs.EXPECT().ExpireOverdue(gomock.Any(), gomock.Any()).Return(int64(2), nil)
		ta.payments.EXPECT().ExpireStale(gomock.Any(), gomock.Any()).Return(int64(1), nil)

		w := ta.serve(testutil.NewRequestWithAuth(http.MethodPost, "/v1/admin/jobs/expire", nil, token))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"subscriptions_expired":2`)
	})
}
