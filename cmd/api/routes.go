package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"stefabooks/internal/access"
	"stefabooks/internal/catalog"
	"stefabooks/internal/config"
	"stefabooks/internal/httpx"
	"stefabooks/internal/jobs"
	"stefabooks/internal/payment"
	"stefabooks/internal/plan"
	"stefabooks/internal/rental"
	"stefabooks/internal/subscription"
	"stefabooks/internal/user"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// app holds the wired services the HTTP surface is built from.
type app struct {
	cfg           *config.Config
	log           *slog.Logger
	db            pinger
	users         *user.Service
	catalog       *catalog.Store
	plans         *plan.Catalog
	payments      *payment.Service
	verifier      payment.WebhookVerifier
	subscriptions *subscription.Service
	rentals       *rental.Service
	jobs          *jobs.Runner
}

func (a *app) routes(ctx context.Context) http.Handler {
	catalogHandler := catalog.NewHTTPHandler(a.catalog)
	catalogInternal := catalog.NewInternalHandler(a.catalog)
	planHandler := plan.NewHTTPHandler(a.plans)
	userHandler := user.NewHTTPHandler(a.users)
	paymentHandler := payment.NewHTTPHandler(a.payments, a.verifier, a.cfg.RentalPrice)
	subscriptionHandler := subscription.NewHTTPHandler(a.subscriptions)
	rentalHandler := rental.NewHTTPHandler(a.rentals)
	jobsHandler := jobs.NewHTTPHandler(a.jobs)

	authn := httpx.AuthMiddleware(a.cfg.JWTSecret, a.users)
	internal := httpx.InternalSecretMiddleware(a.cfg.InternalSecret)
	authed := func(h http.HandlerFunc, caps ...access.Capability) http.Handler {
		mws := []func(http.Handler) http.Handler{authn}
		for _, c := range caps {
			mws = append(mws, httpx.RequireCapability(c))
		}
		return httpx.Chain(h, mws...)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()
		if err := a.db.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// Public
	mux.HandleFunc("GET /v1/books", catalogHandler.List)
	mux.HandleFunc("GET /v1/books/{id}", catalogHandler.GetByID)
	mux.HandleFunc("GET /v1/plans", planHandler.List)
	mux.HandleFunc("POST /v1/payments/callback", paymentHandler.Callback)

	// Authenticated
	mux.Handle("GET /v1/me", authed(userHandler.GetCurrentUser))
	mux.Handle("POST /v1/payments", authed(paymentHandler.Create, access.CapMakePayments))
	mux.Handle("GET /v1/payments/{id}", authed(paymentHandler.Get))
	mux.Handle("POST /v1/subscriptions", authed(subscriptionHandler.Checkout, access.CapManageOwnSubscription))
	mux.Handle("GET /v1/subscriptions/me", authed(subscriptionHandler.ListMine))
	mux.Handle("POST /v1/subscriptions/{id}/cancel", authed(subscriptionHandler.Cancel))
	mux.Handle("POST /v1/rentals", authed(rentalHandler.Checkout, access.CapRentBooks))
	mux.Handle("GET /v1/rentals/me", authed(rentalHandler.ListMine))
	mux.Handle("POST /v1/rentals/{id}/return", authed(rentalHandler.Return))

	// Admin
	mux.Handle("PATCH /v1/admin/users/{id}/role", authed(userHandler.UpdateRole, access.CapManageUsers))
	mux.Handle("PATCH /v1/admin/users/{id}/status", authed(userHandler.UpdateStatus, access.CapManageUsers))
	mux.Handle("POST /v1/admin/jobs/expire", authed(jobsHandler.Expire, access.CapRunJobs))

	// Internal
	mux.Handle("POST /internal/jobs/expire", internal(http.HandlerFunc(jobsHandler.Expire)))
	mux.Handle("POST /internal/catalog/invalidate", internal(http.HandlerFunc(catalogInternal.Invalidate)))

	rateLimiter := httpx.NewRateLimitMiddleware(ctx, a.cfg.RateLimitRPS, a.cfg.RateLimitBurst, a.cfg.TrustedProxies)
	return httpx.Chain(mux,
		httpx.RequestIDMiddleware(a.log),
		httpx.AccessLogMiddleware,
		httpx.RecoveryMiddleware,
		httpx.CORSMiddleware(a.cfg.CORSOrigins),
		httpx.SecurityHeadersMiddleware(a.cfg.EnableHSTS),
		httpx.RequestSizeLimitMiddleware(a.cfg.MaxBodyBytes),
		rateLimiter.Middleware,
	)
}
