package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stefabooks/internal/book"
	"stefabooks/internal/catalog"
	"stefabooks/internal/config"
	"stefabooks/internal/jobs"
	"stefabooks/internal/logger"
	"stefabooks/internal/notify"
	"stefabooks/internal/payment"
	"stefabooks/internal/plan"
	"stefabooks/internal/platform/monobank"
	"stefabooks/internal/platform/telegram"
	"stefabooks/internal/rental"
	"stefabooks/internal/subscription"
	"stefabooks/internal/user"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var alerter logger.Alerter
	if tg := telegram.NewClient(cfg.TelegramBotToken, cfg.TelegramChatID); tg.Enabled() {
		alerter = tg
	}
	log := logger.New(os.Stdout, cfg.LogLevel, alerter)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := openDB(ctx, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer dbPool.Close()
	log.Info("database connection OK", "dsn", config.RedactDSN(cfg.DBDSN))

	plans, err := plan.Load(cfg.PlansFile)
	if err != nil {
		return err
	}

	userService := user.NewService(user.NewPostgresRepo(dbPool, cfg.DBTimeout))

	catalogStore := catalog.NewStore(book.NewPostgresRepo(dbPool, cfg.DBTimeout), cfg.CatalogTTL, log)
	go catalogStore.Start(ctx)

	mono := monobank.NewClient(monobank.Config{
		Token:      cfg.Monobank.Token,
		BaseURL:    cfg.Monobank.BaseURL,
		PublicKey:  cfg.Monobank.PublicKey,
		RPS:        cfg.Monobank.RPS,
		MaxRetries: cfg.Monobank.MaxRetries,

		KeyRefreshInterval: cfg.Monobank.KeyRefresh,
	})
	webhookURL := strings.TrimRight(cfg.PublicBaseURL, "/") + "/v1/payments/callback"
	paymentService := payment.NewService(
		payment.NewPostgresRepo(dbPool, cfg.DBTimeout),
		payment.NewMonobankProvider(mono, cfg.PaymentRedirectURL, webhookURL),
		payment.Config{TTL: cfg.PaymentTTL},
	)

	var notifier subscription.Notifier = notify.Noop{}
	if cfg.SES.Enabled() {
		ses, err := notify.NewSES(ctx, cfg.SES, userService)
		if err != nil {
			return err
		}
		notifier = ses
	} else {
		log.Warn("SES not configured, activation emails disabled")
	}

	subscriptionService := subscription.NewService(
		subscription.NewPostgresRepo(dbPool, plans, cfg.DBTimeout), plans, paymentService, notifier, nil)
	paymentService.SetActivator(subscriptionService)

	rentalService := rental.NewService(
		rental.NewPostgresRepo(dbPool, plans, cfg.DBTimeout),
		catalogStore,
		rental.Config{Period: cfg.RentalPeriod},
	)

	runner := jobs.NewRunner(jobs.NewPostgresRepo(dbPool, cfg.DBTimeout), subscriptionService, paymentService, nil)

	a := &app{
		cfg:           cfg,
		log:           log,
		db:            dbPool,
		users:         userService,
		catalog:       catalogStore,
		plans:         plans,
		payments:      paymentService,
		verifier:      mono,
		subscriptions: subscriptionService,
		rentals:       rentalService,
		jobs:          runner,
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr,
		Handler:      a.routes(ctx),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openDB(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot create db pool: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("cannot ping database (%s): %w", config.RedactDSN(dsn), err)
	}
	return pool, nil
}
