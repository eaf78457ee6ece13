package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"nxtrix.com/founders/founders"
	"nxtrix.com/founders/handlers"
	"nxtrix.com/founders/internal/config"
	"nxtrix.com/founders/internal/email"
	"nxtrix.com/founders/internal/logger"
	"nxtrix.com/founders/internal/version"
	"nxtrix.com/founders/payments"
	"nxtrix.com/founders/storage"
)

type app struct {
	server *handlers.Server
	store  storage.Storage
}

// newApp builds the service graph from configuration.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := storage.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var gatewayOpts []payments.Option
	if cfg.StripeAPIBase != "" {
		gatewayOpts = append(gatewayOpts, payments.WithBaseURL(cfg.StripeAPIBase))
	}
	gateway := payments.NewStripeGateway(cfg.StripeSecret, gatewayOpts...)

	mailer, err := email.New(email.Settings{
		Service:        cfg.EmailService,
		From:           cfg.EmailFrom,
		SendgridAPIKey: cfg.SendgridAPIKey,
		SMTPHost:       cfg.SMTPHost,
		SMTPPort:       cfg.SMTPPort,
		SMTPUsername:   cfg.SMTPUsername,
		SMTPPassword:   cfg.SMTPPassword,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("email: %w", err)
	}

	svc := founders.New(store, gateway, payments.Catalog(cfg.Prices),
		founders.WithTrialPeriod(cfg.TrialPeriod),
		founders.WithRedirectURL(cfg.SuccessRedirectURL),
		founders.WithMailer(mailer),
	)

	server := handlers.NewHttpServer(svc, store, handlers.Options{
		AllowedOrigins:      cfg.AllowedOrigins,
		StripeWebhookSecret: cfg.StripeWebhookSecret,
		RateLimitPerMinute:  cfg.RateLimitPerMinute,
	})

	return &app{server: server, store: store}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func main() {
	if err := version.Load("VERSION"); err != nil {
		log.Printf("read VERSION: %v", err)
	}

	godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Release:          version.Version,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.server,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	pruneDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.server.PruneRateLimits()
			case <-pruneDone:
				return
			}
		}
	}()
	defer close(pruneDone)

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Founders API starting", logger.Fields{
			"version":         version.Version,
			"port":            cfg.Port,
			"store_privilege": string(cfg.StorePrivilege),
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-stopCh:
		logger.Info("Shutting down", logger.Fields{"signal": sig.String()})
	case err := <-serverErr:
		logger.Error("Server error", logger.Fields{"error": err.Error()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", logger.Fields{"error": err.Error()})
	}
}
