package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/easytips/easytips/internal/gateway"
	"github.com/easytips/easytips/internal/handlers"
	"github.com/easytips/easytips/internal/notify"
	"github.com/easytips/easytips/internal/repository"
	"github.com/easytips/easytips/internal/service"
	"github.com/easytips/easytips/pkg/config"
	"github.com/easytips/easytips/pkg/database"
	"github.com/easytips/easytips/pkg/events"
	"github.com/easytips/easytips/pkg/logger"
	mw "github.com/easytips/easytips/pkg/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := database.ConnectRedis(cfg.Redis)
	if err != nil {
		logger.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	txnRepo := repository.NewTransactionRepository(pool)
	verifyRepo := repository.NewVerifyRepository(redisClient)

	stripeGateway := gateway.NewStripeGateway(cfg.Stripe)

	var notifier notify.Service
	switch {
	case cfg.Notify.DevMode:
		notifier = notify.NewDevNotifier()
	case cfg.Notify.PublishToNATS:
		notifier = notify.NewNATSNotifier(eventBus)
	default:
		notifier = notify.NewMailerSendNotifier(cfg.Notify.MailerSendKey, cfg.Notify.FromName, cfg.Notify.FromEmail)
	}

	authService := service.NewAuthService(userRepo, sessionRepo, verifyRepo, notifier, eventBus, cfg)
	paymentService := service.NewPaymentService(userRepo, txnRepo, stripeGateway, eventBus, cfg)

	h := handlers.NewHandlers(authService, paymentService, stripeGateway, cfg)

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("api"))
	r.Use(mw.Logging)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.Frontend.BaseURL, "http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(mw.Health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/send-code", h.SendCode)
		r.Post("/verify-code", h.VerifyCode)
		r.Post("/guest", h.GuestLogin)
		r.Post("/logout", h.Logout)

		r.Route("/org", func(r chi.Router) {
			r.Post("/login", h.OrganizationLogin)
			r.Post("/register", h.RegisterOrganization)
		})
	})

	r.Route("/profile", func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Get("/", h.GetProfile)
		r.Put("/", h.UpdateProfile)
		r.Post("/complete", h.CompleteProfile)
		r.Get("/status", h.ProfileStatus)
	})

	// Public tip-form lookup
	r.Get("/employees/{id}", h.GetEmployee)

	r.Route("/payments", func(r chi.Router) {
		// Gateway deliveries authenticate via signature, not session.
		r.Post("/webhook", h.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(h.RequireSession)
			r.Post("/tips", h.InitiateTip)
			r.Post("/withdraw", h.Withdraw)
			r.Get("/balance", h.Balance)
			r.Get("/transactions", h.Transactions)
			r.Get("/statistics", h.Statistics)
			r.Get("/qr", h.TipFormURL)

			r.With(h.RequireKind("organization")).
				Get("/organization/statistics", h.OrganizationStatistics)
		})
	})

	r.Route("/org", func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Use(h.RequireKind("organization"))
		r.Post("/employees", h.CreateEmployee)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting API server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		logger.Info("Shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("API server error", "error", err)
		os.Exit(1)
	}
}
