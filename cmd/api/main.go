package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"topdivers/backend/internal/config"
	"topdivers/backend/internal/db"
	"topdivers/backend/internal/http/handlers"
	"topdivers/backend/internal/http/middleware"
	"topdivers/backend/internal/integrations/easykash"
	"topdivers/backend/internal/invoicing"
	"topdivers/backend/internal/logging"
	"topdivers/backend/internal/repository"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, cleanup, err := logging.New(cfg.Logging)
	if err != nil {
		log.Fatalf("log error: %v", err)
	}
	defer func() {
		_ = cleanup()
	}()
	logger = logger.With("service", "api")
	slog.SetDefault(logger)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("db error", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repository.New(pool)
	gateway := easykash.NewClient(easykash.Config{
		BaseURL:     cfg.Easykash.BaseURL,
		PrivateKey:  cfg.Easykash.PrivateKey,
		SecretKey:   cfg.Easykash.SecretKey,
		RedirectURL: cfg.Payments.RedirectURL,
	}, nil, logger)
	invoices := invoicing.NewService(repo, gateway, invoicing.Config{
		Currency:        cfg.Payments.Currency,
		AmountTolerance: cfg.Payments.AmountTolerance,
		WebhookSecret:   gateway.SecretKey(),
	}, logger)

	h := handlers.New(repo, invoices, cfg, logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(10 * time.Second))
	r.Use(corsMiddleware(cfg.CORSAllowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/api/auth/admin/login", h.AdminLogin)
	r.Post("/api/invoices/webhook/easykash-callback", h.EasyKashCallback)

	r.Get("/api/trips", h.ListTrips)
	r.Get("/api/trips/{id}", h.GetTrip)
	r.Get("/api/courses", h.ListCourses)
	r.Get("/api/courses/{id}", h.GetCourse)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		r.Post("/api/invoices", h.CreateInvoice)
		r.Get("/api/invoices/me", h.ListMyInvoices)
		r.Get("/api/invoices/me/last", h.GetMyLastInvoice)
		r.Get("/api/invoices/me/summary", h.GetMyInvoiceSummary)
		r.Get("/api/invoices/by-reference/{customerReference}", h.GetInvoiceByReference)
		r.Get("/api/invoices/{id}", h.GetMyInvoice)
		r.Post("/api/coupons/apply", h.ApplyCoupon)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(cfg.JWTSecret))
		r.Use(middleware.RequireAdmin)
		r.Get("/api/invoices/admin/all", h.ListAdminInvoices)
		r.Get("/api/invoices/admin/summary", h.GetAdminInvoiceSummary)
		r.Get("/api/invoices/{id}/admin", h.GetAdminInvoice)
		r.Put("/api/invoices/admin/{id}", h.UpdateAdminInvoice)
		r.Delete("/api/invoices/admin/{id}", h.DeleteAdminInvoice)
		r.Patch("/api/invoices/admin/{id}/picked-up", h.SetAdminInvoicePickedUp)
		r.Post("/api/coupons/admin", h.CreateAdminCoupon)
		r.Get("/api/coupons/admin", h.ListAdminCoupons)
		r.Get("/api/coupons/admin/{id}", h.GetAdminCoupon)
		r.Put("/api/coupons/admin/{id}", h.UpdateAdminCoupon)
		r.Delete("/api/coupons/admin/{id}", h.DeleteAdminCoupon)
		r.Get("/api/coupons/admin/{id}/stats", h.GetAdminCouponStats)
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		logger.Info("api_listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutdown", "service", "api")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctxShutdown)
}

func corsMiddleware(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := allowOrigin(allowed, r.Header.Get("Origin"))
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
				if origin != "*" {
					w.Header().Add("Vary", "Origin")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func allowOrigin(allowed []string, origin string) string {
	for _, a := range allowed {
		if a == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(a, origin) {
			return origin
		}
	}
	return ""
}
