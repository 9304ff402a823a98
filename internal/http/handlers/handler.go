package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"topdivers/backend/internal/config"
	authmw "topdivers/backend/internal/http/middleware"
	"topdivers/backend/internal/invoicing"
	"topdivers/backend/internal/rate"
	"topdivers/backend/internal/repository"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

type Handler struct {
	repo          *repository.Repository
	invoices      *invoicing.Service
	cfg           *config.Config
	logger        *slog.Logger
	validator     *validator.Validate
	createLimiter *rate.KeyedLimiter
}

func New(repo *repository.Repository, invoices *invoicing.Service, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:      repo,
		invoices:  invoices,
		cfg:       cfg,
		logger:    logger,
		validator: validator.New(),
		// Each invoice creation may open a paid gateway session.
		createLimiter: rate.NewKeyedLimiter(10, time.Minute),
	}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

func (h *Handler) loggerForRequest(r *http.Request) *slog.Logger {
	logger := h.logger
	if logger == nil {
		return slog.Default()
	}
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if userID, ok := authmw.UserIDFromContext(r.Context()); ok {
		logger = logger.With("user_id", userID)
	}
	return logger
}
