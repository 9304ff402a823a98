package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"topdivers/backend/internal/http/middleware"
	"topdivers/backend/internal/integrations/easykash"
	"topdivers/backend/internal/invoicing"
	"topdivers/backend/internal/models"
	"topdivers/backend/internal/pricing"
	"topdivers/backend/internal/repository"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

type createInvoiceRequest struct {
	BuyerName      string          `json:"buyerName" validate:"required"`
	BuyerEmail     string          `json:"buyerEmail" validate:"required,email"`
	BuyerPhone     string          `json:"buyerPhone" validate:"required"`
	Description    string          `json:"description"`
	Activity       string          `json:"activity" validate:"required"`
	TripID         *int64          `json:"tripId"`
	CourseID       *int64          `json:"courseId"`
	Date           string          `json:"date"`
	Adults         int             `json:"adults"`
	Children       int             `json:"children"`
	PickupLocation string          `json:"pickupLocation"`
	PickupTime     string          `json:"pickupTime"`
	CouponCode     string          `json:"couponCode"`
	Amount         decimal.Decimal `json:"amount"`
	InvoiceType    string          `json:"invoiceType"`
}

type setPickedUpRequest struct {
	PickedUp *bool `json:"pickedUp"`
}

type listInvoicesResponse struct {
	Items []models.Invoice `json:"items"`
	Total int              `json:"total"`
}

func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if !h.createLimiter.Allow(strconv.FormatInt(userID, 10)) {
		logger.Warn("create_invoice", "status", "rate_limited")
		writeError(w, http.StatusTooManyRequests, "too many invoice attempts, slow down")
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("create_invoice", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "buyerName, buyerEmail, buyerPhone and activity are required")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.invoices.CreateInvoice(ctx, invoicing.CreateInvoiceInput{
		UserID:          userID,
		BuyerName:       req.BuyerName,
		BuyerEmail:      req.BuyerEmail,
		BuyerPhone:      req.BuyerPhone,
		Description:     req.Description,
		Activity:        req.Activity,
		TripID:          req.TripID,
		CourseID:        req.CourseID,
		Date:            req.Date,
		Adults:          req.Adults,
		Children:        req.Children,
		PickupLocation:  req.PickupLocation,
		PickupTime:      req.PickupTime,
		CouponCode:      req.CouponCode,
		SubmittedAmount: req.Amount,
		InvoiceType:     req.InvoiceType,
	})
	if err != nil {
		h.handleInvoicingError(logger, w, "create_invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, invoice)
}

func (h *Handler) GetMyInvoice(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.invoices.InvoiceForUser(ctx, userID, invoiceID)
	if err != nil {
		h.handleInvoicingError(logger, w, "get_invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) ListMyInvoices(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	items, total, err := h.repo.ListInvoices(ctx, models.InvoiceListFilter{
		UserID: &userID,
		Status: r.URL.Query().Get("status"),
		Skip:   parseIntQuery(r, "skip", 0),
		Limit:  parseIntQuery(r, "limit", 50),
	})
	if err != nil {
		logger.Error("list_my_invoices", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, listInvoicesResponse{Items: items, Total: total})
}

func (h *Handler) GetMyLastInvoice(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.invoices.LastInvoiceForUser(ctx, userID)
	if err != nil {
		h.handleInvoicingError(logger, w, "get_last_invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) GetMyInvoiceSummary(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	summary, err := h.repo.InvoiceSummary(ctx, &userID)
	if err != nil {
		logger.Error("my_invoice_summary", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetInvoiceByReference(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	reference := strings.TrimSpace(chi.URLParam(r, "customerReference"))
	if reference == "" {
		writeError(w, http.StatusBadRequest, "invalid customer reference")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.invoices.InvoiceByReference(ctx, reference)
	if err != nil {
		h.handleInvoicingError(logger, w, "get_invoice_by_reference", err)
		return
	}
	if invoice.UserID != userID && !middleware.IsAdminFromContext(r.Context()) {
		logger.Warn("get_invoice_by_reference", "status", "forbidden", "invoice_id", invoice.ID)
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

// EasyKashCallback receives gateway webhooks. There is no auth on the route;
// the payload signature is the trust boundary.
func (h *Handler) EasyKashCallback(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	var payload easykash.CallbackPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		logger.Warn("easykash_callback", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.invoices.ProcessCallback(ctx, payload)
	if err != nil {
		h.handleInvoicingError(logger, w, "easykash_callback", err)
		return
	}

	logger.Info("easykash_callback",
		"status", "processed",
		"invoice_id", invoice.ID,
		"invoice_status", invoice.Status,
		"easykash_reference", payload.EasykashRef,
	)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "status": invoice.Status})
}

func (h *Handler) ListAdminInvoices(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	var userID *int64
	if raw := strings.TrimSpace(r.URL.Query().Get("user_id")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = &parsed
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	items, total, err := h.repo.ListInvoices(ctx, models.InvoiceListFilter{
		UserID: userID,
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
		Skip:   parseIntQuery(r, "skip", 0),
		Limit:  parseIntQuery(r, "limit", 50),
	})
	if err != nil {
		logger.Error("admin_list_invoices", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, listInvoicesResponse{Items: items, Total: total})
}

func (h *Handler) GetAdminInvoiceSummary(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	summary, err := h.repo.InvoiceSummary(ctx, nil)
	if err != nil {
		logger.Error("admin_invoice_summary", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetAdminInvoice(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.invoices.Invoice(ctx, invoiceID)
	if err != nil {
		h.handleInvoicingError(logger, w, "admin_get_invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) UpdateAdminInvoice(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	var patch models.InvoiceAdminPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		logger.Warn("admin_update_invoice", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !hasAnyInvoicePatchField(patch) {
		writeError(w, http.StatusBadRequest, "at least one field is required")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.repo.UpdateInvoiceAdmin(ctx, invoiceID, patch)
	if err != nil {
		h.handleInvoicingError(logger, w, "admin_update_invoice", err)
		return
	}
	logger.Info("admin_update_invoice", "status", "updated", "invoice_id", invoice.ID, "invoice_status", invoice.Status)
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) DeleteAdminInvoice(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteInvoice(ctx, invoiceID); err != nil {
		h.handleInvoicingError(logger, w, "admin_delete_invoice", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) SetAdminInvoicePickedUp(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || invoiceID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid invoice id")
		return
	}

	var req setPickedUpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("admin_set_picked_up", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PickedUp == nil {
		writeError(w, http.StatusBadRequest, "pickedUp is required")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	invoice, err := h.repo.SetInvoicePickedUp(ctx, invoiceID, *req.PickedUp)
	if err != nil {
		h.handleInvoicingError(logger, w, "admin_set_picked_up", err)
		return
	}
	writeJSON(w, http.StatusOK, invoice)
}

func (h *Handler) handleInvoicingError(logger *slog.Logger, w http.ResponseWriter, action string, err error) {
	var pricingErr *pricing.Error
	switch {
	case errors.Is(err, invoicing.ErrTripNotFound),
		errors.Is(err, invoicing.ErrCourseNotFound),
		errors.Is(err, invoicing.ErrCouponNotFound),
		errors.Is(err, invoicing.ErrInvoiceNotFound),
		errors.Is(err, pgx.ErrNoRows):
		logger.Warn(action, "status", "not_found", "error", err)
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, invoicing.ErrNotInvoiceOwner):
		logger.Warn(action, "status", "forbidden", "error", err)
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, invoicing.ErrSignatureMismatch):
		logger.Warn(action, "status", "signature_mismatch")
		writeError(w, http.StatusForbidden, "signature mismatch")
	case errors.Is(err, repository.ErrCouponCodeTaken):
		logger.Warn(action, "status", "conflict", "error", err)
		writeError(w, http.StatusConflict, "coupon code already taken")
	case errors.As(err, &pricingErr):
		logger.Warn(action, "status", "validation_failed", "reason", pricingErr.Reason, "error", err)
		writeError(w, http.StatusBadRequest, pricingErr.Message)
	case errors.Is(err, invoicing.ErrAmountMismatch),
		errors.Is(err, invoicing.ErrUnsupportedActivity),
		errors.Is(err, invoicing.ErrUnsupportedInvoiceType),
		errors.Is(err, invoicing.ErrInvoiceStateNotAllowed):
		logger.Warn(action, "status", "invalid_request", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, invoicing.ErrPaymentSessionFailed):
		logger.Error(action, "status", "gateway_error", "error", err)
		writeError(w, http.StatusBadRequest, "payment session failed")
	default:
		logger.Error(action, "status", "internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func hasAnyInvoicePatchField(p models.InvoiceAdminPatch) bool {
	return p.BuyerName != nil ||
		p.BuyerEmail != nil ||
		p.BuyerPhone != nil ||
		p.Description != nil ||
		p.PaymentMethod != nil ||
		p.Status != nil ||
		p.PickedUp != nil ||
		p.PickupLocation != nil ||
		p.PickupTime != nil
}

func parseIntQuery(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
