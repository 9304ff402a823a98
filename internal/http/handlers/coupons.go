package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"topdivers/backend/internal/http/middleware"
	"topdivers/backend/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type createCouponRequest struct {
	Code               string          `json:"code" validate:"required"`
	Activity           string          `json:"activity" validate:"required"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	CanUsedUpTo        int             `json:"canUsedUpTo"`
	UserLimit          int             `json:"userLimit"`
	IsActive           *bool           `json:"isActive"`
	ExpireDate         *time.Time      `json:"expireDate"`
}

type applyCouponRequest struct {
	Code     string          `json:"code" validate:"required"`
	Activity string          `json:"activity" validate:"required"`
	Amount   decimal.Decimal `json:"amount"`
}

type listCouponsResponse struct {
	Items []models.Coupon `json:"items"`
}

func (h *Handler) CreateAdminCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	var req createCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("admin_create_coupon", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "code and activity are required")
		return
	}
	if !validCouponActivity(req.Activity) {
		writeError(w, http.StatusBadRequest, "activity must be trip, course or all")
		return
	}
	if !validCouponPercentage(req.DiscountPercentage) {
		writeError(w, http.StatusBadRequest, "discountPercentage must be between 0 and 100")
		return
	}
	if req.CanUsedUpTo <= 0 {
		writeError(w, http.StatusBadRequest, "canUsedUpTo must be greater than zero")
		return
	}
	// userLimit zero means no per-user cap.
	if req.UserLimit < 0 {
		writeError(w, http.StatusBadRequest, "userLimit cannot be negative")
		return
	}

	// New coupons are live unless the request says otherwise.
	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	coupon, err := h.repo.CreateCoupon(ctx, models.CouponInput{
		Code:               req.Code,
		Activity:           req.Activity,
		DiscountPercentage: req.DiscountPercentage,
		CanUsedUpTo:        req.CanUsedUpTo,
		UserLimit:          req.UserLimit,
		IsActive:           isActive,
		ExpireDate:         req.ExpireDate,
	})
	if err != nil {
		h.handleInvoicingError(logger, w, "admin_create_coupon", err)
		return
	}

	logger.Info("admin_create_coupon", "status", "created", "coupon_id", coupon.ID, "code", coupon.Code)
	writeJSON(w, http.StatusCreated, coupon)
}

func (h *Handler) ListAdminCoupons(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	items, err := h.repo.ListCoupons(ctx)
	if err != nil {
		logger.Error("admin_list_coupons", "status", "db_error", "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, listCouponsResponse{Items: items})
}

func (h *Handler) GetAdminCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	couponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || couponID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	coupon, err := h.repo.CouponByID(ctx, couponID)
	if err != nil {
		h.handleInvoicingError(logger, w, "admin_get_coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, coupon)
}

func (h *Handler) UpdateAdminCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	couponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || couponID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	var patch models.CouponPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		logger.Warn("admin_update_coupon", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if !hasAnyCouponPatchField(patch) {
		writeError(w, http.StatusBadRequest, "at least one field is required")
		return
	}
	if patch.Activity != nil && !validCouponActivity(*patch.Activity) {
		writeError(w, http.StatusBadRequest, "activity must be trip, course or all")
		return
	}
	if patch.DiscountPercentage != nil && !validCouponPercentage(*patch.DiscountPercentage) {
		writeError(w, http.StatusBadRequest, "discountPercentage must be between 0 and 100")
		return
	}
	if patch.CanUsedUpTo != nil && *patch.CanUsedUpTo <= 0 {
		writeError(w, http.StatusBadRequest, "canUsedUpTo must be greater than zero")
		return
	}
	if patch.UserLimit != nil && *patch.UserLimit < 0 {
		writeError(w, http.StatusBadRequest, "userLimit cannot be negative")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	coupon, err := h.repo.UpdateCoupon(ctx, couponID, patch)
	if err != nil {
		h.handleInvoicingError(logger, w, "admin_update_coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, coupon)
}

func (h *Handler) DeleteAdminCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	couponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || couponID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	if err := h.repo.DeleteCoupon(ctx, couponID); err != nil {
		h.handleInvoicingError(logger, w, "admin_delete_coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) GetAdminCouponStats(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	couponID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || couponID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid coupon id")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	stats, err := h.repo.CouponStats(ctx, couponID)
	if err != nil {
		h.handleInvoicingError(logger, w, "admin_coupon_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ApplyCoupon prices a coupon against an amount for the checkout page without
// consuming a use.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req applyCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("apply_coupon", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "code and activity are required")
		return
	}
	if !req.Amount.IsPositive() {
		writeError(w, http.StatusBadRequest, "amount must be greater than zero")
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	preview, err := h.invoices.ApplyCoupon(ctx, userID, req.Code, req.Activity, req.Amount)
	if err != nil {
		h.handleInvoicingError(logger, w, "apply_coupon", err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func validCouponActivity(activity string) bool {
	switch strings.ToLower(strings.TrimSpace(activity)) {
	case models.ActivityTrip, models.ActivityCourse, models.ActivityAll:
		return true
	default:
		return false
	}
}

func validCouponPercentage(pct decimal.Decimal) bool {
	return pct.IsPositive() && pct.LessThanOrEqual(decimal.NewFromInt(100))
}

func hasAnyCouponPatchField(p models.CouponPatch) bool {
	return p.Activity != nil ||
		p.DiscountPercentage != nil ||
		p.CanUsedUpTo != nil ||
		p.UserLimit != nil ||
		p.IsActive != nil ||
		p.ExpireDate != nil
}
