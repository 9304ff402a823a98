package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"topdivers/backend/internal/auth"

	"golang.org/x/crypto/bcrypt"
)

type adminLoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AdminLogin exchanges the configured operator credentials for an admin
// token. User tokens come from the account service; this is the only login
// the backend issues itself.
func (h *Handler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("admin_login", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if h.cfg.AdminEmail == "" || h.cfg.AdminPasswordHash == "" {
		logger.Warn("admin_login", "status", "disabled")
		writeError(w, http.StatusUnauthorized, "admin login disabled")
		return
	}
	if !strings.EqualFold(strings.TrimSpace(req.Email), h.cfg.AdminEmail) {
		logger.Warn("admin_login", "status", "invalid_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.cfg.AdminPasswordHash), []byte(req.Password)); err != nil {
		logger.Warn("admin_login", "status", "invalid_credentials")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// The operator is not a users-table row, so the token carries no uid.
	token, err := auth.SignAdminToken(h.cfg.JWTSecret, 0)
	if err != nil {
		logger.Error("admin_login", "status", "token_error", "error", err)
		writeError(w, http.StatusInternalServerError, "token error")
		return
	}

	logger.Info("admin_login", "status", "ok")
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": token})
}
