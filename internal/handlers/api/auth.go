package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/btwdesk/api/internal/auth"
	"github.com/btwdesk/api/internal/middleware"
)

// AuthService is the part of auth.Service used by the handlers.
type AuthService interface {
	Login(ctx context.Context, email, password, totpCode string) (*auth.Token, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*auth.User, error)
	Setup2FA(ctx context.Context, userID uuid.UUID) (*auth.TOTPSetup, error)
	Confirm2FA(ctx context.Context, userID uuid.UUID, code string) ([]string, error)
}

// AuthHandler handles login and 2FA enrolment.
type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authSvc AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{auth: authSvc, logger: logger}
}

// RegisterPublicRoutes registers the unauthenticated login route.
func (h *AuthHandler) RegisterPublicRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
}

// RegisterProtectedRoutes registers routes that need a valid token.
func (h *AuthHandler) RegisterProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/auth/me", h.Me)
	mux.HandleFunc("POST /api/v1/auth/2fa/setup", h.Setup2FA)
	mux.HandleFunc("POST /api/v1/auth/2fa/confirm", h.Confirm2FA)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code"`
}

// Login handles POST /api/v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "email and password are required"})
		return
	}

	tok, err := h.auth.Login(r.Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// Me handles GET /api/v1/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorJSON{Error: "not authenticated"})
		return
	}
	user, err := h.auth.GetUserByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type totpSetupJSON struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
	QRCode []byte `json:"qr_code_png"` // base64 in JSON
}

// Setup2FA handles POST /api/v1/auth/2fa/setup
func (h *AuthHandler) Setup2FA(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorJSON{Error: "not authenticated"})
		return
	}
	setup, err := h.auth.Setup2FA(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, totpSetupJSON{Secret: setup.Secret, URL: setup.URL, QRCode: setup.QRCode})
}

type confirm2FARequest struct {
	Code string `json:"code"`
}

// Confirm2FA handles POST /api/v1/auth/2fa/confirm
func (h *AuthHandler) Confirm2FA(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorJSON{Error: "not authenticated"})
		return
	}
	var req confirm2FARequest
	if !decodeJSON(w, r, &req) {
		return
	}

	codes, err := h.auth.Confirm2FA(r.Context(), userID, req.Code)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"recovery_codes": codes})
}
