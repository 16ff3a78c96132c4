package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-pos/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// APIHandler exposes token issuance for non-browser clients.
type APIHandler struct {
	logger  *slog.Logger
	service *Service
}

// NewAPIHandler constructs an APIHandler.
func NewAPIHandler(logger *slog.Logger, service *Service) *APIHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &APIHandler{logger: logger, service: service}
}

// MountRoutes registers the /api/auth endpoints.
func (h *APIHandler) MountRoutes(r chi.Router) {
	r.Post("/token", h.issue)
	r.Post("/refresh", h.refresh)
	r.Post("/revoke", h.revoke)
}

type tokenRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenUser struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

type tokenResponse struct {
	TokenType        string    `json:"token_type"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	User             tokenUser `json:"user"`
}

func newTokenResponse(result LoginResult) tokenResponse {
	role := result.User.RoleName
	if role == "" {
		role = DefaultRole
	}
	return tokenResponse{
		TokenType:        "Bearer",
		AccessToken:      result.Pair.AccessToken,
		AccessExpiresAt:  result.Pair.AccessExpiresAt,
		RefreshToken:     result.Pair.RefreshToken,
		RefreshExpiresAt: result.Pair.RefreshExpiresAt,
		User: tokenUser{
			ID:       result.User.ID,
			Username: result.User.Username,
			Email:    result.User.Email,
			Role:     role,
		},
	}
}

func (h *APIHandler) issue(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.Login == "" || req.Password == "" {
		httpx.RespondError(w, fmt.Errorf("login and password are required: %w", httpx.ErrValidation))
		return
	}
	result, err := h.service.Login(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
			return
		}
		h.logger.Error("api token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, newTokenResponse(result))
}

func (h *APIHandler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrRefreshTokenReused) {
			h.logger.Warn("refresh token replayed", slog.String("remote", r.RemoteAddr))
		} else if !errors.Is(err, ErrInvalidRefreshToken) {
			h.logger.Error("api refresh", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.JSON(w, http.StatusOK, newTokenResponse(result))
}

func (h *APIHandler) revoke(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := httpx.DecodeJSONLimit(w, r, &req, httpx.DefaultBodyLimit); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Revoke(r.Context(), req.RefreshToken); err != nil {
		h.logger.Error("api revoke", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
