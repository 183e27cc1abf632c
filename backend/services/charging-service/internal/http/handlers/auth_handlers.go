package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/service"
	"chargeway/backend/services/charging-service/internal/session"
)

// AuthHandlers serve signup, login, logout and the current user.
type AuthHandlers struct {
	auth     *service.AuthService
	sessions *session.Manager
	logger   *zap.Logger
}

// NewAuthHandlers returns handler.
func NewAuthHandlers(auth *service.AuthService, sessions *session.Manager, logger *zap.Logger) *AuthHandlers {
	return &AuthHandlers{auth: auth, sessions: sessions, logger: logger}
}

type userResponse struct {
	User *models.User `json:"user"`
}

// Signup handles POST /api/auth/signup and logs the new user in.
func (h *AuthHandlers) Signup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Region   string `json:"region"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.auth.Signup(r.Context(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Region:   req.Region,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if _, err := h.sessions.Create(r.Context(), w, user); err != nil {
		h.logger.Error("create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Signing up failed, please try again later.")
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{User: user})
}

// Login handles POST /api/auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if _, err := h.sessions.Create(r.Context(), w, user); err != nil {
		h.logger.Error("create session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Logging in failed, please try again later.")
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Destroy(r.Context(), w, r); err != nil {
		h.logger.Warn("destroy session", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

// Me handles GET /api/auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.auth.User(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}
