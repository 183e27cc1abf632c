package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/service"
)

// ProfileHandlers let a user read and edit their own account.
type ProfileHandlers struct {
	users  *service.UserService
	logger *zap.Logger
}

// NewProfileHandlers returns handler.
func NewProfileHandlers(users *service.UserService, logger *zap.Logger) *ProfileHandlers {
	return &ProfileHandlers{users: users, logger: logger}
}

// Get handles GET /api/profile.
func (h *ProfileHandlers) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	user, err := h.users.Profile(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{User: user})
}

// UpdateProfile handles PATCH /api/profile/update-profile.
func (h *ProfileHandlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req struct {
		Name   *string `json:"name"`
		Region *string `json:"region"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.users.UpdateProfile(r.Context(), userID, service.ProfileInput{Name: req.Name, Region: req.Region})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile updated successfully!",
		"user":    user,
	})
}

// UpdatePassword handles PATCH /api/profile/update-password.
func (h *ProfileHandlers) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := h.users.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password updated successfully!"})
}
