package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/service"
)

// AdminHandlers expose account management to administrators.
type AdminHandlers struct {
	users  *service.UserService
	logger *zap.Logger
}

// NewAdminHandlers returns handler.
func NewAdminHandlers(users *service.UserService, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{users: users, logger: logger}
}

// ListUsers handles GET /api/admin/users.
func (h *AdminHandlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.User{"users": users})
}

// UpdateUser handles PATCH /api/admin/users/{userId}.
func (h *AdminHandlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := parseID(chi.URLParam(r, "userId"), true)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found.")
		return
	}
	var req struct {
		Name     *string      `json:"name"`
		Region   *string      `json:"region"`
		Email    *string      `json:"email"`
		Role     *models.Role `json:"role"`
		Password *string      `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.users.UpdateUser(r.Context(), userID, service.UserUpdate{
		Name:     req.Name,
		Region:   req.Region,
		Email:    req.Email,
		Role:     req.Role,
		Password: req.Password,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "User updated successfully!",
		"user":    user,
	})
}
