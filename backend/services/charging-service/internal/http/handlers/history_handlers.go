package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/service"
)

// HistoryHandlers list finished sessions.
type HistoryHandlers struct {
	history *service.HistoryService
	logger  *zap.Logger
}

// NewHistoryHandlers returns handler.
func NewHistoryHandlers(history *service.HistoryService, logger *zap.Logger) *HistoryHandlers {
	return &HistoryHandlers{history: history, logger: logger}
}

// List handles GET /api/history?days=N.
func (h *HistoryHandlers) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	days := 0
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "days must be between 1 and 365.")
			return
		}
		days = parsed
	}
	entries, err := h.history.ForUser(r.Context(), userID, days)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}
