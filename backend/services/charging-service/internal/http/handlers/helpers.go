package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/service"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// respondError maps service errors onto status codes. Internal causes are logged, not exposed.
func respondError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := service.StatusCode(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, service.PublicMessage(err))
}

// decodeJSON reads the body into dst. An empty body leaves dst untouched.
func decodeJSON(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// parseID validates an identifier from the request. Empty input is rejected when required.
func parseID(raw string, required bool) (models.ID, bool) {
	if raw == "" {
		return "", !required
	}
	return models.ParseID(raw)
}
