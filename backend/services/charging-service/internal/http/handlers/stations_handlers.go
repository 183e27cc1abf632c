package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/service"
)

// StationsHandlers serve the public station catalogue.
type StationsHandlers struct {
	stations *service.StationService
	logger   *zap.Logger
}

// NewStationsHandlers returns handler.
func NewStationsHandlers(stations *service.StationService, logger *zap.Logger) *StationsHandlers {
	return &StationsHandlers{stations: stations, logger: logger}
}

// List handles GET /api/stations.
func (h *StationsHandlers) List(w http.ResponseWriter, r *http.Request) {
	stations, err := h.stations.List(r.Context())
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stations": stations})
}

// Get handles GET /api/stations/{stationId}.
func (h *StationsHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(chi.URLParam(r, "stationId"), true)
	if !ok {
		writeError(w, http.StatusNotFound, "Station not found.")
		return
	}
	station, err := h.stations.Get(r.Context(), id)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"station": station})
}
