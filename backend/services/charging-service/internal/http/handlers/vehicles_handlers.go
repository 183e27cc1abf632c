package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/service"
)

// VehiclesHandlers manage the user's garage.
type VehiclesHandlers struct {
	vehicles *service.VehicleService
	logger   *zap.Logger
}

// NewVehiclesHandlers returns handler.
func NewVehiclesHandlers(vehicles *service.VehicleService, logger *zap.Logger) *VehiclesHandlers {
	return &VehiclesHandlers{vehicles: vehicles, logger: logger}
}

// List handles GET /api/vehicles.
func (h *VehiclesHandlers) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	vehicles, err := h.vehicles.List(r.Context(), userID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vehicles": vehicles})
}

// Create handles POST /api/vehicles.
func (h *VehiclesHandlers) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req struct {
		Name            string   `json:"name"`
		ConnectorTypes  []string `json:"connector_type"`
		MinPower        float64  `json:"min_power"`
		BatteryCapacity *float64 `json:"batteryCapacity"`
		BatteryPercent  *int     `json:"batteryPercent"`
		Active          bool     `json:"active"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	vehicle, err := h.vehicles.Create(r.Context(), userID, service.CreateVehicleInput{
		Name:            req.Name,
		ConnectorTypes:  req.ConnectorTypes,
		MinPower:        req.MinPower,
		BatteryCapacity: req.BatteryCapacity,
		BatteryPercent:  req.BatteryPercent,
		Active:          req.Active,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"vehicle": vehicle})
}

// Activate handles POST /api/vehicles/{vehicleId}/activate.
func (h *VehiclesHandlers) Activate(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	vehicleID, ok := parseID(chi.URLParam(r, "vehicleId"), true)
	if !ok {
		writeError(w, http.StatusNotFound, "Vehicle not found.")
		return
	}
	vehicle, err := h.vehicles.Activate(r.Context(), userID, vehicleID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"vehicle": vehicle})
}
