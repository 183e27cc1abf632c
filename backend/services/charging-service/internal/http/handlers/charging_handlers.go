package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/http/middleware"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/service"
)

// ChargingHandlers expose the ticket lifecycle.
type ChargingHandlers struct {
	charging *service.ChargingService
	logger   *zap.Logger
}

// NewChargingHandlers returns handler.
func NewChargingHandlers(charging *service.ChargingService, logger *zap.Logger) *ChargingHandlers {
	return &ChargingHandlers{charging: charging, logger: logger}
}

type ticketRequest struct {
	StationID     string `json:"stationId"`
	ConnectorType string `json:"connectorType"`
	VehicleID     string `json:"vehicleId"`
	Cancel        bool   `json:"cancel"`
}

type ticketResponse struct {
	Ticket *service.TicketView `json:"ticket"`
}

type finishedResponse struct {
	Message         string              `json:"message"`
	CompletedTicket *service.TicketView `json:"completedTicket,omitempty"`
	CancelledTicket *service.TicketView `json:"cancelledTicket,omitempty"`
}

// parse decodes the body and validates the ids. It writes the error response itself.
func (h *ChargingHandlers) parse(w http.ResponseWriter, r *http.Request) (models.ID, models.ID, ticketRequest, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return "", "", ticketRequest{}, false
	}
	var req ticketRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return "", "", req, false
	}
	stationID, ok := parseID(req.StationID, true)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "A valid stationId is required.")
		return "", "", req, false
	}
	if _, ok := parseID(req.VehicleID, false); !ok {
		writeError(w, http.StatusUnprocessableEntity, "Invalid vehicleId.")
		return "", "", req, false
	}
	return userID, stationID, req, true
}

// RequestTicket handles POST /api/stations/request-ticket.
func (h *ChargingHandlers) RequestTicket(w http.ResponseWriter, r *http.Request) {
	userID, stationID, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	vehicleID, _ := parseID(req.VehicleID, false)
	view, err := h.charging.RequestTicket(r.Context(), userID, service.RequestInput{
		StationID:     stationID,
		ConnectorType: models.ConnectorType(req.ConnectorType),
		VehicleID:     vehicleID,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticketResponse{Ticket: view})
}

// ActiveTicket handles GET /api/stations/{stationId}/active-ticket.
func (h *ChargingHandlers) ActiveTicket(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	stationID, ok := parseID(chi.URLParam(r, "stationId"), true)
	if !ok {
		writeError(w, http.StatusUnprocessableEntity, "A valid stationId is required.")
		return
	}
	view, err := h.charging.ActiveTicket(r.Context(), userID, stationID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Ticket: view})
}

// StartCharging handles POST /api/stations/start-charging.
func (h *ChargingHandlers) StartCharging(w http.ResponseWriter, r *http.Request) {
	userID, stationID, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	vehicleID, _ := parseID(req.VehicleID, false)
	view, err := h.charging.StartCharging(r.Context(), userID, service.StartInput{
		StationID:     stationID,
		ConnectorType: models.ConnectorType(req.ConnectorType),
		VehicleID:     vehicleID,
	})
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Ticket: view})
}

// UpdateProgress handles POST /api/stations/update-progress.
func (h *ChargingHandlers) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID, stationID, _, ok := h.parse(w, r)
	if !ok {
		return
	}
	res, err := h.charging.UpdateProgress(r.Context(), userID, stationID)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if res.Completed != nil {
		writeJSON(w, http.StatusOK, finishedResponse{Message: "Charging completed.", CompletedTicket: res.Completed})
		return
	}
	writeJSON(w, http.StatusOK, ticketResponse{Ticket: res.Ticket})
}

// CompleteCharging handles POST /api/stations/complete-charging.
func (h *ChargingHandlers) CompleteCharging(w http.ResponseWriter, r *http.Request) {
	userID, stationID, req, ok := h.parse(w, r)
	if !ok {
		return
	}
	view, err := h.charging.CompleteCharging(r.Context(), userID, stationID, req.Cancel)
	if err != nil {
		respondError(w, h.logger, err)
		return
	}
	if req.Cancel {
		writeJSON(w, http.StatusOK, finishedResponse{Message: "Charging cancelled.", CancelledTicket: view})
		return
	}
	writeJSON(w, http.StatusOK, finishedResponse{Message: "Charging completed.", CompletedTicket: view})
}
