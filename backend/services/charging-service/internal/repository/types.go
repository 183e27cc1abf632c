package repository

import (
	"time"

	"chargeway/backend/services/charging-service/internal/models"
)

// StartUpdate moves a ticket into IN_PROGRESS.
type StartUpdate struct {
	TicketID               models.ID
	ConnectorType          models.ConnectorType
	VehicleID              models.ID
	StartedAt              time.Time
	DurationMs             int64
	StartingBatteryPercent int
	// ReservedConnector is recorded only when this start took a port.
	ReservedConnector models.ConnectorType
	// RequireNotStarted makes the write conditional on the ticket not already running,
	// so concurrent starts cannot both keep a reservation.
	RequireNotStarted bool
}

// FinalizeInput describes the terminal transition of a ticket.
type FinalizeInput struct {
	TicketID models.ID
	UserID   models.ID
	History  models.ChargingHistory
}

// FinalizeResult reports what the terminal transaction touched.
type FinalizeResult struct {
	Deleted           bool
	StationID         models.ID
	ReleasedConnector models.ConnectorType
	HistoryRecorded   bool
}
