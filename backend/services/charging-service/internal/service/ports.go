package service

import (
	"context"
	"time"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/inventory"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository"
)

// StationStore reads the station catalogue.
type StationStore interface {
	ListStations(ctx context.Context) ([]models.Station, error)
	GetStation(ctx context.Context, id models.ID) (*models.Station, error)
}

// VehicleStore persists vehicles.
type VehicleStore interface {
	GetVehicle(ctx context.Context, id models.ID) (*models.Vehicle, error)
	ActiveVehicle(ctx context.Context, ownerID models.ID) (*models.Vehicle, error)
	ListVehicles(ctx context.Context, ownerID models.ID) ([]models.Vehicle, error)
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	ActivateVehicle(ctx context.Context, ownerID, id models.ID) error
	SetChargingStatus(ctx context.Context, id models.ID, status models.VehicleChargingStatus) error
	UpdateBattery(ctx context.Context, id models.ID, upd battery.Update) error
}

// TicketStore persists tickets and runs the terminal transaction.
type TicketStore interface {
	CreateTicket(ctx context.Context, t *models.ChargingTicket) error
	GetTicket(ctx context.Context, id models.ID) (*models.ChargingTicket, error)
	ActiveTicket(ctx context.Context, userID, stationID models.ID) (*models.ChargingTicket, error)
	MarkStarted(ctx context.Context, upd repository.StartUpdate) (bool, error)
	UpdateProgress(ctx context.Context, id models.ID, percent int) (bool, error)
	Finalize(ctx context.Context, in repository.FinalizeInput) (repository.FinalizeResult, error)
}

// HistoryStore reads the charging audit trail.
type HistoryStore interface {
	ListHistory(ctx context.Context, userID models.ID, since time.Time) ([]models.ChargingHistory, error)
}

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUser(ctx context.Context, id models.ID) (*models.User, error)
	SetRole(ctx context.Context, id models.ID, role models.Role) error
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
}

// PortInventory reserves and releases connector ports.
type PortInventory interface {
	Reserve(ctx context.Context, stationID models.ID, connector models.ConnectorType) (inventory.Outcome, error)
	Release(ctx context.Context, stationID models.ID, connector models.ConnectorType) error
}

// EffectRunner schedules best-effort writes.
type EffectRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}
