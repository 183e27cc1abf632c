package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository"
)

// VehicleService manages a user's garage.
type VehicleService struct {
	vehicles VehicleStore
	battery  *batteryReader
	now      func() time.Time
	logger   *zap.Logger
}

// NewVehicleService builds the service.
func NewVehicleService(vehicles VehicleStore, policy battery.Policy, effects EffectRunner, logger *zap.Logger, now func() time.Time) *VehicleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	logger = logger.Named("vehicles")
	return &VehicleService{
		vehicles: vehicles,
		battery:  &batteryReader{policy: policy, vehicles: vehicles, effects: effects, logger: logger},
		now:      now,
		logger:   logger,
	}
}

// CreateVehicleInput is the body of a new vehicle.
type CreateVehicleInput struct {
	Name            string
	ConnectorTypes  []string
	MinPower        float64
	BatteryCapacity *float64
	BatteryPercent  *int
	Active          bool
}

// List returns the user's vehicles with battery levels brought up to date.
func (s *VehicleService) List(ctx context.Context, userID models.ID) ([]models.Vehicle, error) {
	vehicles, err := s.vehicles.ListVehicles(ctx, userID)
	if err != nil {
		s.logger.Error("list vehicles", zap.Error(err))
		return nil, internal("list vehicles", err)
	}
	s.battery.refreshAll(vehicles, s.now())
	if vehicles == nil {
		vehicles = []models.Vehicle{}
	}
	return vehicles, nil
}

// Create adds a vehicle. The user's first vehicle becomes active.
func (s *VehicleService) Create(ctx context.Context, userID models.ID, in CreateVehicleInput) (*models.Vehicle, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, newError(ErrValidation, "Vehicle name is required.")
	}
	if len(in.ConnectorTypes) == 0 {
		return nil, newError(ErrValidation, "At least one connector type is required.")
	}
	connectors := make([]models.ConnectorType, 0, len(in.ConnectorTypes))
	for _, raw := range in.ConnectorTypes {
		c := models.ConnectorType(strings.TrimSpace(raw))
		if !c.Valid() {
			return nil, newError(ErrValidation, "Invalid connector type.")
		}
		connectors = append(connectors, c)
	}
	if in.MinPower < 0 {
		return nil, newError(ErrValidation, "Minimum power must not be negative.")
	}
	if in.BatteryCapacity != nil && *in.BatteryCapacity < 0 {
		return nil, newError(ErrValidation, "Battery capacity must not be negative.")
	}
	percent := battery.DefaultPercent
	if in.BatteryPercent != nil {
		if *in.BatteryPercent < 0 || *in.BatteryPercent > 100 {
			return nil, newError(ErrValidation, "Battery percent must be between 0 and 100.")
		}
		percent = *in.BatteryPercent
	}

	active := in.Active
	if !active {
		if _, err := s.vehicles.ActiveVehicle(ctx, userID); errors.Is(err, repository.ErrNotFound) {
			active = true
		} else if err != nil {
			s.logger.Error("load active vehicle", zap.Error(err))
			return nil, internal("load active vehicle", err)
		}
	}

	now := s.now().UTC()
	v := &models.Vehicle{
		ID:                   models.NewID(),
		OwnerID:              userID,
		Name:                 name,
		ConnectorTypes:       connectors,
		MinPower:             in.MinPower,
		Active:               active,
		BatteryPercent:       percent,
		BatteryCapacity:      in.BatteryCapacity,
		BatteryStatus:        battery.StatusFor(percent),
		ChargingStatus:       models.VehicleIdle,
		LastBatteryUpdatedAt: &now,
	}
	if err := s.vehicles.CreateVehicle(ctx, v); err != nil {
		s.logger.Error("create vehicle", zap.Error(err))
		return nil, internal("create vehicle", err)
	}
	s.logger.Info("vehicle added", zap.String("vehicle_id", v.ID.String()), zap.String("user_id", userID.String()))
	return v, nil
}

// Activate makes the vehicle the user's active one.
func (s *VehicleService) Activate(ctx context.Context, userID, vehicleID models.ID) (*models.Vehicle, error) {
	v, err := s.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Vehicle not found.")
		}
		return nil, internal("load vehicle", err)
	}
	if v.OwnerID != userID {
		return nil, newError(ErrForbidden, "You are not allowed to use this vehicle.")
	}
	if err := s.vehicles.ActivateVehicle(ctx, userID, vehicleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Vehicle not found.")
		}
		s.logger.Error("activate vehicle", zap.Error(err))
		return nil, internal("activate vehicle", err)
	}
	v.Active = true
	s.battery.refresh(v, s.now())
	return v, nil
}
