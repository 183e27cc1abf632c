package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository"
)

// StationService serves the public station catalogue.
type StationService struct {
	stations StationStore
	logger   *zap.Logger
}

// NewStationService builds the service.
func NewStationService(stations StationStore, logger *zap.Logger) *StationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StationService{stations: stations, logger: logger.Named("stations")}
}

// List returns every station.
func (s *StationService) List(ctx context.Context) ([]models.Station, error) {
	stations, err := s.stations.ListStations(ctx)
	if err != nil {
		s.logger.Error("list stations", zap.Error(err))
		return nil, internal("list stations", err)
	}
	if stations == nil {
		stations = []models.Station{}
	}
	return stations, nil
}

// Get returns one station.
func (s *StationService) Get(ctx context.Context, id models.ID) (*models.Station, error) {
	station, err := s.stations.GetStation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Station not found.")
		}
		s.logger.Error("get station", zap.Error(err))
		return nil, internal("get station", err)
	}
	return station, nil
}
