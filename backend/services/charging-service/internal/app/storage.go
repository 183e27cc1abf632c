package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	libdb "chargeway/backend/libs/db"
	appconfig "chargeway/backend/services/charging-service/internal/config"
	"chargeway/backend/services/charging-service/internal/inventory"
	"chargeway/backend/services/charging-service/internal/repository"
	"chargeway/backend/services/charging-service/internal/repository/memstore"
	"chargeway/backend/services/charging-service/internal/seed"
	"chargeway/backend/services/charging-service/internal/service"
)

type stationBackend interface {
	service.StationStore
	inventory.Store
	seed.StationInserter
}

type vehicleBackend interface {
	service.VehicleStore
	seed.BatteryBackfiller
}

// Storage bundles the repositories of the configured backend.
type Storage struct {
	Stations stationBackend
	Vehicles vehicleBackend
	Tickets  service.TicketStore
	History  service.HistoryStore
	Users    service.UserStore

	db     *sql.DB
	logger *zap.Logger
}

// OpenStorage connects to the configured backend. Postgres schemas are created when missing.
func OpenStorage(ctx context.Context, cfg *appconfig.Config, logger *zap.Logger) (*Storage, error) {
	switch cfg.Storage.Driver {
	case appconfig.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		mem := memstore.New()
		return &Storage{
			Stations: mem,
			Vehicles: mem,
			Tickets:  mem,
			History:  mem,
			Users:    mem,
			logger:   logger,
		}, nil
	case appconfig.StoragePostgres:
		sqlDB, err := libdb.NewPostgresDB(cfg.Database.DSN, libdb.PoolOptions{
			MaxOpenConns: cfg.Database.MaxOpenConns,
			ConnLifetime: cfg.Database.ConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := repository.Migrate(ctx, sqlDB); err != nil {
			sqlDB.Close()
			return nil, err
		}
		return &Storage{
			Stations: repository.NewStationRepository(sqlDB),
			Vehicles: repository.NewVehicleRepository(sqlDB),
			Tickets:  repository.NewTicketRepository(sqlDB),
			History:  repository.NewHistoryRepository(sqlDB),
			Users:    repository.NewUserRepository(sqlDB),
			db:       sqlDB,
			logger:   logger,
		}, nil
	default:
		return nil, errors.New("unknown storage driver " + cfg.Storage.Driver)
	}
}

// Close releases the database pool, if any.
func (s *Storage) Close() {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("failed to close db", zap.Error(err))
		}
	}
}
