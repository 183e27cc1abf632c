// Package inventory owns the per-connector port pools of each station.
package inventory

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/metrics"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository"
)

// Outcome is the result of a reservation attempt.
type Outcome int

const (
	Reserved Outcome = iota
	NoAvailablePorts
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Reserved:
		return "reserved"
	case NoAvailablePorts:
		return "no_available_ports"
	default:
		return "not_found"
	}
}

// Store performs the atomic port updates.
type Store interface {
	Reserve(ctx context.Context, stationID models.ID, connector models.ConnectorType) error
	Release(ctx context.Context, stationID models.ID, connector models.ConnectorType) error
}

// Inventory reserves and releases connector ports.
type Inventory struct {
	store   Store
	metrics *metrics.Recorder
	logger  *zap.Logger
}

// New builds an Inventory.
func New(store Store, rec *metrics.Recorder, logger *zap.Logger) *Inventory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inventory{store: store, metrics: rec, logger: logger.Named("inventory")}
}

// Reserve takes one port of the connector type at the station.
func (i *Inventory) Reserve(ctx context.Context, stationID models.ID, connector models.ConnectorType) (Outcome, error) {
	err := i.store.Reserve(ctx, stationID, connector)
	var outcome Outcome
	switch {
	case err == nil:
		outcome = Reserved
	case errors.Is(err, repository.ErrNoAvailablePorts):
		outcome = NoAvailablePorts
	case errors.Is(err, repository.ErrNotFound):
		outcome = NotFound
	default:
		i.logger.Error("reserve port", zap.String("station_id", stationID.String()),
			zap.String("connector", string(connector)), zap.Error(err))
		return NotFound, err
	}
	i.metrics.Reservation(outcome.String())
	i.logger.Debug("reserve port", zap.String("station_id", stationID.String()),
		zap.String("connector", string(connector)), zap.Stringer("outcome", outcome))
	return outcome, nil
}

// Release returns one port to the pool. The pool never exceeds its capacity.
func (i *Inventory) Release(ctx context.Context, stationID models.ID, connector models.ConnectorType) error {
	if err := i.store.Release(ctx, stationID, connector); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			i.logger.Warn("release on unknown connector", zap.String("station_id", stationID.String()),
				zap.String("connector", string(connector)))
			return nil
		}
		return err
	}
	i.metrics.Released()
	return nil
}
