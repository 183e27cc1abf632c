package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/models"
)

// batteryReader applies lazy drain on read and persists changes off the request path.
type batteryReader struct {
	policy   battery.Policy
	vehicles VehicleStore
	effects  EffectRunner
	logger   *zap.Logger
}

func (b *batteryReader) refresh(v *models.Vehicle, now time.Time) {
	if v == nil {
		return
	}
	snap, upd := b.policy.Refresh(v.BatterySnapshot(), now)
	v.ApplyBattery(snap)
	if upd == nil || v.ID.IsZero() {
		return
	}
	id, update := v.ID, *upd
	b.logger.Debug("battery drained",
		zap.String("vehicle_id", id.String()),
		zap.Int("percent", update.Percent),
		zap.String("status", string(update.Status)))
	b.effects.Go("vehicle.battery_refresh", func(ctx context.Context) error {
		return b.vehicles.UpdateBattery(ctx, id, update)
	})
}

func (b *batteryReader) refreshAll(vs []models.Vehicle, now time.Time) {
	for i := range vs {
		b.refresh(&vs[i], now)
	}
}
