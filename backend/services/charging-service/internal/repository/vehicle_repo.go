package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/models"
)

// VehicleRepository persists vehicles and their battery state.
type VehicleRepository struct {
	db *sql.DB
}

// NewVehicleRepository returns repository.
func NewVehicleRepository(db *sql.DB) *VehicleRepository {
	return &VehicleRepository{db: db}
}

const vehicleColumns = `id, owner_id, name, connector_types, min_power, active, battery_percent,
	battery_capacity, battery_status, charging_status, last_battery_updated_at`

// GetVehicle fetches a vehicle by id regardless of owner.
func (r *VehicleRepository) GetVehicle(ctx context.Context, id models.ID) (*models.Vehicle, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ActiveVehicle returns the owner's active vehicle.
func (r *VehicleRepository) ActiveVehicle(ctx context.Context, ownerID models.ID) (*models.Vehicle, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE owner_id = $1 AND active
		ORDER BY id
		LIMIT 1
	`, ownerID)
	v, err := scanVehicle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

// ListVehicles returns the owner's vehicles, active first.
func (r *VehicleRepository) ListVehicles(ctx context.Context, ownerID models.ID) ([]models.Vehicle, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles
		WHERE owner_id = $1
		ORDER BY active DESC, name
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// CreateVehicle inserts a vehicle. When it is active, the owner's other vehicles are deactivated.
func (r *VehicleRepository) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	connectors, err := encodeJSON(v.ConnectorTypes)
	if err != nil {
		return err
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if v.Active {
			if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET active = FALSE WHERE owner_id = $1`, v.OwnerID); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vehicles (`+vehicleColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`, v.ID, v.OwnerID, v.Name, connectors, v.MinPower, v.Active, v.BatteryPercent,
			nullFloat(v.BatteryCapacity), nullString(string(v.BatteryStatus)), v.ChargingStatus,
			nullTime(v.LastBatteryUpdatedAt))
		return err
	})
}

// ActivateVehicle makes id the owner's only active vehicle.
func (r *VehicleRepository) ActivateVehicle(ctx context.Context, ownerID, id models.ID) error {
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM vehicles WHERE id = $1 AND owner_id = $2)
		`, id, ownerID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		_, err := tx.ExecContext(ctx, `UPDATE vehicles SET active = (id = $2) WHERE owner_id = $1`, ownerID, id)
		return err
	})
}

// SetChargingStatus flips the vehicle between IDLE and CHARGING.
func (r *VehicleRepository) SetChargingStatus(ctx context.Context, id models.ID, status models.VehicleChargingStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE vehicles SET charging_status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateBattery writes a refreshed battery snapshot. Snapshots older than the stored
// one are ignored, so out-of-order writes cannot roll the level back.
func (r *VehicleRepository) UpdateBattery(ctx context.Context, id models.ID, upd battery.Update) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE vehicles
		SET battery_percent = $2, battery_status = $3, last_battery_updated_at = $4
		WHERE id = $1
		  AND (last_battery_updated_at IS NULL OR last_battery_updated_at <= $4)
	`, id, upd.Percent, upd.Status, upd.LastUpdatedAt)
	return err
}

// BackfillBatteryDefaults fills missing battery fields and recomputes every tier.
// It returns the number of vehicles touched.
func (r *VehicleRepository) BackfillBatteryDefaults(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE vehicles
			SET battery_percent = COALESCE(battery_percent, $1),
			    last_battery_updated_at = COALESCE(last_battery_updated_at, $2)
			WHERE battery_percent IS NULL OR last_battery_updated_at IS NULL
		`, battery.DefaultPercent, now)
		if err != nil {
			return err
		}
		if total, err = res.RowsAffected(); err != nil {
			return err
		}

		rows, err := tx.QueryContext(ctx, `SELECT id, battery_percent, battery_status FROM vehicles`)
		if err != nil {
			return err
		}
		type fix struct {
			id     models.ID
			status battery.Status
		}
		var fixes []fix
		for rows.Next() {
			var (
				id      models.ID
				percent int
				status  sql.NullString
			)
			if err := rows.Scan(&id, &percent, &status); err != nil {
				rows.Close()
				return err
			}
			want := battery.StatusFor(percent)
			if battery.Status(status.String) != want {
				fixes = append(fixes, fix{id: id, status: want})
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, f := range fixes {
			if _, err := tx.ExecContext(ctx, `UPDATE vehicles SET battery_status = $2 WHERE id = $1`, f.id, f.status); err != nil {
				return err
			}
		}
		if int64(len(fixes)) > total {
			total = int64(len(fixes))
		}
		return nil
	})
	return total, err
}

// BackfillBatteryCapacity sets capacity on vehicles that have none recorded.
func (r *VehicleRepository) BackfillBatteryCapacity(ctx context.Context, capacity float64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE vehicles SET battery_capacity = $1 WHERE battery_capacity IS NULL
	`, capacity)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanVehicle(row rowScanner) (*models.Vehicle, error) {
	var (
		v          models.Vehicle
		connectors []byte
		percent    sql.NullInt64
		capacity   sql.NullFloat64
		status     sql.NullString
		updatedAt  sql.NullTime
	)
	if err := row.Scan(&v.ID, &v.OwnerID, &v.Name, &connectors, &v.MinPower, &v.Active, &percent,
		&capacity, &status, &v.ChargingStatus, &updatedAt); err != nil {
		return nil, err
	}
	if err := decodeJSON(connectors, &v.ConnectorTypes); err != nil {
		return nil, err
	}
	v.BatteryPercent = battery.DefaultPercent
	if percent.Valid {
		v.BatteryPercent = int(percent.Int64)
	}
	v.BatteryCapacity = floatPtr(capacity)
	v.BatteryStatus = battery.Status(status.String)
	v.LastBatteryUpdatedAt = timePtr(updatedAt)
	return &v, nil
}
