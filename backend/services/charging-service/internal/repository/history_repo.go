package repository

import (
	"context"
	"database/sql"
	"time"

	"chargeway/backend/services/charging-service/internal/models"
)

// HistoryRepository reads the charging audit trail.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository returns repository.
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// ListHistory returns the user's sessions that ended at or after since, newest first.
func (r *HistoryRepository) ListHistory(ctx context.Context, userID models.ID, since time.Time) ([]models.ChargingHistory, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, ticket_id, station_id, station_name, station_address, vehicle_id, vehicle_name,
		       connector_type, started_at, ended_at, outcome, progress_percent, starting_battery_percent,
		       battery_percentage, charging_duration_ms, created_at
		FROM charging_history
		WHERE user_id = $1 AND ended_at >= $2
		ORDER BY ended_at DESC
	`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChargingHistory
	for rows.Next() {
		var (
			h                                                  models.ChargingHistory
			stationID, stationName, stationAddress, vehicleID  sql.NullString
			vehicleName, connector                             sql.NullString
			startedAt                                          sql.NullTime
			progress, startPercent, batteryPercent, durationMs sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &h.UserID, &h.TicketID, &stationID, &stationName, &stationAddress,
			&vehicleID, &vehicleName, &connector, &startedAt, &h.EndedAt, &h.Outcome, &progress,
			&startPercent, &batteryPercent, &durationMs, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.StationID = models.ID(stationID.String)
		h.StationName = stationName.String
		h.StationAddress = stationAddress.String
		h.VehicleID = models.ID(vehicleID.String)
		h.VehicleName = vehicleName.String
		h.ConnectorType = models.ConnectorType(connector.String)
		h.StartedAt = timePtr(startedAt)
		h.EndedAt = h.EndedAt.UTC()
		h.ProgressPercent = intPtr(progress)
		h.StartingBatteryPercent = intPtr(startPercent)
		h.BatteryPercentage = intPtr(batteryPercent)
		h.ChargingDurationMs = int64Ptr(durationMs)
		h.CreatedAt = h.CreatedAt.UTC()
		out = append(out, h)
	}
	return out, rows.Err()
}

// insertHistory writes the record unless one exists for the ticket already.
func insertHistory(ctx context.Context, db execer, h models.ChargingHistory) (bool, error) {
	if h.ID.IsZero() {
		h.ID = models.NewID()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO charging_history (id, user_id, ticket_id, station_id, station_name, station_address,
			vehicle_id, vehicle_name, connector_type, started_at, ended_at, outcome, progress_percent,
			starting_battery_percent, battery_percentage, charging_duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (ticket_id) DO NOTHING
	`, h.ID, h.UserID, h.TicketID, nullString(string(h.StationID)), nullString(h.StationName),
		nullString(h.StationAddress), nullString(string(h.VehicleID)), nullString(h.VehicleName),
		nullString(string(h.ConnectorType)), nullTime(h.StartedAt), h.EndedAt, h.Outcome,
		nullInt(h.ProgressPercent), nullInt(h.StartingBatteryPercent), nullInt(h.BatteryPercentage),
		nullInt64(h.ChargingDurationMs))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
