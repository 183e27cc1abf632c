package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargeway/backend/services/charging-service/internal/models"
)

// TicketRepository persists charging tickets and performs their terminal transition.
type TicketRepository struct {
	db *sql.DB
}

// NewTicketRepository returns repository.
func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

const ticketColumns = `id, user_id, station_id, vehicle_id, connector_type, status, charging_status,
	progress_percent, started_at, completed_at, starting_battery_percent, charging_duration_ms,
	reserved_connector, created_at, updated_at`

// CreateTicket inserts a new ticket and fills its timestamps.
func (r *TicketRepository) CreateTicket(ctx context.Context, t *models.ChargingTicket) error {
	const query = `
		INSERT INTO charging_tickets (id, user_id, station_id, vehicle_id, connector_type, status, charging_status, progress_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	if err := r.db.QueryRowContext(ctx, query, t.ID, t.UserID, t.StationID, nullString(string(t.VehicleID)),
		t.ConnectorType, t.Status, t.ChargingStatus, t.ProgressPercent).Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		return err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return nil
}

// GetTicket fetches a ticket by id.
func (r *TicketRepository) GetTicket(ctx context.Context, id models.ID) (*models.ChargingTicket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM charging_tickets WHERE id = $1`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ActiveTicket returns the user's most recent REQUESTED or PAID ticket at the station.
func (r *TicketRepository) ActiveTicket(ctx context.Context, userID, stationID models.ID) (*models.ChargingTicket, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ticketColumns+` FROM charging_tickets
		WHERE user_id = $1 AND station_id = $2 AND status IN ('REQUESTED', 'PAID')
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, stationID)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// MarkStarted moves the ticket to IN_PROGRESS. It reports false when the conditional
// write matched nothing, meaning another start already won or the ticket is gone.
func (r *TicketRepository) MarkStarted(ctx context.Context, upd StartUpdate) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE charging_tickets
		SET charging_status = 'IN_PROGRESS',
		    connector_type = $2,
		    vehicle_id = $3,
		    started_at = $4,
		    completed_at = NULL,
		    progress_percent = 0,
		    charging_duration_ms = $5,
		    starting_battery_percent = $6,
		    reserved_connector = COALESCE(NULLIF($7, ''), reserved_connector),
		    updated_at = NOW()
		WHERE id = $1
		  AND status IN ('REQUESTED', 'PAID')
		  AND (NOT $8 OR NOT (charging_status = 'IN_PROGRESS' AND started_at IS NOT NULL))
	`, upd.TicketID, upd.ConnectorType, nullString(string(upd.VehicleID)), upd.StartedAt, upd.DurationMs,
		upd.StartingBatteryPercent, string(upd.ReservedConnector), upd.RequireNotStarted)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// UpdateProgress stores the latest computed progress. It reports false when the ticket
// no longer exists.
func (r *TicketRepository) UpdateProgress(ctx context.Context, id models.ID, percent int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE charging_tickets SET progress_percent = $2, updated_at = NOW() WHERE id = $1
	`, id, percent)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Finalize deletes the ticket, returns its reserved port, idles the vehicle and records
// history in one transaction. The delete is the idempotency guard: when the row is
// already gone nothing else is touched and Deleted is false.
func (r *TicketRepository) Finalize(ctx context.Context, in FinalizeInput) (FinalizeResult, error) {
	var result FinalizeResult
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		result = FinalizeResult{}

		var (
			userID, stationID models.ID
			vehicleID         sql.NullString
			reserved          sql.NullString
		)
		err := tx.QueryRowContext(ctx, `
			DELETE FROM charging_tickets WHERE id = $1
			RETURNING user_id, station_id, vehicle_id, reserved_connector
		`, in.TicketID).Scan(&userID, &stationID, &vehicleID, &reserved)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		result.Deleted = true
		result.StationID = stationID

		if reserved.String != "" {
			connector := models.ConnectorType(reserved.String)
			if err := releasePort(ctx, tx, stationID, connector); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
			result.ReleasedConnector = connector
		}

		if vehicleID.String != "" {
			_, err = tx.ExecContext(ctx, `UPDATE vehicles SET charging_status = 'IDLE' WHERE id = $1`, vehicleID.String)
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE vehicles SET charging_status = 'IDLE'
				WHERE owner_id = $1 AND charging_status = 'CHARGING'
			`, userID)
		}
		if err != nil {
			return err
		}

		recorded, err := insertHistory(ctx, tx, in.History)
		if err != nil {
			return err
		}
		result.HistoryRecorded = recorded
		return nil
	})
	if err != nil {
		return FinalizeResult{}, err
	}
	return result, nil
}

func scanTicket(row rowScanner) (*models.ChargingTicket, error) {
	var (
		t                    models.ChargingTicket
		vehicleID, reserved  sql.NullString
		startedAt, completed sql.NullTime
		startPercent         sql.NullInt64
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.StationID, &vehicleID, &t.ConnectorType, &t.Status,
		&t.ChargingStatus, &t.ProgressPercent, &startedAt, &completed, &startPercent,
		&t.ChargingDurationMs, &reserved, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.VehicleID = models.ID(vehicleID.String)
	t.ReservedConnector = models.ConnectorType(reserved.String)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completed)
	t.StartingBatteryPercent = intPtr(startPercent)
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}
