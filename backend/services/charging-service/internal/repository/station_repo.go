package repository

import (
	"context"
	"database/sql"
	"errors"

	"chargeway/backend/services/charging-service/internal/models"
)

// StationRepository stores stations and their connector pools.
type StationRepository struct {
	db *sql.DB
}

// NewStationRepository returns repository.
func NewStationRepository(db *sql.DB) *StationRepository {
	return &StationRepository{db: db}
}

const stationColumns = `id, name, lat, lng, address, status, last_updated_iso, photos, pricing, amenities, notes`

// ListStations returns all stations ordered by name.
func (r *StationRepository) ListStations(ctx context.Context) ([]models.Station, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stationColumns+` FROM stations ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []models.Station
	index := make(map[models.ID]int)
	for rows.Next() {
		station, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		index[station.ID] = len(stations)
		stations = append(stations, *station)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(stations) == 0 {
		return stations, nil
	}

	connRows, err := r.db.QueryContext(ctx, `
		SELECT station_id, type, power_kw, ports, available_ports
		FROM station_connectors
		ORDER BY station_id, position
	`)
	if err != nil {
		return nil, err
	}
	defer connRows.Close()
	for connRows.Next() {
		var stationID models.ID
		var c models.Connector
		if err := connRows.Scan(&stationID, &c.Type, &c.PowerKW, &c.Ports, &c.AvailablePorts); err != nil {
			return nil, err
		}
		if i, ok := index[stationID]; ok {
			stations[i].Connectors = append(stations[i].Connectors, c)
		}
	}
	return stations, connRows.Err()
}

// GetStation fetches one station with its connectors.
func (r *StationRepository) GetStation(ctx context.Context, id models.ID) (*models.Station, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+stationColumns+` FROM stations WHERE id = $1`, id)
	station, err := scanStation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT type, power_kw, ports, available_ports
		FROM station_connectors
		WHERE station_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c models.Connector
		if err := rows.Scan(&c.Type, &c.PowerKW, &c.Ports, &c.AvailablePorts); err != nil {
			return nil, err
		}
		station.Connectors = append(station.Connectors, c)
	}
	return station, rows.Err()
}

// Reserve takes one port of the connector type. The decrement is a single conditional
// UPDATE so two concurrent reservations cannot both take the last port.
func (r *StationRepository) Reserve(ctx context.Context, stationID models.ID, connector models.ConnectorType) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE station_connectors
		SET available_ports = available_ports - 1
		WHERE station_id = $1 AND type = $2 AND available_ports > 0
	`, stationID, connector)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM station_connectors WHERE station_id = $1 AND type = $2)
	`, stationID, connector).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrNoAvailablePorts
	}
	return ErrNotFound
}

// Release returns one port to the pool, never exceeding its capacity.
func (r *StationRepository) Release(ctx context.Context, stationID models.ID, connector models.ConnectorType) error {
	return releasePort(ctx, r.db, stationID, connector)
}

func releasePort(ctx context.Context, db execer, stationID models.ID, connector models.ConnectorType) error {
	res, err := db.ExecContext(ctx, `
		UPDATE station_connectors
		SET available_ports = LEAST(available_ports + 1, ports)
		WHERE station_id = $1 AND type = $2
	`, stationID, connector)
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

// InsertStation stores a new station unless one with the same name and address exists.
// It reports whether a row was written.
func (r *StationRepository) InsertStation(ctx context.Context, station *models.Station) (bool, error) {
	photos, err := encodeJSON(station.Photos)
	if err != nil {
		return false, err
	}
	pricing, err := encodeJSON(station.Pricing)
	if err != nil {
		return false, err
	}
	amenities, err := encodeJSON(station.Amenities)
	if err != nil {
		return false, err
	}

	inserted := false
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO stations (`+stationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (name, address) DO NOTHING
		`, station.ID, station.Name, station.Lat, station.Lng, station.Address, station.Status,
			station.LastUpdatedISO, photos, pricing, amenities, station.Notes)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		for i, c := range station.Connectors {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO station_connectors (station_id, type, position, power_kw, ports, available_ports)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, station.ID, c.Type, i, c.PowerKW, c.Ports, c.AvailablePorts); err != nil {
				return err
			}
		}
		inserted = true
		return nil
	})
	return inserted, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStation(row rowScanner) (*models.Station, error) {
	var (
		s                          models.Station
		photos, pricing, amenities []byte
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Lat, &s.Lng, &s.Address, &s.Status, &s.LastUpdatedISO,
		&photos, &pricing, &amenities, &s.Notes); err != nil {
		return nil, err
	}
	if err := decodeJSON(photos, &s.Photos); err != nil {
		return nil, err
	}
	if err := decodeJSON(pricing, &s.Pricing); err != nil {
		return nil, err
	}
	if err := decodeJSON(amenities, &s.Amenities); err != nil {
		return nil, err
	}
	return &s, nil
}
