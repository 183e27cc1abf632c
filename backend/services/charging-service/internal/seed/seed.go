// Package seed bootstraps reference data: the station catalogue, the admin
// account and battery defaults for legacy vehicles.
package seed

import (
	"context"
	_ "embed"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/service"
)

//go:embed stations.yaml
var stationsYAML []byte

type stationSeed struct {
	Name              string              `yaml:"name"`
	Address           string              `yaml:"address"`
	Lat               float64             `yaml:"lat"`
	Lng               float64             `yaml:"lng"`
	Status            models.Availability `yaml:"status"`
	UpdatedMinutesAgo int                 `yaml:"updatedMinutesAgo"`
	Connectors        []connectorSeed     `yaml:"connectors"`
	Photos            []photoSeed         `yaml:"photos"`
	Pricing           pricingSeed         `yaml:"pricing"`
	Amenities         []string            `yaml:"amenities"`
	Notes             string              `yaml:"notes"`
}

type connectorSeed struct {
	Type           models.ConnectorType `yaml:"type"`
	PowerKW        float64              `yaml:"powerKW"`
	Ports          int                  `yaml:"ports"`
	AvailablePorts int                  `yaml:"availablePorts"`
}

type photoSeed struct {
	Label    string `yaml:"label"`
	Gradient string `yaml:"gradient"`
}

type pricingSeed struct {
	Currency        string   `yaml:"currency"`
	PerKwh          float64  `yaml:"perKwh"`
	FastPerKwh      *float64 `yaml:"fastPerKwh"`
	UltraFastPerKwh *float64 `yaml:"ultraFastPerKwh"`
	PerMinute       *float64 `yaml:"perMinute"`
	ParkingFee      string   `yaml:"parkingFee"`
}

// Catalog decodes the bundled stations. LastUpdatedISO is stamped relative to now.
func Catalog(now time.Time) ([]models.Station, error) {
	var seeds []stationSeed
	if err := yaml.Unmarshal(stationsYAML, &seeds); err != nil {
		return nil, fmt.Errorf("seed: decode stations: %w", err)
	}
	stations := make([]models.Station, 0, len(seeds))
	for _, s := range seeds {
		st := models.Station{
			Name:           s.Name,
			Lat:            s.Lat,
			Lng:            s.Lng,
			Address:        s.Address,
			Status:         s.Status,
			LastUpdatedISO: now.UTC().Add(-time.Duration(s.UpdatedMinutesAgo) * time.Minute).Format(time.RFC3339),
			Pricing: models.StationPricing{
				Currency:        s.Pricing.Currency,
				PerKwh:          s.Pricing.PerKwh,
				FastPerKwh:      s.Pricing.FastPerKwh,
				UltraFastPerKwh: s.Pricing.UltraFastPerKwh,
				PerMinute:       s.Pricing.PerMinute,
				ParkingFee:      s.Pricing.ParkingFee,
			},
			Amenities: s.Amenities,
			Notes:     s.Notes,
		}
		for _, c := range s.Connectors {
			if !c.Type.Valid() || c.Ports < 0 || c.AvailablePorts < 0 || c.AvailablePorts > c.Ports {
				return nil, fmt.Errorf("seed: station %q: invalid connector %q", s.Name, c.Type)
			}
			st.Connectors = append(st.Connectors, models.Connector(c))
		}
		for _, p := range s.Photos {
			st.Photos = append(st.Photos, models.StationPhoto(p))
		}
		stations = append(stations, st)
	}
	return stations, nil
}

// StationInserter stores a station unless its name and address already exist.
type StationInserter interface {
	InsertStation(ctx context.Context, station *models.Station) (bool, error)
}

// BatteryBackfiller fills missing battery fields.
type BatteryBackfiller interface {
	BackfillBatteryDefaults(ctx context.Context, now time.Time) (int64, error)
	BackfillBatteryCapacity(ctx context.Context, capacity float64) (int64, error)
}

// AdminEnsurer promotes or creates the bootstrap admin.
type AdminEnsurer interface {
	EnsureAdmin(ctx context.Context, in service.AdminInput) (*models.User, error)
}

// Seeder runs the bootstrap steps.
type Seeder struct {
	stations StationInserter
	vehicles BatteryBackfiller
	admins   AdminEnsurer
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a Seeder. Any dependency may be nil to skip its step.
func New(stations StationInserter, vehicles BatteryBackfiller, admins AdminEnsurer, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{stations: stations, vehicles: vehicles, admins: admins, logger: logger.Named("seed"), now: time.Now}
}

// Stations inserts catalogue entries that are not stored yet and returns how many were added.
func (s *Seeder) Stations(ctx context.Context) (int, error) {
	if s.stations == nil {
		return 0, nil
	}
	catalog, err := Catalog(s.now())
	if err != nil {
		return 0, err
	}
	inserted := 0
	for i := range catalog {
		ok, err := s.stations.InsertStation(ctx, &catalog[i])
		if err != nil {
			return inserted, fmt.Errorf("seed: insert %q: %w", catalog[i].Name, err)
		}
		if ok {
			inserted++
		}
	}
	if inserted == 0 {
		s.logger.Info("stations already seeded")
	} else {
		s.logger.Info("seeded stations", zap.Int("count", inserted))
	}
	return inserted, nil
}

// Admin ensures the configured admin account exists.
func (s *Seeder) Admin(ctx context.Context, in service.AdminInput) error {
	if s.admins == nil {
		return nil
	}
	user, err := s.admins.EnsureAdmin(ctx, in)
	if err != nil {
		return fmt.Errorf("seed: ensure admin: %w", err)
	}
	if user == nil {
		s.logger.Warn("ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin bootstrap")
	}
	return nil
}

// Battery backfills vehicles that never had a battery level recorded.
func (s *Seeder) Battery(ctx context.Context) (int64, error) {
	if s.vehicles == nil {
		return 0, nil
	}
	n, err := s.vehicles.BackfillBatteryDefaults(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("seed: backfill battery: %w", err)
	}
	s.logger.Info("battery defaults backfilled", zap.Int64("vehicles", n))
	return n, nil
}

// ParseCapacity reads a default battery capacity in kWh. Empty input and
// "null" yield nil, which leaves missing capacities untouched.
func ParseCapacity(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "null") {
		return nil, nil
	}
	c, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(c) || math.IsInf(c, 0) || c < 0 {
		return nil, fmt.Errorf("seed: invalid battery capacity %q", raw)
	}
	return &c, nil
}

// Capacity sets capacity on vehicles that have none. A nil capacity is a no-op.
func (s *Seeder) Capacity(ctx context.Context, capacity *float64) (int64, error) {
	if s.vehicles == nil || capacity == nil {
		return 0, nil
	}
	n, err := s.vehicles.BackfillBatteryCapacity(ctx, *capacity)
	if err != nil {
		return 0, fmt.Errorf("seed: backfill capacity: %w", err)
	}
	s.logger.Info("battery capacity backfilled", zap.Int64("vehicles", n), zap.Float64("capacity", *capacity))
	return n, nil
}

// Run performs every step in order.
func (s *Seeder) Run(ctx context.Context, admin service.AdminInput) error {
	if _, err := s.Stations(ctx); err != nil {
		return err
	}
	if err := s.Admin(ctx, admin); err != nil {
		return err
	}
	_, err := s.Battery(ctx)
	return err
}
