// Package memstore is an in-process implementation of the repositories, used by tests
// and by the memory storage driver for local runs without Postgres.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository"
)

// Store keeps every table behind one mutex so Finalize is atomic like the SQL transaction.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users        map[models.ID]models.User
	stations     map[models.ID]models.Station
	stationOrder []models.ID
	vehicles     map[models.ID]models.Vehicle
	tickets      map[models.ID]ticketRow
	history      []models.ChargingHistory
	seq          int64
}

type ticketRow struct {
	ticket models.ChargingTicket
	seq    int64
}

// Option customises a Store.
type Option func(*Store)

// WithClock overrides the clock used for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:      time.Now,
		users:    make(map[models.ID]models.User),
		stations: make(map[models.ID]models.Station),
		vehicles: make(map[models.ID]models.Vehicle),
		tickets:  make(map[models.ID]ticketRow),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close is a no-op kept for parity with the SQL backend.
func (s *Store) Close() error { return nil }

func (s *Store) nowUTC() time.Time { return s.now().UTC() }

// Stations

func (s *Store) ListStations(_ context.Context) ([]models.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Station, 0, len(s.stationOrder))
	for _, id := range s.stationOrder {
		out = append(out, s.stations[id].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetStation(_ context.Context, id models.ID) (*models.Station, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := st.Clone()
	return &cp, nil
}

func (s *Store) Reserve(_ context.Context, stationID models.ID, connector models.ConnectorType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stations[stationID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range st.Connectors {
		if st.Connectors[i].Type != connector {
			continue
		}
		if st.Connectors[i].AvailablePorts <= 0 {
			return repository.ErrNoAvailablePorts
		}
		st.Connectors[i].AvailablePorts--
		return nil
	}
	return repository.ErrNotFound
}

func (s *Store) Release(_ context.Context, stationID models.ID, connector models.ConnectorType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(stationID, connector)
}

func (s *Store) releaseLocked(stationID models.ID, connector models.ConnectorType) error {
	st, ok := s.stations[stationID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range st.Connectors {
		if st.Connectors[i].Type != connector {
			continue
		}
		if st.Connectors[i].AvailablePorts < st.Connectors[i].Ports {
			st.Connectors[i].AvailablePorts++
		}
		return nil
	}
	return repository.ErrNotFound
}

func (s *Store) InsertStation(_ context.Context, station *models.Station) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.stations {
		if existing.Name == station.Name && existing.Address == station.Address {
			return false, nil
		}
	}
	if station.ID.IsZero() {
		station.ID = models.NewID()
	}
	s.stations[station.ID] = station.Clone()
	s.stationOrder = append(s.stationOrder, station.ID)
	return true, nil
}

// Vehicles

func (s *Store) GetVehicle(_ context.Context, id models.ID) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := v.Clone()
	return &cp, nil
}

func (s *Store) ActiveVehicle(_ context.Context, ownerID models.ID) (*models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.Vehicle
	for _, v := range s.vehicles {
		if v.OwnerID != ownerID || !v.Active {
			continue
		}
		if found == nil || v.ID < found.ID {
			cp := v.Clone()
			found = &cp
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return found, nil
}

func (s *Store) ListVehicles(_ context.Context, ownerID models.ID) ([]models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Vehicle
	for _, v := range s.vehicles {
		if v.OwnerID == ownerID {
			out = append(out, v.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Active != out[j].Active {
			return out[i].Active
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *Store) CreateVehicle(_ context.Context, v *models.Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID.IsZero() {
		v.ID = models.NewID()
	}
	if _, exists := s.vehicles[v.ID]; exists {
		return repository.ErrDuplicate
	}
	if v.Active {
		s.deactivateLocked(v.OwnerID, "")
	}
	s.vehicles[v.ID] = v.Clone()
	return nil
}

func (s *Store) ActivateVehicle(_ context.Context, ownerID, id models.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok || v.OwnerID != ownerID {
		return repository.ErrNotFound
	}
	s.deactivateLocked(ownerID, id)
	v.Active = true
	s.vehicles[id] = v
	return nil
}

func (s *Store) deactivateLocked(ownerID, keep models.ID) {
	for id, v := range s.vehicles {
		if v.OwnerID == ownerID && id != keep && v.Active {
			v.Active = false
			s.vehicles[id] = v
		}
	}
}

func (s *Store) SetChargingStatus(_ context.Context, id models.ID, status models.VehicleChargingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return repository.ErrNotFound
	}
	v.ChargingStatus = status
	s.vehicles[id] = v
	return nil
}

func (s *Store) UpdateBattery(_ context.Context, id models.ID, upd battery.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil
	}
	if v.LastBatteryUpdatedAt != nil && v.LastBatteryUpdatedAt.After(upd.LastUpdatedAt) {
		return nil
	}
	ts := upd.LastUpdatedAt
	v.BatteryPercent = upd.Percent
	v.BatteryStatus = upd.Status
	v.LastBatteryUpdatedAt = &ts
	s.vehicles[id] = v
	return nil
}

func (s *Store) BackfillBatteryDefaults(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var touched int64
	for id, v := range s.vehicles {
		changed := false
		if v.LastBatteryUpdatedAt == nil {
			ts := now
			v.LastBatteryUpdatedAt = &ts
			changed = true
		}
		if want := battery.StatusFor(v.BatteryPercent); v.BatteryStatus != want {
			v.BatteryStatus = want
			changed = true
		}
		if changed {
			s.vehicles[id] = v
			touched++
		}
	}
	return touched, nil
}

func (s *Store) BackfillBatteryCapacity(_ context.Context, capacity float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var touched int64
	for id, v := range s.vehicles {
		if v.BatteryCapacity != nil {
			continue
		}
		c := capacity
		v.BatteryCapacity = &c
		s.vehicles[id] = v
		touched++
	}
	return touched, nil
}

// Tickets

func (s *Store) CreateTicket(_ context.Context, t *models.ChargingTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = models.NewID()
	}
	if _, exists := s.tickets[t.ID]; exists {
		return repository.ErrDuplicate
	}
	now := s.nowUTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.seq++
	s.tickets[t.ID] = ticketRow{ticket: t.Clone(), seq: s.seq}
	return nil
}

func (s *Store) GetTicket(_ context.Context, id models.ID) (*models.ChargingTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := row.ticket.Clone()
	return &cp, nil
}

func (s *Store) ActiveTicket(_ context.Context, userID, stationID models.ID) (*models.ChargingTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *ticketRow
	for _, row := range s.tickets {
		t := row.ticket
		if t.UserID != userID || t.StationID != stationID || !t.Status.IsActive() {
			continue
		}
		if best == nil || t.CreatedAt.After(best.ticket.CreatedAt) ||
			(t.CreatedAt.Equal(best.ticket.CreatedAt) && row.seq > best.seq) {
			r := row
			best = &r
		}
	}
	if best == nil {
		return nil, repository.ErrNotFound
	}
	cp := best.ticket.Clone()
	return &cp, nil
}

func (s *Store) MarkStarted(_ context.Context, upd repository.StartUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tickets[upd.TicketID]
	if !ok || !row.ticket.Status.IsActive() {
		return false, nil
	}
	t := row.ticket
	if upd.RequireNotStarted && t.Charging() {
		return false, nil
	}
	startedAt := upd.StartedAt.UTC()
	startPercent := upd.StartingBatteryPercent
	t.ChargingStatus = models.ChargingInProgress
	t.ConnectorType = upd.ConnectorType
	t.VehicleID = upd.VehicleID
	t.StartedAt = &startedAt
	t.CompletedAt = nil
	t.ProgressPercent = 0
	t.ChargingDurationMs = upd.DurationMs
	t.StartingBatteryPercent = &startPercent
	if upd.ReservedConnector != "" {
		t.ReservedConnector = upd.ReservedConnector
	}
	t.UpdatedAt = s.nowUTC()
	row.ticket = t
	s.tickets[t.ID] = row
	return true, nil
}

func (s *Store) UpdateProgress(_ context.Context, id models.ID, percent int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tickets[id]
	if !ok {
		return false, nil
	}
	row.ticket.ProgressPercent = percent
	row.ticket.UpdatedAt = s.nowUTC()
	s.tickets[id] = row
	return true, nil
}

func (s *Store) Finalize(_ context.Context, in repository.FinalizeInput) (repository.FinalizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.tickets[in.TicketID]
	if !ok {
		return repository.FinalizeResult{}, nil
	}
	delete(s.tickets, in.TicketID)
	t := row.ticket
	result := repository.FinalizeResult{Deleted: true, StationID: t.StationID}

	if t.ReservedConnector != "" {
		if err := s.releaseLocked(t.StationID, t.ReservedConnector); err == nil {
			result.ReleasedConnector = t.ReservedConnector
		}
	}

	for id, v := range s.vehicles {
		match := id == t.VehicleID
		if t.VehicleID.IsZero() {
			match = v.OwnerID == t.UserID && v.ChargingStatus == models.VehicleCharging
		}
		if match {
			v.ChargingStatus = models.VehicleIdle
			s.vehicles[id] = v
		}
	}

	for _, h := range s.history {
		if h.TicketID == in.History.TicketID {
			return result, nil
		}
	}
	h := in.History
	if h.ID.IsZero() {
		h.ID = models.NewID()
	}
	h.CreatedAt = s.nowUTC()
	s.history = append(s.history, h)
	result.HistoryRecorded = true
	return result, nil
}

// History

func (s *Store) ListHistory(_ context.Context, userID models.ID, since time.Time) ([]models.ChargingHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.ChargingHistory
	for _, h := range s.history {
		if h.UserID == userID && !h.EndedAt.Before(since) {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	return out, nil
}

// Users

func (s *Store) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for _, existing := range s.users {
		if existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = models.NewID()
	}
	user.CreatedAt = s.nowUTC()
	s.users[user.ID] = *user
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			cp := u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetUser(_ context.Context, id models.ID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (s *Store) SetRole(_ context.Context, id models.ID, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Role = role
	s.users[id] = u
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	for id, existing := range s.users {
		if id != user.ID && existing.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	user.CreatedAt = current.CreatedAt
	s.users[user.ID] = *user
	return nil
}
