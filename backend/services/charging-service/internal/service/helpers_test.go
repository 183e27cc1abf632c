package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/effects"
	"chargeway/backend/services/charging-service/internal/inventory"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/realtime"
	"chargeway/backend/services/charging-service/internal/repository"
	"chargeway/backend/services/charging-service/internal/repository/memstore"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingSubscriber struct {
	mu     sync.Mutex
	frames []map[string]any
}

func (r *recordingSubscriber) Send(msg []byte) error {
	var frame map[string]any
	if err := json.Unmarshal(msg, &frame); err != nil {
		return err
	}
	r.mu.Lock()
	r.frames = append(r.frames, frame)
	r.mu.Unlock()
	return nil
}

func (r *recordingSubscriber) Close() {}

func (r *recordingSubscriber) count(frameType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		if f["type"] == frameType {
			n++
		}
	}
	return n
}

func (r *recordingSubscriber) last(frameType string) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if r.frames[i]["type"] == frameType {
			return r.frames[i]
		}
	}
	return nil
}

type harness struct {
	t         *testing.T
	clock     *fakeClock
	store     *memstore.Store
	hub       *realtime.Hub
	runner    *effects.Runner
	svc       *ChargingService
	userID    models.ID
	stationID models.ID
	vehicle   *models.Vehicle
	sub       *recordingSubscriber
}

type harnessOptions struct {
	batteryPercent int
	ports          int
	available      int
	noVehicle      bool
	tickets        func(*memstore.Store) TicketStore
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	if opts.ports == 0 {
		opts.ports, opts.available = 2, 2
	}
	if opts.batteryPercent == 0 {
		opts.batteryPercent = 40
	}

	clock := &fakeClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	store := memstore.New(memstore.WithClock(clock.Now))
	ctx := context.Background()

	station := &models.Station{
		ID:      models.NewID(),
		Name:    "Central Plaza Fast Charge",
		Address: "Jl. MH Thamrin, Jakarta",
		Status:  models.AvailabilityAvailable,
		Connectors: []models.Connector{
			{Type: models.ConnectorCCS2, PowerKW: 100, Ports: opts.ports, AvailablePorts: opts.available},
			{Type: models.ConnectorType2, PowerKW: 22, Ports: 1, AvailablePorts: 1},
		},
	}
	_, err := store.InsertStation(ctx, station)
	require.NoError(t, err)

	user := &models.User{Name: "Rider", Email: "rider@example.com", Role: models.RoleUser}
	require.NoError(t, store.CreateUser(ctx, user))

	h := &harness{
		t:         t,
		clock:     clock,
		store:     store,
		userID:    user.ID,
		stationID: station.ID,
		sub:       &recordingSubscriber{},
	}
	if !opts.noVehicle {
		ts := clock.Now()
		h.vehicle = &models.Vehicle{
			ID:                   models.NewID(),
			OwnerID:              user.ID,
			Name:                 "Ioniq 5",
			ConnectorTypes:       []models.ConnectorType{models.ConnectorCCS2},
			Active:               true,
			BatteryPercent:       opts.batteryPercent,
			BatteryStatus:        battery.StatusFor(opts.batteryPercent),
			ChargingStatus:       models.VehicleIdle,
			LastBatteryUpdatedAt: &ts,
		}
		require.NoError(t, store.CreateVehicle(ctx, h.vehicle))
	}

	logger := zap.NewNop()
	h.hub = realtime.NewHub(time.Hour, nil, logger)
	h.runner = effects.NewRunner(effects.Options{Workers: 2}, nil, logger)
	t.Cleanup(func() {
		_ = h.hub.Shutdown(context.Background())
		_ = h.runner.Close(context.Background())
	})

	var tickets TicketStore = store
	if opts.tickets != nil {
		tickets = opts.tickets(store)
	}
	h.svc = NewChargingService(ChargingConfig{
		PerPercentInterval: 30 * time.Second,
		Battery:            battery.DefaultPolicy(),
	}, ChargingDeps{
		Stations:  store,
		Vehicles:  store,
		Tickets:   tickets,
		Inventory: inventory.New(store, nil, logger),
		Hub:       h.hub,
		Effects:   h.runner,
		Logger:    logger,
		Now:       clock.Now,
	})
	h.hub.Subscribe(realtime.SessionKey{UserID: user.ID, StationID: station.ID}, h.sub)
	return h
}

func (h *harness) request() *TicketView {
	h.t.Helper()
	view, err := h.svc.RequestTicket(context.Background(), h.userID, RequestInput{
		StationID:     h.stationID,
		ConnectorType: models.ConnectorCCS2,
	})
	require.NoError(h.t, err)
	return view
}

// start begins charging and waits for the timer's immediate tick so later clock
// movements cannot race with it.
func (h *harness) start() *TicketView {
	h.t.Helper()
	before := h.sub.count("progress")
	view, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID})
	require.NoError(h.t, err)
	if view.ProgressPercent < 100 && view.ChargingDurationMs > 0 {
		waitFor(h.t, time.Second, func() bool { return h.sub.count("progress") > before })
	}
	return view
}

func (h *harness) availablePorts(connector models.ConnectorType) int {
	h.t.Helper()
	st, err := h.store.GetStation(context.Background(), h.stationID)
	require.NoError(h.t, err)
	c, ok := st.Connector(connector)
	require.True(h.t, ok)
	return c.AvailablePorts
}

func (h *harness) history() []models.ChargingHistory {
	h.t.Helper()
	entries, err := h.store.ListHistory(context.Background(), h.userID, time.Time{})
	require.NoError(h.t, err)
	return entries
}

func (h *harness) loadVehicle() *models.Vehicle {
	h.t.Helper()
	h.runner.Flush()
	v, err := h.store.GetVehicle(context.Background(), h.vehicle.ID)
	require.NoError(h.t, err)
	return v
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

type failingStartTickets struct {
	*memstore.Store
	markErr error
}

func (f failingStartTickets) MarkStarted(context.Context, repository.StartUpdate) (bool, error) {
	return false, f.markErr
}

var errStoreDown = errors.New("store down")
