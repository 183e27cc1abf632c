package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository/memstore"
)

func TestChargingSessionEndToEnd(t *testing.T) {
	h := newHarness(t, harnessOptions{batteryPercent: 40})
	ctx := context.Background()

	requested := h.request()
	assert.Equal(t, models.TicketRequested, requested.Status)
	assert.Equal(t, models.ChargingNotStarted, requested.ChargingStatus)
	assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2), "request must not reserve")

	started := h.start()
	assert.Equal(t, models.ChargingInProgress, started.ChargingStatus)
	assert.EqualValues(t, 1_800_000, started.ChargingDurationMs)
	require.NotNil(t, started.StartingBatteryPercent)
	assert.Equal(t, 40, *started.StartingBatteryPercent)
	require.NotNil(t, started.EstimatedCompletionAt)
	assert.Equal(t, h.clock.Now().Add(30*time.Minute), *started.EstimatedCompletionAt)
	assert.Equal(t, h.vehicle.ID, started.VehicleInfo.ID)
	assert.Equal(t, 1, h.availablePorts(models.ConnectorCCS2))
	assert.Equal(t, 1, h.sub.count("started"))

	h.clock.Advance(15 * time.Minute)
	mid, err := h.svc.UpdateProgress(ctx, h.userID, h.stationID)
	require.NoError(t, err)
	require.NotNil(t, mid.Ticket)
	assert.Equal(t, 50, mid.Ticket.ProgressPercent)
	assert.Equal(t, 70, *mid.Ticket.BatteryPercentage)

	h.clock.Advance(15 * time.Minute)
	done, err := h.svc.UpdateProgress(ctx, h.userID, h.stationID)
	require.NoError(t, err)
	assert.Nil(t, done.Ticket)
	require.NotNil(t, done.Completed)
	assert.Equal(t, 100, done.Completed.ProgressPercent)
	assert.Equal(t, models.ChargingCompleted, done.Completed.ChargingStatus)
	assert.Equal(t, 100, *done.Completed.BatteryPercentage)

	active, err := h.svc.ActiveTicket(ctx, h.userID, h.stationID)
	require.NoError(t, err)
	assert.Nil(t, active)

	history := h.history()
	require.Len(t, history, 1)
	assert.Equal(t, models.OutcomeCompleted, history[0].Outcome)
	assert.Equal(t, 100, *history[0].BatteryPercentage)
	assert.Equal(t, "Central Plaza Fast Charge", history[0].StationName)
	assert.Equal(t, "Ioniq 5", history[0].VehicleName)

	assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2))
	v := h.loadVehicle()
	assert.Equal(t, models.VehicleIdle, v.ChargingStatus)
	assert.Equal(t, 100, v.BatteryPercent)

	completed := h.sub.last("completed")
	require.NotNil(t, completed)
	assert.Nil(t, completed["ticket"])
	assert.NotNil(t, completed["completedTicket"])
	assert.False(t, h.hub.HasTimer(started.ID))
}

func TestFullBatteryCompletesOnFirstCheck(t *testing.T) {
	h := newHarness(t, harnessOptions{batteryPercent: 100})
	ctx := context.Background()

	h.request()
	started := h.start()
	assert.EqualValues(t, 0, started.ChargingDurationMs)

	waitFor(t, time.Second, func() bool {
		active, err := h.svc.ActiveTicket(ctx, h.userID, h.stationID)
		return err == nil && active == nil
	})
	waitFor(t, time.Second, func() bool { return len(h.history()) == 1 })
	assert.Equal(t, models.OutcomeCompleted, h.history()[0].Outcome)
	assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2))
	assert.Equal(t, 1, h.sub.count("completed"))
}

func TestConcurrentCompletionRecordsOnce(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	h.request()
	h.start()
	h.clock.Advance(10 * time.Minute)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.CompleteCharging(ctx, h.userID, h.stationID, false)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrNotFound)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Len(t, h.history(), 1)
	assert.Equal(t, 1, h.sub.count("completed"))
	assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2))
}

func TestCancelReleasesAtAnyProgress(t *testing.T) {
	cases := []struct {
		name         string
		start        bool
		elapsed      time.Duration
		wantProgress int
		wantBattery  *int
	}{
		{name: "before start", start: false},
		{name: "at zero", start: true, wantProgress: 0, wantBattery: intp(40)},
		{name: "halfway", start: true, elapsed: 15 * time.Minute, wantProgress: 50, wantBattery: intp(70)},
		{name: "at full", start: true, elapsed: 30 * time.Minute, wantProgress: 100, wantBattery: intp(100)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{batteryPercent: 40})
			ctx := context.Background()
			h.request()
			if tc.start {
				h.start()
			}
			h.clock.Advance(tc.elapsed)

			cancelled, err := h.svc.CompleteCharging(ctx, h.userID, h.stationID, true)
			require.NoError(t, err)
			assert.Equal(t, models.TicketCancelled, cancelled.Status)
			assert.Equal(t, tc.wantProgress, cancelled.ProgressPercent)
			assert.Equal(t, tc.wantBattery, cancelled.BatteryPercentage)

			assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2))
			assert.Equal(t, models.VehicleIdle, h.loadVehicle().ChargingStatus)

			history := h.history()
			require.Len(t, history, 1)
			assert.Equal(t, models.OutcomeCancelled, history[0].Outcome)
			assert.Equal(t, tc.wantProgress, *history[0].ProgressPercent)

			frame := h.sub.last("cancelled")
			require.NotNil(t, frame)
			assert.Nil(t, frame["ticket"])
			assert.NotNil(t, frame["cancelledTicket"])
		})
	}
}

func TestIdempotentStartDoesNotDoubleReserve(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.request()
	first := h.start()
	h.clock.Advance(time.Minute)

	second, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID})
	require.NoError(t, err)

	assert.Equal(t, 1, h.availablePorts(models.ConnectorCCS2))
	assert.Equal(t, *first.StartedAt, *second.StartedAt)
	assert.Equal(t, first.ChargingDurationMs, second.ChargingDurationMs)
	assert.Equal(t, 1, h.hub.ActiveTimers())
}

func TestRestartKeepsBoundVehicleAndConnector(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	ts := h.clock.Now()
	leaf := &models.Vehicle{
		ID:                   models.NewID(),
		OwnerID:              h.userID,
		Name:                 "Leaf",
		ConnectorTypes:       []models.ConnectorType{models.ConnectorCCS2},
		BatteryPercent:       90,
		BatteryStatus:        battery.StatusFull,
		ChargingStatus:       models.VehicleIdle,
		LastBatteryUpdatedAt: &ts,
	}
	require.NoError(t, h.store.CreateVehicle(ctx, leaf))

	h.request()
	first := h.start()
	h.clock.Advance(time.Minute)

	_, err := h.svc.StartCharging(ctx, h.userID, StartInput{StationID: h.stationID, VehicleID: leaf.ID})
	assert.ErrorIs(t, err, ErrConflict)
	_, err = h.svc.StartCharging(ctx, h.userID, StartInput{StationID: h.stationID, ConnectorType: models.ConnectorCHAdeMO})
	assert.ErrorIs(t, err, ErrConflict)

	again, err := h.svc.StartCharging(ctx, h.userID, StartInput{
		StationID:     h.stationID,
		VehicleID:     h.vehicle.ID,
		ConnectorType: models.ConnectorCCS2,
	})
	require.NoError(t, err)
	assert.Equal(t, h.vehicle.ID, again.VehicleID)
	assert.Equal(t, *first.StartingBatteryPercent, *again.StartingBatteryPercent)
	assert.Equal(t, 1, h.availablePorts(models.ConnectorCCS2))

	_, err = h.svc.CompleteCharging(ctx, h.userID, h.stationID, true)
	require.NoError(t, err)

	assert.Equal(t, models.VehicleIdle, h.loadVehicle().ChargingStatus)
	other, err := h.store.GetVehicle(ctx, leaf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VehicleIdle, other.ChargingStatus)
	assert.Equal(t, 90, other.BatteryPercent)
	assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2))
}

func TestConcurrentStartsKeepOneReservation(t *testing.T) {
	h := newHarness(t, harnessOptions{ports: 4, available: 4})
	h.request()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, h.availablePorts(models.ConnectorCCS2))
	assert.Equal(t, 1, h.hub.ActiveTimers())
}

func TestStartRequiresVehicle(t *testing.T) {
	h := newHarness(t, harnessOptions{noVehicle: true})
	h.request()

	_, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 422, StatusCode(err))
	assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2))
}

func TestStartWithoutPortsConflicts(t *testing.T) {
	h := newHarness(t, harnessOptions{ports: 1, available: 0})
	h.request()

	_, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 409, StatusCode(err))
}

func TestStartWithoutActiveTicket(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	_, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartRejectsForeignVehicle(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.request()
	other := &models.Vehicle{ID: models.NewID(), OwnerID: models.NewID(), Name: "Other", Active: true}
	require.NoError(t, h.store.CreateVehicle(context.Background(), other))

	_, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID, VehicleID: other.ID})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID, VehicleID: models.NewID()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStartRollsBackReservationOnWriteFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{tickets: func(s *memstore.Store) TicketStore {
		return failingStartTickets{Store: s, markErr: errStoreDown}
	}})
	h.request()

	_, err := h.svc.StartCharging(context.Background(), h.userID, StartInput{StationID: h.stationID})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInternal)
	assert.Equal(t, 500, StatusCode(err))
	assert.NotContains(t, PublicMessage(err), "store down")
	assert.Equal(t, 2, h.availablePorts(models.ConnectorCCS2))
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	_, err := h.svc.RequestTicket(ctx, h.userID, RequestInput{StationID: h.stationID, ConnectorType: "NACS"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.svc.RequestTicket(ctx, h.userID, RequestInput{StationID: h.stationID, ConnectorType: models.ConnectorCHAdeMO})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = h.svc.RequestTicket(ctx, h.userID, RequestInput{StationID: models.NewID(), ConnectorType: models.ConnectorCCS2})
	assert.ErrorIs(t, err, ErrNotFound)

	other := &models.Vehicle{ID: models.NewID(), OwnerID: models.NewID(), Name: "Other"}
	require.NoError(t, h.store.CreateVehicle(ctx, other))
	_, err = h.svc.RequestTicket(ctx, h.userID, RequestInput{StationID: h.stationID, ConnectorType: models.ConnectorCCS2, VehicleID: other.ID})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCompleteBeforeStartIsRejected(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.request()
	_, err := h.svc.CompleteCharging(context.Background(), h.userID, h.stationID, false)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, h.history())
}

func TestActiveTicketEnsuresSingleTimer(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()
	h.request()
	started := h.start()

	for i := 0; i < 3; i++ {
		view, err := h.svc.ActiveTicket(ctx, h.userID, h.stationID)
		require.NoError(t, err)
		require.NotNil(t, view)
	}
	assert.Equal(t, 1, h.hub.ActiveTimers())
	assert.True(t, h.hub.HasTimer(started.ID))
}

func TestUpdateProgressBeforeStartReturnsTicket(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.request()
	res, err := h.svc.UpdateProgress(context.Background(), h.userID, h.stationID)
	require.NoError(t, err)
	require.NotNil(t, res.Ticket)
	assert.Equal(t, 0, res.Ticket.ProgressPercent)
	assert.Nil(t, res.Ticket.BatteryPercentage)
	assert.Equal(t, 0, h.hub.ActiveTimers())
}

func intp(v int) *int { return &v }
