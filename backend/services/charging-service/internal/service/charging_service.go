package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/inventory"
	"chargeway/backend/services/charging-service/internal/metrics"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/realtime"
	"chargeway/backend/services/charging-service/internal/repository"
)

const defaultTickTimeout = 10 * time.Second

// ChargingConfig tunes the simulated session.
type ChargingConfig struct {
	PerPercentInterval time.Duration
	TickTimeout        time.Duration
	Battery            battery.Policy
}

// ChargingDeps wires the collaborators of ChargingService.
type ChargingDeps struct {
	Stations  StationStore
	Vehicles  VehicleStore
	Tickets   TicketStore
	Inventory PortInventory
	Hub       *realtime.Hub
	Effects   EffectRunner
	Metrics   *metrics.Recorder
	Logger    *zap.Logger
	Now       func() time.Time
}

// ChargingService drives the ticket lifecycle NOT_STARTED -> IN_PROGRESS -> terminal.
type ChargingService struct {
	cfg       ChargingConfig
	stations  StationStore
	vehicles  VehicleStore
	tickets   TicketStore
	inventory PortInventory
	hub       *realtime.Hub
	effects   EffectRunner
	metrics   *metrics.Recorder
	projector *Projector
	logger    *zap.Logger
	now       func() time.Time
}

// NewChargingService builds the service.
func NewChargingService(cfg ChargingConfig, deps ChargingDeps) *ChargingService {
	if cfg.PerPercentInterval <= 0 {
		cfg.PerPercentInterval = DefaultPerPercentInterval
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = defaultTickTimeout
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	logger := deps.Logger.Named("charging")
	reader := &batteryReader{policy: cfg.Battery, vehicles: deps.Vehicles, effects: deps.Effects, logger: logger}
	return &ChargingService{
		cfg:       cfg,
		stations:  deps.Stations,
		vehicles:  deps.Vehicles,
		tickets:   deps.Tickets,
		inventory: deps.Inventory,
		hub:       deps.Hub,
		effects:   deps.Effects,
		metrics:   deps.Metrics,
		projector: &Projector{
			stations: deps.Stations,
			vehicles: deps.Vehicles,
			battery:  reader,
			now:      deps.Now,
			logger:   logger,
		},
		logger: logger,
		now:    deps.Now,
	}
}

// RequestInput is the body of a ticket request.
type RequestInput struct {
	StationID     models.ID
	ConnectorType models.ConnectorType
	VehicleID     models.ID
}

// RequestTicket creates a REQUESTED ticket. No port is reserved until charging starts.
func (s *ChargingService) RequestTicket(ctx context.Context, userID models.ID, in RequestInput) (*TicketView, error) {
	if !in.ConnectorType.Valid() {
		return nil, newError(ErrValidation, "Invalid connector type.")
	}
	station, err := s.stations.GetStation(ctx, in.StationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Station not found.")
		}
		return nil, s.fail("load station", err)
	}
	if _, ok := station.Connector(in.ConnectorType); !ok {
		return nil, newError(ErrValidation, "Connector type is not available at this station.")
	}
	if !in.VehicleID.IsZero() {
		if _, err := s.ownedVehicle(ctx, userID, in.VehicleID); err != nil {
			return nil, err
		}
	}

	ticket := &models.ChargingTicket{
		ID:             models.NewID(),
		UserID:         userID,
		StationID:      in.StationID,
		VehicleID:      in.VehicleID,
		ConnectorType:  in.ConnectorType,
		Status:         models.TicketRequested,
		ChargingStatus: models.ChargingNotStarted,
	}
	if err := s.tickets.CreateTicket(ctx, ticket); err != nil {
		return nil, s.fail("create ticket", err)
	}
	s.metrics.SessionEvent("requested")
	s.logger.Info("ticket requested", zap.String("ticket_id", ticket.ID.String()),
		zap.String("user_id", userID.String()), zap.String("station_id", in.StationID.String()))
	return s.projector.BuildPayload(ctx, ticket, userID, in.StationID)
}

// StartInput is the body of a start request. Empty fields fall back to the ticket.
type StartInput struct {
	StationID     models.ID
	ConnectorType models.ConnectorType
	VehicleID     models.ID
}

// StartCharging moves the active ticket to IN_PROGRESS, reserving a port unless the
// session is already running.
func (s *ChargingService) StartCharging(ctx context.Context, userID models.ID, in StartInput) (*TicketView, error) {
	ticket, err := s.activeTicket(ctx, userID, in.StationID)
	if err != nil {
		return nil, err
	}
	if ticket.Charging() {
		// A running session keeps its vehicle and connector.
		if err := sameSession(ticket, in); err != nil {
			return nil, err
		}
		in.ConnectorType = ticket.ConnectorType
		in.VehicleID = ticket.VehicleID
	}

	connector := in.ConnectorType
	if connector == "" {
		connector = ticket.ConnectorType
	}
	if !connector.Valid() {
		return nil, newError(ErrValidation, "Invalid connector type.")
	}

	vehicle, err := s.resolveVehicle(ctx, userID, in.VehicleID, ticket.VehicleID)
	if err != nil {
		return nil, err
	}
	s.projector.battery.refresh(vehicle, s.now())

	upd := repository.StartUpdate{
		TicketID:      ticket.ID,
		ConnectorType: connector,
		VehicleID:     vehicle.ID,
	}
	started := false
	if ticket.Charging() {
		upd.StartedAt = *ticket.StartedAt
		upd.DurationMs = ticket.ChargingDurationMs
		upd.StartingBatteryPercent = vehicle.BatteryPercent
		if ticket.StartingBatteryPercent != nil {
			upd.StartingBatteryPercent = *ticket.StartingBatteryPercent
		}
		applied, err := s.tickets.MarkStarted(ctx, upd)
		if err != nil {
			return nil, s.fail("restart ticket", err)
		}
		if !applied {
			return nil, newError(ErrNotFound, "No active ticket for this station.")
		}
	} else {
		upd.StartedAt = s.now().UTC()
		upd.StartingBatteryPercent = battery.Clamp(vehicle.BatteryPercent)
		upd.DurationMs = ChargingDurationMs(upd.StartingBatteryPercent, s.cfg.PerPercentInterval)
		upd.ReservedConnector = connector
		upd.RequireNotStarted = true
		if started, err = s.reserveAndStart(ctx, ticket, upd); err != nil {
			return nil, err
		}
	}

	ticket, err = s.tickets.GetTicket(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "No active ticket for this station.")
		}
		return nil, s.fail("reload ticket", err)
	}

	if err := s.vehicles.SetChargingStatus(ctx, vehicle.ID, models.VehicleCharging); err != nil {
		s.logger.Warn("mark vehicle charging", zap.String("vehicle_id", vehicle.ID.String()), zap.Error(err))
		s.metrics.EffectFailed("vehicle.charging_status")
	}
	if started {
		s.metrics.SessionEvent("started")
		s.logger.Info("charging started", zap.String("ticket_id", ticket.ID.String()),
			zap.String("connector", string(connector)), zap.Int64("duration_ms", ticket.ChargingDurationMs))
	}

	view, err := s.projector.BuildPayload(ctx, ticket, userID, in.StationID)
	if err != nil {
		return nil, err
	}
	s.hub.Broadcast(sessionKey(ticket), realtime.Frame{Type: realtime.FrameStarted, Ticket: view})
	s.ensureTimer(ticket)
	return view, nil
}

// sameSession rejects start overrides that would rebind a running session.
func sameSession(ticket *models.ChargingTicket, in StartInput) error {
	if !in.VehicleID.IsZero() && in.VehicleID != ticket.VehicleID {
		return newError(ErrConflict, "Charging is already in progress with another vehicle.")
	}
	if in.ConnectorType != "" && in.ConnectorType != ticket.ConnectorType {
		return newError(ErrConflict, "Charging is already in progress on another connector.")
	}
	return nil
}

// reserveAndStart takes a port and records the start. A failed or lost write gives the
// port back. It reports whether this call started the session.
func (s *ChargingService) reserveAndStart(ctx context.Context, ticket *models.ChargingTicket, upd repository.StartUpdate) (bool, error) {
	outcome, err := s.inventory.Reserve(ctx, ticket.StationID, upd.ConnectorType)
	if err != nil {
		return false, s.fail("reserve port", err)
	}
	switch outcome {
	case inventory.NoAvailablePorts:
		return false, newError(ErrConflict, "No available ports for this connector type.")
	case inventory.NotFound:
		return false, newError(ErrValidation, "Connector type is not available at this station.")
	}

	applied, err := s.tickets.MarkStarted(ctx, upd)
	if err != nil {
		s.releaseReservation(ticket.StationID, upd.ConnectorType)
		return false, s.fail("start ticket", err)
	}
	if applied {
		return true, nil
	}

	// Another start won the race or the ticket ended meanwhile.
	s.releaseReservation(ticket.StationID, upd.ConnectorType)
	current, err := s.tickets.GetTicket(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, newError(ErrNotFound, "No active ticket for this station.")
		}
		return false, s.fail("reload ticket", err)
	}
	if !current.Charging() || !current.Status.IsActive() {
		return false, newError(ErrConflict, "Charging session changed, please retry.")
	}
	return false, nil
}

func (s *ChargingService) releaseReservation(stationID models.ID, connector models.ConnectorType) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()
	if err := s.inventory.Release(ctx, stationID, connector); err != nil {
		s.logger.Error("compensating release failed", zap.String("station_id", stationID.String()),
			zap.String("connector", string(connector)), zap.Error(err))
	}
}

// ActiveTicket returns the user's live ticket at the station, or nil. A running session
// that has reached 100% is completed first and nil is returned.
func (s *ChargingService) ActiveTicket(ctx context.Context, userID, stationID models.ID) (*TicketView, error) {
	ticket, err := s.tickets.ActiveTicket(ctx, userID, stationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, s.fail("load active ticket", err)
	}
	if ticket.Charging() {
		progress := Progress(ticket.StartedAt, ticket.ChargingDurationMs, s.now())
		if progress >= 100 {
			if _, err := s.finish(ctx, ticket, models.OutcomeCompleted); err != nil && !errors.Is(err, ErrNotFound) {
				return nil, err
			}
			return nil, nil
		}
		ticket.ProgressPercent = progress
		s.ensureTimer(ticket)
	}
	return s.projector.BuildPayload(ctx, ticket, userID, stationID)
}

// ProgressResult is either the running ticket or, once it finished, the completed one.
type ProgressResult struct {
	Ticket    *TicketView
	Completed *TicketView
}

// UpdateProgress recomputes and stores progress, completing the session at 100%.
func (s *ChargingService) UpdateProgress(ctx context.Context, userID, stationID models.ID) (ProgressResult, error) {
	ticket, err := s.activeTicket(ctx, userID, stationID)
	if err != nil {
		return ProgressResult{}, err
	}
	if !ticket.Charging() {
		view, err := s.projector.BuildPayload(ctx, ticket, userID, stationID)
		return ProgressResult{Ticket: view}, err
	}

	progress := Progress(ticket.StartedAt, ticket.ChargingDurationMs, s.now())
	if progress >= 100 {
		completed, err := s.finish(ctx, ticket, models.OutcomeCompleted)
		if err != nil {
			return ProgressResult{}, err
		}
		return ProgressResult{Completed: completed}, nil
	}

	if _, err := s.tickets.UpdateProgress(ctx, ticket.ID, progress); err != nil {
		return ProgressResult{}, s.fail("store progress", err)
	}
	ticket.ProgressPercent = progress
	s.ensureTimer(ticket)
	view, err := s.projector.BuildPayload(ctx, ticket, userID, stationID)
	return ProgressResult{Ticket: view}, err
}

// CompleteCharging ends the active ticket as COMPLETED, or CANCELLED when cancel is set.
func (s *ChargingService) CompleteCharging(ctx context.Context, userID, stationID models.ID, cancel bool) (*TicketView, error) {
	ticket, err := s.activeTicket(ctx, userID, stationID)
	if err != nil {
		return nil, err
	}
	if cancel {
		return s.finish(ctx, ticket, models.OutcomeCancelled)
	}
	if ticket.ChargingStatus == models.ChargingNotStarted {
		return nil, newError(ErrValidation, "Charging has not started yet.")
	}
	return s.finish(ctx, ticket, models.OutcomeCompleted)
}

// finish runs the terminal transition. The ticket delete inside Finalize guards against
// a second concurrent finish, which gets ErrNotFound and has no effect.
func (s *ChargingService) finish(ctx context.Context, ticket *models.ChargingTicket, outcome models.Outcome) (*TicketView, error) {
	now := s.now().UTC()
	view, err := s.projector.BuildPayload(ctx, ticket, ticket.UserID, ticket.StationID)
	if err != nil {
		return nil, err
	}

	view.CompletedAt = &now
	if outcome == models.OutcomeCompleted {
		view.ChargingStatus = models.ChargingCompleted
		view.setProgress(100)
	} else {
		view.Status = models.TicketCancelled
		progress := ticket.ProgressPercent
		if ticket.Charging() {
			progress = Progress(ticket.StartedAt, ticket.ChargingDurationMs, now)
		}
		view.setProgress(progress)
	}

	res, err := s.tickets.Finalize(ctx, repository.FinalizeInput{
		TicketID: ticket.ID,
		UserID:   ticket.UserID,
		History:  historyFor(view, outcome, now),
	})
	if err != nil {
		return nil, s.fail("finalize ticket", err)
	}
	if !res.Deleted {
		return nil, newError(ErrNotFound, "No active ticket for this station.")
	}

	s.hub.ClearTimer(ticket.ID)
	s.metrics.SessionEvent(string(outcomeEvent(outcome)))
	if res.ReleasedConnector != "" {
		s.metrics.Released()
	}
	if !ticket.VehicleID.IsZero() && view.BatteryPercentage != nil {
		vehicleID := ticket.VehicleID
		update := battery.Update{
			Percent:       *view.BatteryPercentage,
			Status:        battery.StatusFor(*view.BatteryPercentage),
			LastUpdatedAt: now,
		}
		s.effects.Go("vehicle.battery_final", func(ctx context.Context) error {
			return s.vehicles.UpdateBattery(ctx, vehicleID, update)
		})
	}
	s.logger.Info("charging finished", zap.String("ticket_id", ticket.ID.String()),
		zap.String("outcome", string(outcome)), zap.Int("progress", view.ProgressPercent),
		zap.Bool("history_recorded", res.HistoryRecorded))

	frame := realtime.Frame{Type: realtime.FrameCompleted, CompletedTicket: view}
	if outcome == models.OutcomeCancelled {
		frame = realtime.Frame{Type: realtime.FrameCancelled, CancelledTicket: view}
	}
	s.hub.Broadcast(sessionKey(ticket), frame)
	return view, nil
}

func outcomeEvent(outcome models.Outcome) realtime.FrameType {
	if outcome == models.OutcomeCancelled {
		return realtime.FrameCancelled
	}
	return realtime.FrameCompleted
}

func historyFor(view *TicketView, outcome models.Outcome, endedAt time.Time) models.ChargingHistory {
	progress := view.ProgressPercent
	duration := view.ChargingDurationMs
	h := models.ChargingHistory{
		ID:                     models.NewID(),
		UserID:                 view.UserID,
		TicketID:               view.ID,
		StationID:              view.StationID,
		VehicleID:              view.VehicleID,
		ConnectorType:          view.ConnectorType,
		StartedAt:              view.StartedAt,
		EndedAt:                endedAt,
		Outcome:                outcome,
		ProgressPercent:        &progress,
		StartingBatteryPercent: view.StartingBatteryPercent,
		BatteryPercentage:      view.BatteryPercentage,
		ChargingDurationMs:     &duration,
	}
	if view.StationInfo != nil {
		h.StationName = view.StationInfo.Name
		h.StationAddress = view.StationInfo.Address
	}
	if view.VehicleInfo != nil {
		if h.VehicleID.IsZero() {
			h.VehicleID = view.VehicleInfo.ID
		}
		h.VehicleName = view.VehicleInfo.Name
	}
	return h
}

// ensureTimer starts the progress timer of a running ticket.
func (s *ChargingService) ensureTimer(ticket *models.ChargingTicket) {
	if !ticket.Charging() {
		return
	}
	s.hub.EnsureTimer(ticket.ID, s.tickFunc(ticket.ID))
}

func (s *ChargingService) tickFunc(ticketID models.ID) realtime.TickFunc {
	return func(parent context.Context) bool {
		ctx, cancel := context.WithTimeout(parent, s.cfg.TickTimeout)
		defer cancel()

		ticket, err := s.tickets.GetTicket(ctx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return true
			}
			s.logger.Warn("tick load ticket", zap.String("ticket_id", ticketID.String()), zap.Error(err))
			return false
		}
		if !ticket.Charging() || !ticket.Status.IsActive() {
			return true
		}

		progress := Progress(ticket.StartedAt, ticket.ChargingDurationMs, s.now())
		if progress >= 100 {
			if _, err := s.finish(ctx, ticket, models.OutcomeCompleted); err != nil && !errors.Is(err, ErrNotFound) {
				s.logger.Warn("tick complete", zap.String("ticket_id", ticketID.String()), zap.Error(err))
				return false
			}
			return true
		}

		previous := ticket.ProgressPercent
		exists, err := s.tickets.UpdateProgress(ctx, ticketID, progress)
		if err != nil {
			s.logger.Warn("tick store progress", zap.String("ticket_id", ticketID.String()), zap.Error(err))
		} else if !exists {
			return true
		}
		ticket.ProgressPercent = progress

		view, err := s.projector.BuildPayload(ctx, ticket, ticket.UserID, ticket.StationID)
		if err != nil {
			return parent.Err() != nil
		}
		if progress != previous && !ticket.VehicleID.IsZero() && view.BatteryPercentage != nil {
			vehicleID := ticket.VehicleID
			update := battery.Update{
				Percent:       *view.BatteryPercentage,
				Status:        battery.StatusFor(*view.BatteryPercentage),
				LastUpdatedAt: s.now().UTC(),
			}
			s.effects.Go("vehicle.battery_progress", func(ctx context.Context) error {
				return s.vehicles.UpdateBattery(ctx, vehicleID, update)
			})
		}
		s.hub.Broadcast(sessionKey(ticket), realtime.Frame{Type: realtime.FrameProgress, Ticket: view})
		return false
	}
}

func (s *ChargingService) activeTicket(ctx context.Context, userID, stationID models.ID) (*models.ChargingTicket, error) {
	ticket, err := s.tickets.ActiveTicket(ctx, userID, stationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "No active ticket for this station.")
		}
		return nil, s.fail("load active ticket", err)
	}
	return ticket, nil
}

// resolveVehicle picks the explicit vehicle, then the ticket's, then the user's active one.
func (s *ChargingService) resolveVehicle(ctx context.Context, userID, explicit, bound models.ID) (*models.Vehicle, error) {
	if !explicit.IsZero() {
		return s.ownedVehicle(ctx, userID, explicit)
	}
	if !bound.IsZero() {
		v, err := s.vehicles.GetVehicle(ctx, bound)
		switch {
		case err == nil && v.OwnerID == userID:
			return v, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			return nil, s.fail("load vehicle", err)
		}
	}
	v, err := s.vehicles.ActiveVehicle(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrValidation, "Select a vehicle before starting to charge.")
		}
		return nil, s.fail("load active vehicle", err)
	}
	return v, nil
}

func (s *ChargingService) ownedVehicle(ctx context.Context, userID, vehicleID models.ID) (*models.Vehicle, error) {
	v, err := s.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, "Vehicle not found.")
		}
		return nil, s.fail("load vehicle", err)
	}
	if v.OwnerID != userID {
		return nil, newError(ErrForbidden, "You are not allowed to use this vehicle.")
	}
	return v, nil
}

func (s *ChargingService) fail(op string, err error) error {
	s.logger.Error(op, zap.Error(err))
	return internal(op, err)
}

func sessionKey(ticket *models.ChargingTicket) realtime.SessionKey {
	return realtime.SessionKey{UserID: ticket.UserID, StationID: ticket.StationID}
}
