package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"chargeway/backend/services/charging-service/internal/battery"
	"chargeway/backend/services/charging-service/internal/models"
	"chargeway/backend/services/charging-service/internal/repository"
)

// TicketView is the externally visible ticket snapshot shared by HTTP responses and
// socket frames.
type TicketView struct {
	models.ChargingTicket
	EstimatedCompletionAt *time.Time      `json:"estimatedCompletionAt,omitempty"`
	BatteryPercentage     *int            `json:"batteryPercentage,omitempty"`
	StationInfo           *models.Station `json:"stationInfo"`
	VehicleInfo           *models.Vehicle `json:"vehicleInfo"`
}

// Projector builds ticket views.
type Projector struct {
	stations StationStore
	vehicles VehicleStore
	battery  *batteryReader
	now      func() time.Time
	logger   *zap.Logger
}

// BuildPayload merges the ticket with its station and vehicle. The vehicle is the
// ticket's own or, when unbound, the user's active one. Lookup failures leave the
// corresponding info empty; only context cancellation is returned as an error.
func (p *Projector) BuildPayload(ctx context.Context, ticket *models.ChargingTicket, userID, stationID models.ID) (*TicketView, error) {
	if ticket == nil {
		return nil, nil
	}
	if userID.IsZero() {
		userID = ticket.UserID
	}
	if stationID.IsZero() {
		stationID = ticket.StationID
	}

	var (
		station *models.Station
		vehicle *models.Vehicle
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		st, err := p.stations.GetStation(gctx, stationID)
		if err != nil {
			return p.lookupFailed(gctx, "station", stationID, err)
		}
		station = st
		return nil
	})
	g.Go(func() error {
		var (
			v   *models.Vehicle
			err error
		)
		if !ticket.VehicleID.IsZero() {
			v, err = p.vehicles.GetVehicle(gctx, ticket.VehicleID)
		} else {
			v, err = p.vehicles.ActiveVehicle(gctx, userID)
		}
		if err != nil {
			return p.lookupFailed(gctx, "vehicle", ticket.VehicleID, err)
		}
		vehicle = v
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.battery.refresh(vehicle, p.now())
	return newTicketView(ticket, station, vehicle), nil
}

func (p *Projector) lookupFailed(ctx context.Context, what string, id models.ID, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !errors.Is(err, repository.ErrNotFound) {
		p.logger.Warn("payload lookup failed", zap.String("what", what), zap.String("id", id.String()), zap.Error(err))
	}
	return nil
}

func newTicketView(ticket *models.ChargingTicket, station *models.Station, vehicle *models.Vehicle) *TicketView {
	view := &TicketView{
		ChargingTicket:        ticket.Clone(),
		EstimatedCompletionAt: EstimatedCompletion(ticket.StartedAt, ticket.ChargingDurationMs),
		StationInfo:           station,
		VehicleInfo:           vehicle,
	}
	view.setProgress(ticket.ProgressPercent)
	return view
}

// setProgress updates the progress and the battery percentage derived from it.
func (v *TicketView) setProgress(percent int) {
	v.ProgressPercent = battery.Clamp(percent)
	if v.StartingBatteryPercent == nil {
		v.BatteryPercentage = nil
		return
	}
	charged := battery.ChargedPercent(*v.StartingBatteryPercent, v.ProgressPercent)
	v.BatteryPercentage = &charged
}
