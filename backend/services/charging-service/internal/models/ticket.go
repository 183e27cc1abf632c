package models

import "time"

// TicketStatus is the commercial lifecycle of a ticket.
type TicketStatus string

const (
	TicketRequested TicketStatus = "REQUESTED"
	TicketPaid      TicketStatus = "PAID"
	TicketCancelled TicketStatus = "CANCELLED"
)

// ActiveTicketStatuses are the statuses that make a ticket the user's live one at a station.
var ActiveTicketStatuses = []TicketStatus{TicketRequested, TicketPaid}

// IsActive reports whether the status counts as active.
func (s TicketStatus) IsActive() bool {
	return s == TicketRequested || s == TicketPaid
}

// ChargingStatus is the charging sub-state of a ticket.
type ChargingStatus string

const (
	ChargingNotStarted ChargingStatus = "NOT_STARTED"
	ChargingInProgress ChargingStatus = "IN_PROGRESS"
	ChargingCompleted  ChargingStatus = "COMPLETED"
)

// ChargingTicket is a user's claim on a station connector.
type ChargingTicket struct {
	ID                     ID             `json:"id"`
	UserID                 ID             `json:"user"`
	StationID              ID             `json:"station"`
	VehicleID              ID             `json:"vehicle,omitempty"`
	ConnectorType          ConnectorType  `json:"connectorType"`
	Status                 TicketStatus   `json:"status"`
	ChargingStatus         ChargingStatus `json:"chargingStatus"`
	ProgressPercent        int            `json:"progressPercent"`
	StartedAt              *time.Time     `json:"startedAt,omitempty"`
	CompletedAt            *time.Time     `json:"completedAt,omitempty"`
	StartingBatteryPercent *int           `json:"startingBatteryPercent,omitempty"`
	ChargingDurationMs     int64          `json:"chargingDurationMs"`
	ReservedConnector      ConnectorType  `json:"-"`
	CreatedAt              time.Time      `json:"createdAt"`
	UpdatedAt              time.Time      `json:"updatedAt"`
}

// Charging reports whether the ticket has a running session.
func (t *ChargingTicket) Charging() bool {
	return t.ChargingStatus == ChargingInProgress && t.StartedAt != nil
}

// Clone returns a deep copy.
func (t ChargingTicket) Clone() ChargingTicket {
	out := t
	if t.StartedAt != nil {
		ts := *t.StartedAt
		out.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	if t.StartingBatteryPercent != nil {
		p := *t.StartingBatteryPercent
		out.StartingBatteryPercent = &p
	}
	return out
}
