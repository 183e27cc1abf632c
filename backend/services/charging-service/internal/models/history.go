package models

import "time"

// Outcome is how a charging session ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeCancelled Outcome = "CANCELLED"
)

// ChargingHistory is the durable audit record of a finished session. TicketID is unique.
type ChargingHistory struct {
	ID                     ID            `json:"id"`
	UserID                 ID            `json:"user"`
	TicketID               ID            `json:"ticketId"`
	StationID              ID            `json:"station,omitempty"`
	StationName            string        `json:"stationName,omitempty"`
	StationAddress         string        `json:"stationAddress,omitempty"`
	VehicleID              ID            `json:"vehicle,omitempty"`
	VehicleName            string        `json:"vehicleName,omitempty"`
	ConnectorType          ConnectorType `json:"connectorType,omitempty"`
	StartedAt              *time.Time    `json:"startedAt,omitempty"`
	EndedAt                time.Time     `json:"endedAt"`
	Outcome                Outcome       `json:"outcome"`
	ProgressPercent        *int          `json:"progressPercent,omitempty"`
	StartingBatteryPercent *int          `json:"startingBatteryPercent,omitempty"`
	BatteryPercentage      *int          `json:"batteryPercentage,omitempty"`
	ChargingDurationMs     *int64        `json:"chargingDurationMs,omitempty"`
	CreatedAt              time.Time     `json:"createdAt"`
}
