package models

import (
	"time"

	"chargeway/backend/services/charging-service/internal/battery"
)

// VehicleChargingStatus mirrors whether a vehicle is plugged into a session.
type VehicleChargingStatus string

const (
	VehicleIdle     VehicleChargingStatus = "IDLE"
	VehicleCharging VehicleChargingStatus = "CHARGING"
)

// Vehicle belongs to a single user.
type Vehicle struct {
	ID                   ID                    `json:"id"`
	OwnerID              ID                    `json:"owner"`
	Name                 string                `json:"name"`
	ConnectorTypes       []ConnectorType       `json:"connector_type"`
	MinPower             float64               `json:"min_power"`
	Active               bool                  `json:"active"`
	BatteryPercent       int                   `json:"batteryPercent"`
	BatteryCapacity      *float64              `json:"batteryCapacity,omitempty"`
	BatteryStatus        battery.Status        `json:"batteryStatus"`
	ChargingStatus       VehicleChargingStatus `json:"chargingStatus"`
	LastBatteryUpdatedAt *time.Time            `json:"lastBatteryUpdatedAt,omitempty"`
}

// BatterySnapshot extracts the battery model input.
func (v *Vehicle) BatterySnapshot() battery.Snapshot {
	return battery.Snapshot{
		Percent:       v.BatteryPercent,
		Status:        v.BatteryStatus,
		Active:        v.Active,
		Charging:      v.ChargingStatus == VehicleCharging,
		LastUpdatedAt: v.LastBatteryUpdatedAt,
	}
}

// ApplyBattery copies a refreshed snapshot back onto the vehicle.
func (v *Vehicle) ApplyBattery(s battery.Snapshot) {
	v.BatteryPercent = s.Percent
	v.BatteryStatus = s.Status
	v.LastBatteryUpdatedAt = s.LastUpdatedAt
}

// Clone returns a deep copy.
func (v Vehicle) Clone() Vehicle {
	out := v
	out.ConnectorTypes = append([]ConnectorType(nil), v.ConnectorTypes...)
	if v.BatteryCapacity != nil {
		c := *v.BatteryCapacity
		out.BatteryCapacity = &c
	}
	if v.LastBatteryUpdatedAt != nil {
		ts := *v.LastBatteryUpdatedAt
		out.LastBatteryUpdatedAt = &ts
	}
	return out
}
