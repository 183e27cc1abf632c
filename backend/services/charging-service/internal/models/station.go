package models

// ConnectorType enumerates the plug standards a station can offer.
type ConnectorType string

const (
	ConnectorCCS2    ConnectorType = "CCS2"
	ConnectorType2   ConnectorType = "Type2"
	ConnectorCHAdeMO ConnectorType = "CHAdeMO"
)

// ConnectorTypes lists every supported connector type.
var ConnectorTypes = []ConnectorType{ConnectorCCS2, ConnectorType2, ConnectorCHAdeMO}

// Valid reports whether c is a supported connector type.
func (c ConnectorType) Valid() bool {
	for _, known := range ConnectorTypes {
		if c == known {
			return true
		}
	}
	return false
}

// Availability is the advertised station state.
type Availability string

const (
	AvailabilityAvailable Availability = "AVAILABLE"
	AvailabilityBusy      Availability = "BUSY"
	AvailabilityOffline   Availability = "OFFLINE"
)

// Connector is one connector type at a station with its port pool.
type Connector struct {
	Type           ConnectorType `json:"type"`
	PowerKW        float64       `json:"powerKW"`
	Ports          int           `json:"ports"`
	AvailablePorts int           `json:"availablePorts"`
}

// StationPhoto is a placeholder gradient tile shown in the app.
type StationPhoto struct {
	Label    string `json:"label"`
	Gradient string `json:"gradient"`
}

// StationPricing holds tariffs in the station's currency.
type StationPricing struct {
	Currency        string   `json:"currency"`
	PerKwh          float64  `json:"perKwh"`
	FastPerKwh      *float64 `json:"fastPerKwh,omitempty"`
	UltraFastPerKwh *float64 `json:"ultraFastPerKwh,omitempty"`
	PerMinute       *float64 `json:"perMinute,omitempty"`
	ParkingFee      string   `json:"parkingFee,omitempty"`
}

// Station is a charging location.
type Station struct {
	ID             ID             `json:"id"`
	Name           string         `json:"name"`
	Lat            float64        `json:"lat"`
	Lng            float64        `json:"lng"`
	Address        string         `json:"address"`
	Connectors     []Connector    `json:"connectors"`
	Status         Availability   `json:"status"`
	LastUpdatedISO string         `json:"lastUpdatedISO"`
	Photos         []StationPhoto `json:"photos"`
	Pricing        StationPricing `json:"pricing"`
	Amenities      []string       `json:"amenities"`
	Notes          string         `json:"notes,omitempty"`
}

// Connector returns the connector entry of the given type.
func (s *Station) Connector(t ConnectorType) (Connector, bool) {
	for _, c := range s.Connectors {
		if c.Type == t {
			return c, true
		}
	}
	return Connector{}, false
}

// Clone returns a deep copy.
func (s Station) Clone() Station {
	out := s
	out.Connectors = append([]Connector(nil), s.Connectors...)
	out.Photos = append([]StationPhoto(nil), s.Photos...)
	out.Amenities = append([]string(nil), s.Amenities...)
	return out
}
