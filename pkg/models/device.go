package models

// DeviceConfig is the locally cached device configuration as delivered by
// the management server. Only the fields the agent consumes are decoded.
type DeviceConfig struct {
	DeviceID      string `json:"deviceId"`
	ServerProject string `json:"serverProject"`

	// Custom1 optionally holds a PolicyWrapper JSON object.
	Custom1 string `json:"custom1"`
}

// Location is the latest known device position.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Ts  int64   `json:"ts"` // epoch ms
}

// Gps is the position part of a DetailedInfo sample.
type Gps struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// DetailedInfo is one device telemetry sample.
type DetailedInfo struct {
	Ts  int64 `json:"ts"`
	Gps *Gps  `json:"gps,omitempty"`
}
