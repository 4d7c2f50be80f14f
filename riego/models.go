package riego

import "time"

// Reading is a single hygrometer measurement.
type Reading struct {
	Temp     float32   // Temperature in C
	Humidity float32   // Relative humidity in %
	Time     time.Time // When the reading was taken
}

// Reason is why the pump was started.
type Reason byte

// Enum of watering reasons
const (
	ReasonNone Reason = iota
	ReasonDry         // Hygro reading below threshold
	ReasonDeep        // Scheduled deep watering
	ReasonManual      // Requested by a user
)

func (r Reason) String() string {
	switch r {
	case ReasonDry:
		return "dry"
	case ReasonDeep:
		return "deep"
	case ReasonManual:
		return "manual"
	}
	return "none"
}

// ParseReason is the inverse of Reason.String. Unknown values are ReasonNone.
func ParseReason(s string) Reason {
	switch s {
	case "dry":
		return ReasonDry
	case "deep":
		return ReasonDeep
	case "manual":
		return ReasonManual
	}
	return ReasonNone
}

// PumpState is the state of the pump relay.
type PumpState byte

// Enum of pump states
const (
	PumpIdle PumpState = iota
	PumpWatering
)

func (ps PumpState) String() string {
	if ps == PumpWatering {
		return "watering"
	}
	return "idle"
}

// Status is the state of the controller after a loop pass.
// It is what gets pushed to websocket clients and MQTT.
type Status struct {
	Name         string
	Time         time.Time
	Reading      Reading
	SensorOK     bool
	TankOK       bool
	Pump         PumpState
	Reason       Reason // Reason for the current or last watering
	LastWatering time.Time
	LastDeep     time.Time
	NextDeep     time.Time
	Clock        string // Which clock is in use (ds1302/system)
}
