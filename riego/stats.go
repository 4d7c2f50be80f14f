package riego

import (
	"time"

	"github.com/google/uuid"
)

// WaterEvent is a single pump run.
// Used to track watering history.
type WaterEvent struct {
	ID       string
	Reason   Reason
	Start    time.Time
	Planned  time.Duration // Requested on time
	Actual   time.Duration // How long the pump actually ran
	Humidity float32       // Humidity when the run was decided
	Temp     float32       // Temp when the run was decided
	Err      string        `json:",omitempty"`
}

// NewWaterEvent creates an event with a fresh ID.
func NewWaterEvent(reason Reason, start time.Time, planned time.Duration, r Reading) WaterEvent {
	return WaterEvent{
		ID:       uuid.NewString(),
		Reason:   reason,
		Start:    start,
		Planned:  planned,
		Humidity: r.Humidity,
		Temp:     r.Temp,
	}
}
