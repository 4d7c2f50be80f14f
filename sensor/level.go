package sensor

import (
	rpio "github.com/stianeikeland/go-rpio/v4"
)

// Level is a float switch in the water tank.
// The switch closes to high while there is water above it.
type Level struct {
	pin rpio.Pin
}

// NewLevel sets up the pin as a pulled down input. rpio must already be open.
func NewLevel(p int) *Level {
	pin := rpio.Pin(p)
	pin.Input()
	pin.PullDown() // Make sure default state is low
	return &Level{pin: pin}
}

// Full reports if the tank has water.
func (l *Level) Full() bool {
	return l.pin.Read() == rpio.High
}

// Always is used when there is no level switch.
type Always struct{}

// Full is always true.
func (Always) Full() bool { return true }
