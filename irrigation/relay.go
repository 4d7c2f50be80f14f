package irrigation

import (
	"log"
	"sync"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

// Switch is anything that can be switched on/off. The pump relay in practice.
type Switch interface {
	On()
	Off()
	IsOn() bool
}

// Relay drives a relay board input on a gpio pin.
type Relay struct {
	mu        sync.Mutex
	pin       rpio.Pin
	activeLow bool
	on        bool
}

// NewRelay sets the pin as output and makes sure the relay starts off.
// Most relay boards switch on when their input is pulled low.
func NewRelay(p int, activeLow bool) *Relay {
	r := &Relay{pin: rpio.Pin(p), activeLow: activeLow}
	r.pin.Mode(rpio.Output)
	r.Off()
	return r
}

func (r *Relay) set(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.on = on
	if on != r.activeLow {
		r.pin.High()
	} else {
		r.pin.Low()
	}
}

// On closes the relay.
func (r *Relay) On() { r.set(true) }

// Off opens the relay.
func (r *Relay) Off() { r.set(false) }

// IsOn reports the last set state.
func (r *Relay) IsOn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.on
}

// FakeRelay only logs. Used when gpio is not available.
type FakeRelay struct {
	mu       sync.Mutex
	on       bool
	Switches int // number of times switched on
}

func (f *FakeRelay) On() {
	f.mu.Lock()
	f.on = true
	f.Switches++
	f.mu.Unlock()
	log.Printf("Setting fake pump to: on")
}

func (f *FakeRelay) Off() {
	f.mu.Lock()
	f.on = false
	f.mu.Unlock()
	log.Printf("Setting fake pump to: off")
}

func (f *FakeRelay) IsOn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.on
}
