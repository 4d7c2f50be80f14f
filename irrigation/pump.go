package irrigation

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Pump errors
var (
	ErrBadDuration = errors.New("watering duration must be positive")
	ErrBusy        = errors.New("pump already running")
	ErrTankEmpty   = errors.New("water tank empty")
	ErrStopped     = errors.New("watering stopped early")
)

// Level reports if there is water to pump.
type Level interface {
	Full() bool
}

// levelCheck is how often the tank is re-checked while pumping.
var levelCheck = time.Second

// Pump runs a Switch for bounded amounts of time.
type Pump struct {
	sw    Switch
	level Level
	limit time.Duration // hard cap for any single run, 0 for none

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewPump creates a pump on the given switch. level may be nil when there is no tank sensor.
func NewPump(sw Switch, level Level, limit time.Duration) *Pump {
	return &Pump{sw: sw, level: level, limit: limit}
}

func (p *Pump) full() bool {
	return p.level == nil || p.level.Full()
}

// Run switches the pump on for d, blocking until it is switched off again.
// The pump is always off when Run returns. The actual on time is returned.
func (p *Pump) Run(ctx context.Context, d time.Duration) (time.Duration, error) {
	if d <= 0 {
		return 0, ErrBadDuration
	}
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return 0, ErrBusy
	}
	if !p.full() {
		p.mu.Unlock()
		return 0, ErrTankEmpty
	}
	if p.limit > 0 && d > p.limit {
		d = p.limit
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	start := time.Now()
	p.sw.On()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.sw.Off()
		p.cancel = nil
		p.mu.Unlock()
		cancel()
	}()

	done := time.NewTimer(d)
	defer done.Stop()
	check := time.NewTicker(levelCheck)
	defer check.Stop()
	for {
		select {
		case <-done.C:
			return time.Since(start), nil
		case <-ctx.Done():
			return time.Since(start), ErrStopped
		case <-check.C:
			if !p.full() {
				return time.Since(start), ErrTankEmpty
			}
		}
	}
}

// Stop ends a running watering early. No-op when idle.
func (p *Pump) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Unlock()
}

// Running reports if a watering is in progress.
func (p *Pump) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}
