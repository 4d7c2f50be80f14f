package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gitlab.com/lologarithm/riego/datalog"
	"gitlab.com/lologarithm/riego/irrigation"
	"gitlab.com/lologarithm/riego/riego"
	"gitlab.com/lologarithm/riego/rnet"
	"gitlab.com/lologarithm/riego/rtc"
	"gitlab.com/lologarithm/riego/sensor"
)

const (
	readTries    = 10
	failureAlert = 3 // consecutive failed passes before alerting
	numReadings  = 2 // readings held for averaging temp
)

var errBusy = errors.New("a watering is already queued or running")

// controller owns the pump. Only the run loop starts waterings,
// everything else asks through submit.
type controller struct {
	name      string
	interval  time.Duration
	settings  irrigation.Settings
	read      sensor.ThermReader
	level     irrigation.Level
	pump      *irrigation.Pump
	clock     rtc.Clock
	clockName string
	store     *datalog.Store
	pub       *rnet.Publisher
	alerts    alerter
	metrics   *metrics
	push      func(rnet.Msg) // sends to websocket clients
	onWater   func()         // called after the pump ran, used by the fake sensor

	filter   *sensor.Filter
	hist     irrigation.History
	failures int
	commands chan rnet.Command

	mu     sync.RWMutex
	status riego.Status
}

func newController(cfg Config, read sensor.ThermReader, pump *irrigation.Pump, level irrigation.Level, clock rtc.Clock, clockName string, store *datalog.Store) *controller {
	if level == nil {
		level = sensor.Always{}
	}
	return &controller{
		name:      cfg.Name,
		interval:  cfg.Interval,
		settings:  cfg.Irrigation,
		read:      read,
		level:     level,
		pump:      pump,
		clock:     clock,
		clockName: clockName,
		store:     store,
		alerts:    logAlerter{},
		metrics:   newMetrics(),
		push:      func(rnet.Msg) {},
		filter:    sensor.NewFilter(numReadings),
		commands:  make(chan rnet.Command, 1),
		status:    riego.Status{Name: cfg.Name, Clock: clockName, TankOK: true},
	}
}

// now is the controller's wall time. Falls back to the system clock when the rtc fails.
func (c *controller) now() time.Time {
	t, err := c.clock.Now()
	if err != nil {
		log.Printf("[Error] Failed to read %s clock, using system time: %s", c.clockName, err)
		return time.Now()
	}
	return t
}

// Status is a copy of the latest status.
func (c *controller) Status() riego.Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *controller) updateStatus(fn func(s *riego.Status)) riego.Status {
	c.mu.Lock()
	fn(&c.status)
	c.status.LastWatering = c.hist.LastWatering
	c.status.LastDeep = c.hist.LastDeep
	c.status.NextDeep = irrigation.NextDeep(c.settings, c.hist, c.status.Time)
	s := c.status
	c.mu.Unlock()
	return s
}

func (c *controller) publish(s riego.Status) {
	if err := c.pub.Status(s); err != nil {
		log.Printf("[Error] Failed to publish status: %s", err)
	}
	c.push(rnet.Msg{Status: &s})
}

// submit hands a command to the loop. Stops take effect immediately.
func (c *controller) submit(cmd rnet.Command) error {
	if cmd.Stop {
		c.pump.Stop()
	}
	if cmd.Water <= 0 {
		return nil
	}
	if c.pump.Running() {
		return errBusy
	}
	select {
	case c.commands <- cmd:
		return nil
	default:
		return errBusy
	}
}

// run is the main loop: one pass immediately, then every interval or on command.
// Returns when ctx is done.
func (c *controller) run(ctx context.Context) {
	c.tick(ctx)
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.tick(ctx)
		case cmd := <-c.commands:
			c.manual(ctx, cmd.Water)
		}
	}
}

// tick reads the sensor, logs the reading and waters if needed.
func (c *controller) tick(ctx context.Context) {
	now := c.now()
	tankOK := c.level.Full()
	r, err := sensor.ReadWithRetry(c.read, readTries)
	if err == nil {
		r.Time = now
		err = c.filter.Add(r)
	}
	if err != nil {
		c.failures++
		c.metrics.sensorFailures.Inc()
		log.Printf("[Error] (%s) No usable reading (%d in a row): %s", rtc.Stamp(now), c.failures, err)
		if c.failures == failureAlert {
			go c.alerts.Alert(fmt.Sprintf("%s: hygrometer failing", c.name),
				fmt.Sprintf("No usable reading for %d passes, last error: %s. Watering is paused.", c.failures, err))
		}
		c.publish(c.updateStatus(func(s *riego.Status) {
			s.Time = now
			s.SensorOK = false
			s.TankOK = tankOK
		}))
		return
	}
	c.failures = 0

	avg, _ := c.filter.Average()
	c.metrics.reading(avg)
	if err := c.store.Write(datalog.ReadingRecord(avg, riego.PumpIdle)); err != nil {
		log.Printf("[Error] Failed to log reading: %s", err)
	}
	c.publish(c.updateStatus(func(s *riego.Status) {
		s.Time = now
		s.Reading = avg
		s.SensorOK = true
		s.TankOK = tankOK
	}))

	c.mu.RLock()
	hist := c.hist
	c.mu.RUnlock()
	dec := irrigation.DeepWatering(c.settings, avg, hist, now)
	if !dec.Water {
		dec = irrigation.CheckHygro(c.settings, avg, hist, now)
	}
	if !dec.Water {
		log.Printf("(%s) %.1fC %.1f%%, not watering: %s", rtc.Stamp(now), avg.Temp, avg.Humidity, dec.Why)
		return
	}
	if !tankOK {
		log.Printf("[Error] (%s) Needs %s %s watering but the tank is empty", rtc.Stamp(now), dec.Duration, dec.Reason)
		return
	}
	c.water(ctx, dec.Reason, dec.Duration, avg)
}

// manual runs a user requested watering with the latest reading for the record.
func (c *controller) manual(ctx context.Context, d time.Duration) {
	r, _ := c.filter.Average()
	c.water(ctx, riego.ReasonManual, d, r)
}

// water runs the pump, then logs and publishes the event.
func (c *controller) water(ctx context.Context, reason riego.Reason, d time.Duration, r riego.Reading) {
	start := c.now()
	ev := riego.NewWaterEvent(reason, start, d, r)
	log.Printf("(%s) Starting %s watering for %s", rtc.Stamp(start), reason, d)

	c.metrics.pump(true)
	c.publish(c.updateStatus(func(s *riego.Status) {
		s.Pump = riego.PumpWatering
		s.Reason = reason
	}))

	ran, err := c.pump.Run(ctx, d)
	c.metrics.pump(false)
	ev.Actual = ran
	if err != nil {
		ev.Err = err.Error()
		log.Printf("[Error] %s watering ended after %s: %s", reason, ran.Round(time.Second), err)
		if errors.Is(err, irrigation.ErrTankEmpty) && ran > 0 {
			go c.alerts.Alert(fmt.Sprintf("%s: water tank empty", c.name),
				fmt.Sprintf("The %s watering stopped after %s because the tank ran dry.", reason, ran.Round(time.Second)))
		}
	}

	if ran > 0 {
		c.mu.Lock()
		switch reason {
		case riego.ReasonDeep:
			c.hist.LastDeep = start
		default:
			c.hist.LastWatering = start
		}
		c.mu.Unlock()
		c.metrics.watered(reason, ran)
		if werr := c.store.Write(datalog.WaterRecord(ev)); werr != nil {
			log.Printf("[Error] Failed to log watering: %s", werr)
		}
		if c.onWater != nil {
			c.onWater()
		}
	}

	if perr := c.pub.Event(ev); perr != nil {
		log.Printf("[Error] Failed to publish watering: %s", perr)
	}
	c.push(rnet.Msg{Event: &ev})
	c.publish(c.updateStatus(func(s *riego.Status) {
		s.Pump = riego.PumpIdle
	}))
}
