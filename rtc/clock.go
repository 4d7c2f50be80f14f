// Package rtc reads and sets the wall clock used to timestamp readings and
// schedule deep watering.
package rtc

import (
	"errors"
	"fmt"
	"time"
)

// Clock errors
var (
	ErrHalted   = errors.New("rtc oscillator halted")
	ErrNotSet   = errors.New("rtc time not set")
	ErrBadData  = errors.New("rtc returned invalid data")
	ErrReadOnly = errors.New("clock can not be set")
	ErrVerify   = errors.New("rtc read back does not match")
)

// Clock is a source of wall time.
type Clock interface {
	Now() (time.Time, error)
	Set(t time.Time) error
}

// System is the host's clock.
type System struct{}

// Now never fails.
func (System) Now() (time.Time, error) { return time.Now(), nil }

// Set is not supported, the host keeps its own time.
func (System) Set(time.Time) error { return ErrReadOnly }

// Check reads the clock once and reports whether it can be trusted.
func Check(c Clock) error {
	t, err := c.Now()
	if err != nil {
		return err
	}
	if t.Year() < 2020 {
		return fmt.Errorf("%w: reads %s", ErrNotSet, Stamp(t))
	}
	return nil
}

// Sync writes t to the clock and verifies it by reading it back.
func Sync(c Clock, t time.Time) error {
	if err := c.Set(t); err != nil {
		return err
	}
	got, err := c.Now()
	if err != nil {
		return err
	}
	if d := got.Sub(t.Truncate(time.Second)); d < -2*time.Second || d > 2*time.Second {
		return fmt.Errorf("%w: wrote %s, read %s", ErrVerify, Stamp(t), Stamp(got))
	}
	return nil
}

// Pad formats v as at least two digits.
func Pad(v int) string {
	return fmt.Sprintf("%02d", v)
}

// Stamp formats t the way readings are logged.
func Stamp(t time.Time) string {
	return fmt.Sprintf("%d-%s-%s %s:%s:%s",
		t.Year(), Pad(int(t.Month())), Pad(t.Day()),
		Pad(t.Hour()), Pad(t.Minute()), Pad(t.Second()))
}
