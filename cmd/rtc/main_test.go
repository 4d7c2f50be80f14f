package main

import (
	"testing"
	"time"
)

type memClock struct {
	t time.Time
}

func (c *memClock) Now() (time.Time, error) { return c.t, nil }
func (c *memClock) Set(t time.Time) error   { c.t = t.Truncate(time.Second); return nil }

func TestRun(t *testing.T) {
	c := &memClock{t: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
	if run(c, false) {
		t.Error("unset clock should fail the check")
	}
	if !run(c, true) {
		t.Error("clock should pass once set")
	}
	if c.t.Year() < 2020 {
		t.Errorf("clock not set: %s", c.t)
	}
}
