// Package irrigation decides when and for how long to run the pump, and runs it.
package irrigation

import (
	"fmt"
	"time"

	"gitlab.com/lologarithm/riego/riego"
)

// Settings are the watering thresholds and schedule.
type Settings struct {
	DryBelow     float32       // water when humidity % drops below this
	BaseDuration time.Duration // pump time at the threshold
	MaxDuration  time.Duration // cap for a normal watering
	MinInterval  time.Duration // minimum time between normal waterings
	HotAbove     float32       // C, waterings are 50% longer above this
	FreezeBelow  float32       // C, never water below this
	WindowStart  int           // hour watering is allowed from
	WindowEnd    int           // hour watering stops. Equal to start means all day.

	DeepEvery     time.Duration // 0 disables deep watering
	DeepHour      int
	DeepDuration  time.Duration
	SkipDeepAbove float32 // humidity % that makes a deep watering pointless
}

// Defaults are used for anything the config does not set.
var Defaults = Settings{
	DryBelow:      40,
	BaseDuration:  30 * time.Second,
	MaxDuration:   5 * time.Minute,
	MinInterval:   30 * time.Minute,
	HotAbove:      30,
	FreezeBelow:   2,
	DeepEvery:     72 * time.Hour,
	DeepHour:      6,
	DeepDuration:  3 * time.Minute,
	SkipDeepAbove: 80,
}

// History is what the planner needs to know about past waterings.
type History struct {
	LastWatering time.Time // last dry watering
	LastDeep     time.Time
}

// Decision is the result of a planning check.
type Decision struct {
	Water    bool
	Reason   riego.Reason
	Duration time.Duration
	Why      string // why not, when Water is false
}

func skip(format string, args ...interface{}) Decision {
	return Decision{Why: fmt.Sprintf(format, args...)}
}

// deepSlack lets a deep watering that started late in its hour still be due on schedule.
const deepSlack = time.Hour

// CheckHygro decides if the reading is dry enough to water now.
func CheckHygro(s Settings, r riego.Reading, h History, now time.Time) Decision {
	if r.Humidity >= s.DryBelow {
		return skip("humidity %.1f%% not below %.1f%%", r.Humidity, s.DryBelow)
	}
	if r.Temp < s.FreezeBelow {
		return skip("temp %.1fC below freeze limit %.1fC", r.Temp, s.FreezeBelow)
	}
	if !s.InWindow(now) {
		return skip("outside watering window %02d-%02d", s.WindowStart, s.WindowEnd)
	}
	if !h.LastWatering.IsZero() && now.Sub(h.LastWatering) < s.MinInterval {
		return skip("last watering %s ago", now.Sub(h.LastWatering).Round(time.Second))
	}

	deficit := float64((s.DryBelow - r.Humidity) / s.DryBelow)
	d := time.Duration(float64(s.BaseDuration) * (1 + deficit))
	if r.Temp > s.HotAbove {
		d += d / 2
	}
	d = d.Round(time.Millisecond)
	if d > s.MaxDuration {
		d = s.MaxDuration
	}
	return Decision{Water: true, Reason: riego.ReasonDry, Duration: d}
}

// DeepWatering decides if the scheduled deep watering is due.
func DeepWatering(s Settings, r riego.Reading, h History, now time.Time) Decision {
	if s.DeepEvery <= 0 {
		return skip("deep watering disabled")
	}
	if now.Hour() != s.DeepHour {
		return skip("not deep watering hour")
	}
	if !h.LastDeep.IsZero() && now.Sub(h.LastDeep) < s.DeepEvery-deepSlack {
		return skip("last deep watering %s ago", now.Sub(h.LastDeep).Round(time.Minute))
	}
	if r.Temp < s.FreezeBelow {
		return skip("temp %.1fC below freeze limit %.1fC", r.Temp, s.FreezeBelow)
	}
	if r.Humidity >= s.SkipDeepAbove {
		return skip("humidity %.1f%% already above %.1f%%", r.Humidity, s.SkipDeepAbove)
	}
	d := s.DeepDuration
	if limit := 2 * s.MaxDuration; d > limit {
		d = limit
	}
	return Decision{Water: true, Reason: riego.ReasonDeep, Duration: d}
}

// NextDeep is the earliest time a deep watering could next run.
// Zero when deep watering is disabled.
func NextDeep(s Settings, h History, now time.Time) time.Time {
	if s.DeepEvery <= 0 {
		return time.Time{}
	}
	base := now
	if !h.LastDeep.IsZero() {
		if earliest := h.LastDeep.Add(s.DeepEvery - deepSlack); earliest.After(base) {
			base = earliest
		}
	}
	next := time.Date(base.Year(), base.Month(), base.Day(), s.DeepHour, 0, 0, 0, base.Location())
	if !base.Before(next.Add(time.Hour)) {
		next = next.AddDate(0, 0, 1)
	}
	if next.Before(base) {
		next = base
	}
	return next
}

// InWindow reports if watering is allowed at the hour of now.
func (s Settings) InWindow(now time.Time) bool {
	if s.WindowStart == s.WindowEnd {
		return true
	}
	h := now.Hour()
	if s.WindowStart < s.WindowEnd {
		return h >= s.WindowStart && h < s.WindowEnd
	}
	// window wraps midnight
	return h >= s.WindowStart || h < s.WindowEnd
}

// Validate checks the settings make sense together.
func (s Settings) Validate() error {
	switch {
	case s.DryBelow <= 0 || s.DryBelow >= 100:
		return fmt.Errorf("dry threshold %.1f%% must be between 0 and 100", s.DryBelow)
	case s.BaseDuration <= 0:
		return fmt.Errorf("base duration must be positive")
	case s.MaxDuration < s.BaseDuration:
		return fmt.Errorf("max duration %s shorter than base %s", s.MaxDuration, s.BaseDuration)
	case s.WindowStart < 0 || s.WindowStart > 23 || s.WindowEnd < 0 || s.WindowEnd > 23:
		return fmt.Errorf("watering window hours must be 0-23")
	case s.DeepHour < 0 || s.DeepHour > 23:
		return fmt.Errorf("deep watering hour must be 0-23")
	case s.DeepEvery > 0 && s.DeepDuration <= 0:
		return fmt.Errorf("deep watering duration must be positive")
	}
	return nil
}
