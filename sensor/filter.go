package sensor

import (
	"fmt"

	"gitlab.com/lologarithm/riego/riego"
)

const (
	maxJump    = 10 // C between consecutive readings
	maxRejects = 2  // jumps rejected in a row before the new value is trusted
)

// Filter keeps the last few good readings for averaging temp.
type Filter struct {
	size     int
	readings []riego.Reading
	rejects  int
}

// NewFilter holds at most size readings. size < 1 is treated as 1.
func NewFilter(size int) *Filter {
	if size < 1 {
		size = 1
	}
	return &Filter{size: size, readings: make([]riego.Reading, 0, size)}
}

// Add validates r against the previous reading and stores it.
// After maxRejects jumps in a row the stored readings are dropped and r is kept.
func (f *Filter) Add(r riego.Reading) error {
	if r.Humidity < 0 || r.Humidity > 100 {
		return fmt.Errorf("%w: humidity %.1f%%", ErrImplausible, r.Humidity)
	}
	if len(f.readings) > 0 {
		last := f.readings[len(f.readings)-1]
		if diff := abs(r.Temp - last.Temp); diff > maxJump {
			if f.rejects < maxRejects {
				// Unlikely this big of a jump would happen
				f.rejects++
				return fmt.Errorf("%w: temp jumped %.1fC", ErrImplausible, diff)
			}
			f.readings = f.readings[:0]
		}
	}
	f.rejects = 0
	f.readings = append(f.readings, r)
	if len(f.readings) > f.size {
		copy(f.readings, f.readings[1:])
		f.readings = f.readings[:f.size]
	}
	return nil
}

// Len is the number of stored readings.
func (f *Filter) Len() int {
	return len(f.readings)
}

// Average returns the mean temp of the stored readings with the latest humidity and time.
// ok is false when nothing has been stored yet.
func (f *Filter) Average() (r riego.Reading, ok bool) {
	if len(f.readings) == 0 {
		return r, false
	}
	var avgt float32
	for _, v := range f.readings {
		avgt += v.Temp
	}
	last := f.readings[len(f.readings)-1]
	return riego.Reading{
		Temp:     avgt / float32(len(f.readings)),
		Humidity: last.Humidity,
		Time:     last.Time,
	}, true
}

func abs(a float32) float32 {
	if a >= 0 {
		return a
	}
	return -a
}
