package sensor

import "sync"

// Fake is a ThermReader source for hosts without gpio.
// Humidity slowly dries out and jumps back up after each watering.
type Fake struct {
	mu   sync.Mutex
	Temp float32
	Humi float32
	Dry  float32 // humidity lost per read
}

// NewFake starts at 20C and 50%.
func NewFake() *Fake {
	return &Fake{Temp: 20, Humi: 50, Dry: 0.5}
}

// Read never fails.
func (f *Fake) Read(_ bool) (float32, float32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Humi -= f.Dry
	if f.Humi < 0 {
		f.Humi = 0
	}
	return f.Temp, f.Humi, true
}

// Water bumps humidity back up.
func (f *Fake) Water() {
	f.mu.Lock()
	f.Humi += 25
	if f.Humi > 95 {
		f.Humi = 95
	}
	f.mu.Unlock()
}
