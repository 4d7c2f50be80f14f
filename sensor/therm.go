package sensor

import (
	"errors"
	"runtime/debug"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
	"gitlab.com/lologarithm/riego/riego"
)

const (
	maxWait = int64(time.Millisecond) // spin count bound per pulse
	pulses  = 82
)

// Sensor errors
var (
	ErrNoReading   = errors.New("no valid reading from sensor")
	ErrImplausible = errors.New("implausible reading")
)

// ThermReader returns the next temp/humidity reading and whether it passed checksum.
// includeWait tells the reader to give the sensor time to settle first.
type ThermReader func(includeWait bool) (float32, float32, bool)

// DHT22 is a DHT22/AM2302 hygrometer on a single gpio pin.
type DHT22 struct {
	pin rpio.Pin
}

// NewDHT22 expects rpio to already be open.
func NewDHT22(p int) *DHT22 {
	return &DHT22{pin: rpio.Pin(p)}
}

// Read performs one full DHT22 transaction.
func (d *DHT22) Read(includeWait bool) (float32, float32, bool) {
	debug.SetGCPercent(-1)
	defer debug.SetGCPercent(100)
	return readDHT22(d.pin, includeWait)
}

func readDHT22(pin rpio.Pin, includeWait bool) (float32, float32, bool) {
	// early allocations before time critical code
	pulseLen := make([]int64, pulses)

	if includeWait {
		// DHT22 can't be sampled more than once every 2 seconds
		time.Sleep(1700 * time.Millisecond)
	}
	pin.Mode(rpio.Output)
	pin.High()

	// send init values
	time.Sleep(400 * time.Millisecond)
	pin.Low()

	// spinlock for milliseconds while pin is low.
	// this signals the request for reading
	s := time.Now().UnixNano()
	to := int64(time.Millisecond * 20)
	for time.Now().UnixNano()-s < to {
	}
	pin.Mode(rpio.Input)
	pin.PullUp()

	// now we wait for DHT to pull low
	s = time.Now().UnixNano()
	firstWaitMax := int64(time.Millisecond * 5)
	for pin.Read() == rpio.High {
		if time.Now().UnixNano()-s > firstWaitMax {
			pin.PullOff()
			return -1, -1, false // DHT never pulled low... probably retry
		}
	}

	// DHT pulls low for 80us and then 80us to signal its starting
	// After that we read 40 low and 40 high pulses.
	var end int64
READER:
	for i := 0; i < pulses-1; i += 2 {
		s = 0
		end = 0
		for pin.Read() == rpio.Low {
			if end-s > maxWait {
				break READER
			}
			end++
		}
		pulseLen[i] = end - s

		s = 0
		end = 0
		for pin.Read() == rpio.High {
			if end-s > maxWait {
				break READER
			}
			end++
		}
		pulseLen[i+1] = end - s
	}
	pin.PullOff()

	return decode(pulseLen)
}

// decode turns measured pulse lengths into temperature and humidity.
// pulseLen[0:2] is the start signal, then pairs of (low, high) per bit.
func decode(pulseLen []int64) (float32, float32, bool) {
	if len(pulseLen) < pulses {
		return -1, -1, false
	}
	var threshold int64
	for i := 2; i < pulses; i += 2 {
		threshold += pulseLen[i]
	}
	threshold /= 40

	bytes := make([]uint8, 5)
	for i := 3; i < pulses; i += 2 {
		bi := (i - 3) / 16
		bytes[bi] <<= 1
		if pulseLen[i] > threshold {
			bytes[bi] |= 0x01
		}
	}

	humidity := float32(uint16(bytes[0])*256+uint16(bytes[1])) / 10.0
	temperature := float32((uint16(bytes[2])&0x7F)*256+uint16(bytes[3])) / 10.0
	// check for negative temperature
	if uint16(bytes[2])&0x80 > 0 {
		temperature *= -1
	}
	return temperature, humidity, checksum(bytes)
}

func checksum(bytes []uint8) bool {
	var sum uint8
	for i := 0; i < 4; i++ {
		sum += bytes[i]
	}
	return sum == bytes[4]
}

// ReadWithRetry will call read up to tries times until a reading passes checksum.
// The first attempt skips the settle wait.
func ReadWithRetry(read ThermReader, tries int) (riego.Reading, error) {
	includeWait := false // first reading is always waited long enough, skip straight to reading!
	for i := 0; i < tries; i++ {
		t, h, ok := read(includeWait)
		if ok {
			return riego.Reading{Temp: t, Humidity: h, Time: time.Now()}, nil
		}
		includeWait = true // force a wait between readings
	}
	return riego.Reading{}, ErrNoReading
}
