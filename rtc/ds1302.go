package rtc

import (
	"fmt"
	"sync"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

// DS1302 commands
const (
	cmdBurstRead  = 0xBF
	cmdBurstWrite = 0xBE
	cmdWriteCtl   = 0x8E

	haltBit  = 0x80 // seconds register
	mode12h  = 0x80 // hours register
	pmBit    = 0x20 // hours register in 12h mode
	wpEnable = 0x80 // control register
)

// Line is one of the three wires to the chip. rpio.Pin satisfies it.
type Line interface {
	Output()
	Input()
	High()
	Low()
	Read() rpio.State
}

// DS1302 is a trickle charge timekeeping chip on a 3-wire serial bus.
type DS1302 struct {
	mu    sync.Mutex
	ce    Line
	io    Line
	sclk  Line
	loc   *time.Location
	delay func()
}

// NewDS1302 uses the given gpio pins. rpio must already be open.
func NewDS1302(ce, io, sclk int) *DS1302 {
	return NewDS1302Lines(rpio.Pin(ce), rpio.Pin(io), rpio.Pin(sclk))
}

// NewDS1302Lines builds the driver on arbitrary lines.
func NewDS1302Lines(ce, io, sclk Line) *DS1302 {
	d := &DS1302{ce: ce, io: io, sclk: sclk, loc: time.Local, delay: settle}
	ce.Output()
	sclk.Output()
	ce.Low()
	sclk.Low()
	return d
}

// settle covers the chip's ~1us setup/hold times.
func settle() {
	s := time.Now().UnixNano()
	for time.Now().UnixNano()-s < int64(time.Microsecond) {
	}
}

// Now reads the clock registers in one burst.
func (d *DS1302) Now() (time.Time, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var b [8]byte
	d.begin()
	d.writeByte(cmdBurstRead)
	for i := range b {
		b[i] = d.readByte()
	}
	d.end()
	return decodeBurst(b, d.loc)
}

// Set clears write protect, writes t and restarts the oscillator.
func (d *DS1302) Set(t time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.begin()
	d.writeByte(cmdWriteCtl)
	d.writeByte(0x00)
	d.end()

	b := encodeBurst(t.In(d.loc))
	d.begin()
	d.writeByte(cmdBurstWrite)
	for _, v := range b {
		d.writeByte(v)
	}
	d.end()
	return nil
}

func (d *DS1302) begin() {
	d.sclk.Low()
	d.ce.High()
	d.delay()
}

func (d *DS1302) end() {
	d.ce.Low()
	d.delay()
}

// writeByte shifts v out LSB first. The chip samples on the rising edge.
func (d *DS1302) writeByte(v byte) {
	d.io.Output()
	for i := 0; i < 8; i++ {
		if v&(1<<uint(i)) != 0 {
			d.io.High()
		} else {
			d.io.Low()
		}
		d.delay()
		d.sclk.High()
		d.delay()
		d.sclk.Low()
	}
}

// readByte shifts a byte in LSB first. The chip drives IO after each falling edge.
func (d *DS1302) readByte() byte {
	d.io.Input()
	var v byte
	for i := 0; i < 8; i++ {
		d.delay()
		if d.io.Read() == rpio.High {
			v |= 1 << uint(i)
		}
		d.sclk.High()
		d.delay()
		d.sclk.Low()
	}
	return v
}

func bcd(v int) byte {
	return byte(v/10<<4 | v%10)
}

func unbcd(b byte) (int, bool) {
	hi, lo := int(b>>4), int(b&0x0F)
	return hi*10 + lo, hi < 10 && lo < 10
}

// encodeBurst lays out t as the 8 clock registers, 24h mode, write protect on.
func encodeBurst(t time.Time) [8]byte {
	return [8]byte{
		bcd(t.Second()),
		bcd(t.Minute()),
		bcd(t.Hour()),
		bcd(t.Day()),
		bcd(int(t.Month())),
		bcd(int(t.Weekday()) + 1),
		bcd(t.Year() % 100),
		wpEnable,
	}
}

func decodeBurst(b [8]byte, loc *time.Location) (time.Time, error) {
	allOnes := true
	for _, v := range b[:7] {
		if v != 0xFF {
			allOnes = false
			break
		}
	}
	if allOnes {
		return time.Time{}, fmt.Errorf("%w: no chip responding", ErrNotSet)
	}

	sec, ok1 := unbcd(b[0] &^ haltBit)
	minute, ok2 := unbcd(b[1])
	var hour int
	ok3 := true
	if b[2]&mode12h != 0 {
		hour, ok3 = unbcd(b[2] & 0x1F)
		hour %= 12
		if b[2]&pmBit != 0 {
			hour += 12
		}
	} else {
		hour, ok3 = unbcd(b[2] & 0x3F)
	}
	day, ok4 := unbcd(b[3])
	month, ok5 := unbcd(b[4])
	year, ok6 := unbcd(b[6])
	if !(ok1 && ok2 && ok3 && ok4 && ok5 && ok6) ||
		sec > 59 || minute > 59 || hour > 23 || day < 1 || day > 31 || month < 1 || month > 12 {
		return time.Time{}, fmt.Errorf("%w: % x", ErrBadData, b)
	}
	t := time.Date(2000+year, time.Month(month), day, hour, minute, sec, 0, loc)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: no day %d in month %d", ErrBadData, day, month)
	}
	if b[0]&haltBit != 0 {
		return t, ErrHalted
	}
	return t, nil
}
