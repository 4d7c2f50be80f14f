package rtc

import (
	"errors"
	"testing"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
)

// fakeChip simulates the DS1302 side of the 3-wire bus.
type fakeChip struct {
	regs    [8]byte
	ce      bool
	clk     bool
	hostIO  bool
	bits    int
	cmd     byte
	data    []byte
	reading bool
	outIdx  int
}

func (c *fakeChip) ceHigh() {
	c.ce, c.bits, c.cmd, c.data, c.reading = true, 0, 0, nil, false
}

func (c *fakeChip) ceLow() {
	if c.ce && !c.reading && c.bits > 8 {
		c.commit()
	}
	c.ce = false
}

func (c *fakeChip) rising() {
	if !c.ce {
		return
	}
	switch {
	case c.bits < 8:
		if c.hostIO {
			c.cmd |= 1 << uint(c.bits)
		}
		if c.bits == 7 {
			c.reading = c.cmd&1 == 1
			c.outIdx = -1
		}
	case !c.reading:
		n := c.bits - 8
		if n%8 == 0 {
			c.data = append(c.data, 0)
		}
		if c.hostIO {
			c.data[len(c.data)-1] |= 1 << uint(n%8)
		}
	}
	c.bits++
}

func (c *fakeChip) falling() {
	if c.ce && c.reading && c.bits >= 8 {
		c.outIdx++
	}
}

func (c *fakeChip) read() rpio.State {
	if !c.reading || c.outIdx < 0 || c.outIdx >= 64 {
		return rpio.Low
	}
	if c.regs[c.outIdx/8]&(1<<uint(c.outIdx%8)) != 0 {
		return rpio.High
	}
	return rpio.Low
}

func (c *fakeChip) commit() {
	if c.cmd&0x80 == 0 || c.cmd&0x40 != 0 {
		return // not a clock command
	}
	addr := (c.cmd >> 1) & 0x1F
	wp := c.regs[7]&wpEnable != 0
	switch {
	case addr == 31 && !wp:
		copy(c.regs[:], c.data)
	case addr == 7 && len(c.data) > 0:
		c.regs[7] = c.data[0]
	case addr < 7 && !wp && len(c.data) > 0:
		c.regs[addr] = c.data[0]
	}
}

type ceLine struct{ c *fakeChip }

func (l ceLine) Output()          {}
func (l ceLine) Input()           {}
func (l ceLine) High()            { l.c.ceHigh() }
func (l ceLine) Low()             { l.c.ceLow() }
func (l ceLine) Read() rpio.State { return rpio.Low }

type clkLine struct{ c *fakeChip }

func (l clkLine) Output() {}
func (l clkLine) Input()  {}
func (l clkLine) High() {
	if !l.c.clk {
		l.c.clk = true
		l.c.rising()
	}
}
func (l clkLine) Low() {
	if l.c.clk {
		l.c.clk = false
		l.c.falling()
	}
}
func (l clkLine) Read() rpio.State { return rpio.Low }

type ioLine struct{ c *fakeChip }

func (l ioLine) Output()          {}
func (l ioLine) Input()           {}
func (l ioLine) High()            { l.c.hostIO = true }
func (l ioLine) Low()             { l.c.hostIO = false }
func (l ioLine) Read() rpio.State { return l.c.read() }

func newFake() (*DS1302, *fakeChip) {
	chip := &fakeChip{}
	d := NewDS1302Lines(ceLine{chip}, ioLine{chip}, clkLine{chip})
	d.loc = time.UTC
	d.delay = func() {}
	return d, chip
}

func TestDS1302SetAndRead(t *testing.T) {
	d, chip := newFake()
	// Power-on state: halted and write protected.
	chip.regs = [8]byte{0x80, 0, 0, 0x01, 0x01, 0x01, 0x00, 0x80}

	if _, err := d.Now(); !errors.Is(err, ErrHalted) {
		t.Fatalf("expected halted clock, got %v", err)
	}

	want := time.Date(2019, time.February, 3, 17, 5, 42, 0, time.UTC)
	if err := Sync(d, want); err != nil {
		t.Fatalf("sync failed: %s", err)
	}
	got, err := d.Now()
	if err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if !got.Equal(want) {
		t.Errorf("read %s, want %s", got, want)
	}
	if chip.regs[7] != wpEnable {
		t.Errorf("write protect should be re-enabled, control=%#x", chip.regs[7])
	}
	if chip.regs[5] != 0x01 {
		t.Errorf("sunday should be day 1, got %#x", chip.regs[5])
	}
}

func TestDecodeBurst(t *testing.T) {
	tests := []struct {
		name string
		b    [8]byte
		want time.Time
		err  error
	}{
		{"24h", [8]byte{0x42, 0x05, 0x17, 0x03, 0x02, 0x01, 0x19, 0x80},
			time.Date(2019, 2, 3, 17, 5, 42, 0, time.UTC), nil},
		{"12h pm", [8]byte{0x00, 0x30, mode12h | pmBit | 0x05, 0x15, 0x06, 0x01, 0x24, 0x80},
			time.Date(2024, 6, 15, 17, 30, 0, 0, time.UTC), nil},
		{"12h midnight", [8]byte{0x00, 0x00, mode12h | 0x12, 0x01, 0x01, 0x01, 0x24, 0x80},
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), nil},
		{"no chip", [8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, time.Time{}, ErrNotSet},
		{"bad bcd", [8]byte{0x4A, 0x05, 0x17, 0x03, 0x02, 0x01, 0x19, 0x80}, time.Time{}, ErrBadData},
		{"bad month", [8]byte{0x00, 0x00, 0x00, 0x01, 0x13, 0x01, 0x19, 0x80}, time.Time{}, ErrBadData},
		{"feb 31", [8]byte{0x00, 0x00, 0x00, 0x31, 0x02, 0x01, 0x23, 0x80}, time.Time{}, ErrBadData},
		{"leap day", [8]byte{0x00, 0x00, 0x00, 0x29, 0x02, 0x01, 0x24, 0x80},
			time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBurst(tt.b, time.UTC)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if tt.err == nil && !got.Equal(tt.want) {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeBurstRoundTrip(t *testing.T) {
	in := time.Date(2031, 12, 31, 23, 59, 58, 0, time.UTC)
	got, err := decodeBurst(encodeBurst(in), time.UTC)
	if err != nil || !got.Equal(in) {
		t.Errorf("got %s (%v), want %s", got, err, in)
	}
}
