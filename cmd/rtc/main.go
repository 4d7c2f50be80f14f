// Command rtc checks a DS1302 clock module and optionally sets it from the system time.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
	"gitlab.com/lologarithm/riego/rtc"
)

func main() {
	ce := flag.Int("ce", 17, "DS1302 chip enable (RST) pin")
	io := flag.Int("io", 27, "DS1302 data pin")
	sclk := flag.Int("sclk", 22, "DS1302 clock pin")
	set := flag.Bool("set", false, "set the clock from the system time")
	flag.Parse()

	fmt.Printf("CE Pin: %d, IO Pin: %d, SCLK Pin: %d\n", *ce, *io, *sclk)
	if err := rpio.Open(); err != nil {
		fmt.Printf("Unable to open raspberry pi gpio pins: %s\n", err)
		os.Exit(1)
	}
	defer rpio.Close()

	if !run(rtc.NewDS1302(*ce, *io, *sclk), *set) {
		rpio.Close()
		os.Exit(1)
	}
}

func run(c rtc.Clock, set bool) bool {
	if set {
		now := time.Now()
		fmt.Printf("Setting clock to %s\n", rtc.Stamp(now))
		if err := rtc.Sync(c, now); err != nil {
			fmt.Printf("Failed to set clock: %s\n", err)
			return false
		}
	}

	t, err := c.Now()
	if err != nil {
		fmt.Printf("Clock reads %s, error: %s\n", rtc.Stamp(t), err)
	} else {
		fmt.Printf("Clock reads %s, system %s\n", rtc.Stamp(t), rtc.Stamp(time.Now()))
	}
	if err := rtc.Check(c); err != nil {
		fmt.Printf("Clock check failed: %s\n", err)
		return false
	}
	fmt.Println("Clock OK")
	return true
}
