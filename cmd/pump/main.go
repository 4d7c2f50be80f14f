// Command pump runs the irrigation pump once by hand, CTRL+C switches it off early.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
	"gitlab.com/lologarithm/riego/irrigation"
)

func main() {
	pin := flag.Int("pin", 24, "relay control pin")
	activeLow := flag.Bool("activelow", true, "relay switches on when the pin is low")
	d := flag.Duration("d", 10*time.Second, "how long to run the pump")
	flag.Parse()

	fmt.Printf("Pump Pin: %d, Active Low: %v, Duration: %s\n", *pin, *activeLow, *d)

	var sw irrigation.Switch
	if err := rpio.Open(); err != nil {
		log.Printf("Unable to use real pins...")
		sw = &irrigation.FakeRelay{}
	} else {
		defer rpio.Close()
		sw = irrigation.NewRelay(*pin, *activeLow)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	ran, err := irrigation.NewPump(sw, nil, 0).Run(ctx, *d)
	if err != nil {
		log.Printf("[Error] Pump stopped after %s: %s", ran.Round(time.Millisecond), err)
		return
	}
	log.Printf("Pump ran for %s", ran.Round(time.Millisecond))
}
