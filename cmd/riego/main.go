package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	rpio "github.com/stianeikeland/go-rpio/v4"
	"gitlab.com/lologarithm/riego/datalog"
	"gitlab.com/lologarithm/riego/irrigation"
	"gitlab.com/lologarithm/riego/rnet"
	"gitlab.com/lologarithm/riego/rtc"
	"gitlab.com/lologarithm/riego/sensor"
)

func main() {
	cfgPath := flag.String("config", "config.json", "json or yaml config file")
	name := flag.String("name", "", "name of this controller, overrides config")
	host := flag.String("host", "", "host:port to serve on, overrides config")
	fake := flag.Bool("fake", false, "use fake sensor and pump even if gpio is available")
	flag.Parse()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("Bad config: %s", err)
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *host != "" {
		cfg.Host = *host
	}
	fmt.Printf("Name: %s, Sensor Pin: %d, Pump Pin: %d, Level Pin: %d, Log Dir: %s\n",
		cfg.Name, cfg.SensorPin, cfg.PumpPin, cfg.LevelPin, cfg.LogDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, cleanup, err := setup(cfg, *fake)
	if err != nil {
		log.Fatalf("Setup failed: %s", err)
	}
	defer cleanup()

	srv := newServer(c, cfg.Users)
	hs := srv.serve(cfg.Host)
	if ips, err := rnet.MyIPs(); err == nil {
		for _, ip := range ips {
			log.Printf("Dashboard on http://%s%s", ip, cfg.Host)
		}
	}

	// Now just loop until CTRL+C
	c.run(ctx)

	log.Printf("Shutting down...")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hs.Shutdown(sctx)
}

// setup opens the hardware, or fakes of it, and builds the controller.
// The returned cleanup turns the pump off and releases everything.
func setup(cfg Config, fake bool) (*controller, func(), error) {
	useFake := fake
	if !useFake {
		if err := rpio.Open(); err != nil {
			fmt.Printf("Unable to open raspberry pi gpio pins: %s\n-----  Defaulting to use fake data.  -----\n", err)
			useFake = true
		}
	}

	var (
		read      sensor.ThermReader
		sw        irrigation.Switch
		level     irrigation.Level = sensor.Always{}
		clock     rtc.Clock        = rtc.System{}
		clockName                  = "system"
		onWater   func()
	)
	if useFake {
		f := sensor.NewFake()
		read = f.Read
		onWater = f.Water
		sw = &irrigation.FakeRelay{}
	} else {
		read = sensor.NewDHT22(cfg.SensorPin).Read
		sw = irrigation.NewRelay(cfg.PumpPin, cfg.PumpActiveLow)
		if cfg.LevelPin > 0 {
			level = sensor.NewLevel(cfg.LevelPin)
		}
		if cfg.RTC.enabled() {
			ds := rtc.NewDS1302(cfg.RTC.CE, cfg.RTC.IO, cfg.RTC.SCLK)
			if err := checkRTC(ds); err != nil {
				log.Printf("[Error] DS1302 unusable, falling back to system clock: %s", err)
			} else {
				clock, clockName = ds, "ds1302"
			}
		}
	}

	store, err := datalog.Open(cfg.LogDir)
	if err != nil {
		return nil, nil, err
	}
	hist, err := store.History()
	if err != nil {
		log.Printf("[Error] Failed to read watering history: %s", err)
	}
	log.Printf("Last watering: %s, last deep watering: %s", stampOrNever(hist.LastWatering), stampOrNever(hist.LastDeep))

	pump := irrigation.NewPump(sw, level, 2*cfg.Irrigation.MaxDuration)
	c := newController(cfg, read, pump, level, clock, clockName, store)
	c.hist = hist
	c.onWater = onWater
	c.alerts = newAlerter(cfg.Mailgun)

	if cfg.MQTT.Broker != "" {
		clientID := cfg.MQTT.ClientID
		if clientID == "" {
			clientID = "riego-" + cfg.Name
		}
		cmds := make(chan rnet.Command, 4)
		pub, err := rnet.Connect(cfg.MQTT.Broker, clientID, cfg.MQTT.Prefix, cfg.Name, cmds)
		if err != nil {
			log.Printf("[Error] Running without mqtt: %s", err)
		} else {
			c.pub = pub
			go func() {
				for cmd := range cmds {
					if err := c.submit(cmd); err != nil {
						log.Printf("[Error] Mqtt command refused: %s", err)
					}
				}
			}()
		}
	}

	cleanup := func() {
		pump.Stop()
		sw.Off()
		c.pub.Close()
		if !useFake {
			rpio.Close()
		}
	}
	return c, cleanup, nil
}

// checkRTC tests the clock and, when it lost its time, sets it from the system clock.
func checkRTC(c rtc.Clock) error {
	err := rtc.Check(c)
	if err == nil {
		return nil
	}
	if !errors.Is(err, rtc.ErrHalted) && !errors.Is(err, rtc.ErrNotSet) {
		return err
	}
	now := time.Now()
	if now.Year() < 2020 {
		return fmt.Errorf("%w and system time is not trustworthy either", err)
	}
	log.Printf("RTC check failed (%s), setting it to %s", err, rtc.Stamp(now))
	return rtc.Sync(c, now)
}

func stampOrNever(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return rtc.Stamp(t)
}
