// Package rnet carries controller status, watering events and commands over MQTT.
package rnet

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gitlab.com/lologarithm/riego/riego"
)

// DefaultPrefix is the topic root when none is configured.
const DefaultPrefix = "riego"

// Topic names under <prefix>/<name>/
const (
	statusTopic = "status"
	eventTopic  = "event"
	cmdTopic    = "cmd"
)

// ErrBadCommand is returned for commands that ask for nothing or can't be parsed.
var ErrBadCommand = errors.New("bad command")

func topic(prefix, name, kind string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "/" + strings.Replace(name, " ", "", -1) + "/" + kind
}

// Msg is what is pushed to listeners, one of the fields is set.
type Msg struct {
	Status *riego.Status     `json:",omitempty"`
	Event  *riego.WaterEvent `json:",omitempty"`
}

// Command is a request to the controller from the network or a browser.
type Command struct {
	Water time.Duration // run the pump for this long
	Stop  bool          // stop a running watering
}

type rawCommand struct {
	Water string
	Stop  bool
}

// ParseCommand decodes {"Water":"30s"} or {"Stop":true}.
func ParseCommand(b []byte) (Command, error) {
	raw := rawCommand{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Command{}, fmt.Errorf("%w: %s", ErrBadCommand, err)
	}
	c := Command{Stop: raw.Stop}
	if raw.Water != "" {
		d, err := time.ParseDuration(raw.Water)
		if err != nil {
			return Command{}, fmt.Errorf("%w: %s", ErrBadCommand, err)
		}
		if d <= 0 {
			return Command{}, fmt.Errorf("%w: duration %s", ErrBadCommand, d)
		}
		c.Water = d
	}
	if c.Water == 0 && !c.Stop {
		return Command{}, fmt.Errorf("%w: nothing requested", ErrBadCommand)
	}
	return c, nil
}

// MyIPs lists the ipv4 addresses of the real, up, network interfaces.
func MyIPs() (mine []string, err error) {
	itfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, itf := range itfs {
		switch {
		case itf.Flags&net.FlagUp != net.FlagUp:
			continue // skip down interfaces
		case itf.Flags&net.FlagLoopback == net.FlagLoopback:
			continue // skip loopbacks
		case itf.HardwareAddr == nil:
			continue // not real network hardware
		case strings.Contains(itf.Name, "docker"):
			continue // ignore docker network
		}
		addrs, err := itf.Addrs()
		if err != nil {
			return mine, err
		}
		for _, addr := range addrs {
			ip, _, err := net.ParseCIDR(addr.String())
			if err != nil {
				continue
			}
			if ipv4 := ip.To4(); ipv4 != nil {
				mine = append(mine, ipv4.String())
			}
		}
	}
	return mine, nil
}
