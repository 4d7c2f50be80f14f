package rnet

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"gitlab.com/lologarithm/riego/riego"
)

const publishTimeout = 5 * time.Second

// Publisher sends status and events to an MQTT broker and forwards commands it receives.
// A nil *Publisher is valid and does nothing.
type Publisher struct {
	client mqtt.Client
	prefix string
	name   string
}

// Connect dials broker and subscribes to the command topic.
// Commands that can't be delivered without blocking are dropped.
func Connect(broker, clientID, prefix, name string, commands chan<- Command) (*Publisher, error) {
	p := &Publisher{prefix: prefix, name: name}
	onMsg := func(_ mqtt.Client, m mqtt.Message) {
		c, err := ParseCommand(m.Payload())
		if err != nil {
			log.Printf("[Error] Ignoring mqtt command %q: %s", m.Payload(), err)
			return
		}
		select {
		case commands <- c:
		default:
			log.Printf("[Error] Command queue full, dropping mqtt command: %#v", c)
		}
	}
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second).
		SetOnConnectHandler(func(c mqtt.Client) {
			// (re)subscribe on every connect
			t := c.Subscribe(topic(prefix, name, cmdTopic), 1, onMsg)
			if t.WaitTimeout(publishTimeout) && t.Error() != nil {
				log.Printf("[Error] Failed to subscribe to commands: %s", t.Error())
			}
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("[Error] Lost mqtt connection: %s", err)
		})
	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(15 * time.Second) {
		return nil, fmt.Errorf("timed out connecting to %s", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", broker, err)
	}
	log.Printf("Connected to mqtt broker %s, commands on %s", broker, topic(prefix, name, cmdTopic))
	return p, nil
}

func (p *Publisher) publish(kind string, retained bool, v interface{}) error {
	if p == nil {
		return nil
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	token := p.client.Publish(topic(p.prefix, p.name, kind), 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing %s", kind)
	}
	return token.Error()
}

// Status publishes the retained controller status.
func (p *Publisher) Status(s riego.Status) error {
	return p.publish(statusTopic, true, s)
}

// Event publishes a finished watering.
func (p *Publisher) Event(e riego.WaterEvent) error {
	return p.publish(eventTopic, false, e)
}

// Close disconnects, giving in-flight messages a moment to go out.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(250)
}
