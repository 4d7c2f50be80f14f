package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitlab.com/lologarithm/riego/irrigation"
	"gopkg.in/yaml.v3"
)

// Config is controller configuration.
// Includes pins, watering settings, users&access levels and the optional MQTT and Mailgun setup.
type Config struct {
	Name          string
	SensorPin     int
	PumpPin       int
	PumpActiveLow bool
	LevelPin      int // 0 when there is no tank level switch
	RTC           RTCPins
	Interval      time.Duration
	Irrigation    irrigation.Settings
	LogDir        string
	Host          string
	Users         map[string]userAccess
	MQTT          MQTTConfig
	Mailgun       MailgunConfig
}

// RTCPins are the DS1302 wires. All zero means use the system clock.
type RTCPins struct {
	CE   int `json:"ce" yaml:"ce"`
	IO   int `json:"io" yaml:"io"`
	SCLK int `json:"sclk" yaml:"sclk"`
}

func (p RTCPins) enabled() bool {
	return p.CE > 0 && p.IO > 0 && p.SCLK > 0
}

// MQTTConfig is where status is published. Empty broker disables it.
type MQTTConfig struct {
	Broker   string `json:"broker" yaml:"broker"`
	Prefix   string `json:"prefix" yaml:"prefix"`
	ClientID string `json:"client_id" yaml:"client_id"`
}

// MailgunConfig is the settings needed to use Mailgun for emails.
type MailgunConfig struct {
	APIKey     string   `json:"api_key" yaml:"api_key"`
	Domain     string   `json:"domain" yaml:"domain"`
	Sender     string   `json:"sender" yaml:"sender"`
	Recipients []string `json:"recipients" yaml:"recipients"`
}

func defaultConfig() Config {
	return Config{
		Name:          "riego",
		SensorPin:     4,
		PumpPin:       24,
		PumpActiveLow: true,
		Interval:      2 * time.Minute,
		Irrigation:    irrigation.Defaults,
		LogDir:        "./data",
		Host:          ":8080",
		Users:         map[string]userAccess{},
	}
}

// duration reads Go duration strings like "90s" or "72h".
type duration time.Duration

func (d *duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = duration(v)
	return nil
}

// fileConfig mirrors Config with everything optional so a file only overrides what it sets.
type fileConfig struct {
	Name          *string               `json:"name" yaml:"name"`
	SensorPin     *int                  `json:"sensor_pin" yaml:"sensor_pin"`
	PumpPin       *int                  `json:"pump_pin" yaml:"pump_pin"`
	PumpActiveLow *bool                 `json:"pump_active_low" yaml:"pump_active_low"`
	LevelPin      *int                  `json:"level_pin" yaml:"level_pin"`
	RTC           *RTCPins              `json:"rtc" yaml:"rtc"`
	Interval      *duration             `json:"interval" yaml:"interval"`
	Irrigation    fileSettings          `json:"irrigation" yaml:"irrigation"`
	LogDir        *string               `json:"log_dir" yaml:"log_dir"`
	Host          *string               `json:"host" yaml:"host"`
	Users         map[string]userAccess `json:"users" yaml:"users"`
	MQTT          *MQTTConfig           `json:"mqtt" yaml:"mqtt"`
	Mailgun       *MailgunConfig        `json:"mailgun" yaml:"mailgun"`
}

type fileSettings struct {
	DryBelow      *float32  `json:"dry_below" yaml:"dry_below"`
	BaseDuration  *duration `json:"base_duration" yaml:"base_duration"`
	MaxDuration   *duration `json:"max_duration" yaml:"max_duration"`
	MinInterval   *duration `json:"min_interval" yaml:"min_interval"`
	HotAbove      *float32  `json:"hot_above" yaml:"hot_above"`
	FreezeBelow   *float32  `json:"freeze_below" yaml:"freeze_below"`
	WindowStart   *int      `json:"window_start" yaml:"window_start"`
	WindowEnd     *int      `json:"window_end" yaml:"window_end"`
	DeepEvery     *duration `json:"deep_every" yaml:"deep_every"`
	DeepHour      *int      `json:"deep_hour" yaml:"deep_hour"`
	DeepDuration  *duration `json:"deep_duration" yaml:"deep_duration"`
	SkipDeepAbove *float32  `json:"skip_deep_above" yaml:"skip_deep_above"`
}

func setDur(dst *time.Duration, src *duration) {
	if src != nil {
		*dst = time.Duration(*src)
	}
}

func (fs fileSettings) apply(s *irrigation.Settings) {
	if fs.DryBelow != nil {
		s.DryBelow = *fs.DryBelow
	}
	setDur(&s.BaseDuration, fs.BaseDuration)
	setDur(&s.MaxDuration, fs.MaxDuration)
	setDur(&s.MinInterval, fs.MinInterval)
	if fs.HotAbove != nil {
		s.HotAbove = *fs.HotAbove
	}
	if fs.FreezeBelow != nil {
		s.FreezeBelow = *fs.FreezeBelow
	}
	if fs.WindowStart != nil {
		s.WindowStart = *fs.WindowStart
	}
	if fs.WindowEnd != nil {
		s.WindowEnd = *fs.WindowEnd
	}
	setDur(&s.DeepEvery, fs.DeepEvery)
	if fs.DeepHour != nil {
		s.DeepHour = *fs.DeepHour
	}
	setDur(&s.DeepDuration, fs.DeepDuration)
	if fs.SkipDeepAbove != nil {
		s.SkipDeepAbove = *fs.SkipDeepAbove
	}
}

func (fc fileConfig) apply(cfg *Config) {
	if fc.Name != nil {
		cfg.Name = *fc.Name
	}
	if fc.SensorPin != nil {
		cfg.SensorPin = *fc.SensorPin
	}
	if fc.PumpPin != nil {
		cfg.PumpPin = *fc.PumpPin
	}
	if fc.PumpActiveLow != nil {
		cfg.PumpActiveLow = *fc.PumpActiveLow
	}
	if fc.LevelPin != nil {
		cfg.LevelPin = *fc.LevelPin
	}
	if fc.RTC != nil {
		cfg.RTC = *fc.RTC
	}
	setDur(&cfg.Interval, fc.Interval)
	fc.Irrigation.apply(&cfg.Irrigation)
	if fc.LogDir != nil {
		cfg.LogDir = *fc.LogDir
	}
	if fc.Host != nil {
		cfg.Host = *fc.Host
	}
	for name, u := range fc.Users {
		cfg.Users[name] = u
	}
	if fc.MQTT != nil {
		cfg.MQTT = *fc.MQTT
	}
	if fc.Mailgun != nil {
		cfg.Mailgun = *fc.Mailgun
	}
}

// loadConfig reads the config file over the defaults.
// A missing file is not an error, the defaults are used.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Printf("No config at %s, using defaults.", path)
		return cfg, cfg.validate()
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	fc := fileConfig{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	fc.apply(&cfg)
	for name, v := range cfg.Users {
		log.Printf("User: %s, Access: %d", name, v.Access)
	}
	return cfg, cfg.validate()
}

func (cfg Config) validate() error {
	switch {
	case cfg.Name == "":
		return fmt.Errorf("name is required")
	case cfg.Interval <= 0:
		return fmt.Errorf("poll interval must be positive")
	case cfg.SensorPin <= 0 || cfg.PumpPin <= 0:
		return fmt.Errorf("sensor and pump pins are required")
	case cfg.SensorPin == cfg.PumpPin:
		return fmt.Errorf("sensor and pump can't share pin %d", cfg.PumpPin)
	}
	return cfg.Irrigation.Validate()
}
