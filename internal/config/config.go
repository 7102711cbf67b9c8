// Package config loads the breathing-led YAML configuration file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/breathing-led/internal/breathing"
	"github.com/sweeney/breathing-led/internal/pwm"
)

// Defaults not owned by another package.
const (
	DefaultClientID    = "breathing-led"
	DefaultTopicPrefix = "home/led/breathing"
	DefaultBuffer      = 100
	DefaultHTTPAddr    = ":80"
	DefaultHeartbeat   = 15 * time.Minute
)

type Config struct {
	// Device overrides board detection when set (e.g. "rpi3").
	Device    string          `yaml:"device"`
	Breathing BreathingConfig `yaml:"breathing"`
	PWM       PWMConfig       `yaml:"pwm"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	// Heartbeat is the HEARTBEAT interval; 0 disables.
	Heartbeat time.Duration `yaml:"heartbeat"`
}

type BreathingConfig struct {
	FrequencyHz float64       `yaml:"frequency_hz"`
	Step        float64       `yaml:"step"`
	Interval    time.Duration `yaml:"interval"`
}

type PWMConfig struct {
	SysfsBase string                 `yaml:"sysfs_base"`
	Channels  map[string]pwm.Address `yaml:"channels"`
}

type MQTTConfig struct {
	// Broker is a paho URL such as tcp://host:1883. Empty disables MQTT.
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Buffer      int    `yaml:"buffer"`
}

type HTTPConfig struct {
	// Addr is the status server listen address. Empty disables it.
	Addr string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	def := breathing.DefaultConfig()
	return Config{
		Breathing: BreathingConfig{
			FrequencyHz: def.FrequencyHz,
			Step:        def.Step,
			Interval:    def.Interval,
		},
		PWM: PWMConfig{SysfsBase: pwm.DefaultSysfsBase},
		MQTT: MQTTConfig{
			ClientID:    DefaultClientID,
			TopicPrefix: DefaultTopicPrefix,
			Buffer:      DefaultBuffer,
		},
		HTTP:      HTTPConfig{Addr: DefaultHTTPAddr},
		Heartbeat: DefaultHeartbeat,
	}
}

// Load reads and validates the YAML file at path. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML over Default(), so keys absent from the document keep
// their default values. Unknown keys are rejected.
func Parse(b []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field ranges and fills in empty identifiers.
func (c *Config) Validate() error {
	c.Device = strings.TrimSpace(c.Device)

	if _, err := c.BreathingParams(); err != nil {
		return err
	}

	if c.PWM.SysfsBase == "" {
		c.PWM.SysfsBase = pwm.DefaultSysfsBase
	}
	for name, addr := range c.PWM.Channels {
		if name == "" {
			return fmt.Errorf("pwm.channels: empty channel name")
		}
		if addr.Chip < 0 || addr.Channel < 0 {
			return fmt.Errorf("pwm.channels.%s: chip and channel must be >= 0", name)
		}
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = DefaultClientID
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = DefaultTopicPrefix
	}
	if c.MQTT.Buffer <= 0 {
		return fmt.Errorf("mqtt.buffer must be > 0")
	}
	if c.MQTT.Broker != "" && !strings.Contains(c.MQTT.Broker, "://") {
		return fmt.Errorf("mqtt.broker must be a URL like tcp://host:1883")
	}

	if c.Heartbeat < 0 {
		return fmt.Errorf("heartbeat must be >= 0")
	}
	return nil
}

// BreathingParams returns the validated oscillator configuration.
func (c Config) BreathingParams() (breathing.Config, error) {
	bc := breathing.DefaultConfig()
	bc.FrequencyHz = c.Breathing.FrequencyHz
	bc.Step = c.Breathing.Step
	bc.Interval = c.Breathing.Interval
	if err := bc.Validate(); err != nil {
		return breathing.Config{}, fmt.Errorf("breathing.%w", err)
	}
	return bc, nil
}
