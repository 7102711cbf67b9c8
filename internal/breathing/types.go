// Package breathing contains the pure duty-cycle oscillator behind the LED
// breathing effect.
// This package has NO external dependencies (no PWM, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package breathing

import (
	"fmt"
	"time"
)

// Direction is the ramp direction of the duty cycle.
type Direction string

const (
	Increasing Direction = "INCREASING"
	Decreasing Direction = "DECREASING"
)

// EventType represents a direction reversal.
type EventType string

const (
	EventPeak   EventType = "PEAK"   // duty reached Max, now decreasing
	EventTrough EventType = "TROUGH" // duty reached Min, now increasing
)

// Event is emitted when the oscillator reverses at a bound.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Duty      float64
	Step      uint64 // step number that produced the reversal (1-based)
}

// State is the mutable part of the oscillator.
type State struct {
	Duty      float64
	Direction Direction
}

// Config holds the fixed oscillator parameters.
type Config struct {
	FrequencyHz float64
	Step        float64
	Interval    time.Duration
	Min         float64
	Max         float64
}

// Defaults for Config.
const (
	DefaultFrequencyHz = 100.0
	DefaultStep        = 1.0
	DefaultInterval    = 20 * time.Millisecond
	DefaultMin         = 0.0
	DefaultMax         = 100.0
)

// DefaultConfig returns 100Hz, 1% per 20ms over [0,100].
func DefaultConfig() Config {
	return Config{
		FrequencyHz: DefaultFrequencyHz,
		Step:        DefaultStep,
		Interval:    DefaultInterval,
		Min:         DefaultMin,
		Max:         DefaultMax,
	}
}

// InitialState is duty=Min, increasing.
func (c Config) InitialState() State {
	return State{Duty: c.Min, Direction: Increasing}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	if c.FrequencyHz <= 0 {
		return fmt.Errorf("frequency_hz must be > 0, got %v", c.FrequencyHz)
	}
	if c.Step <= 0 || c.Step > c.Max-c.Min {
		return fmt.Errorf("step must be in (0, %v], got %v", c.Max-c.Min, c.Step)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be > 0, got %v", c.Interval)
	}
	if c.Min < 0 || c.Max > 100 || c.Min >= c.Max {
		return fmt.Errorf("bounds must satisfy 0 <= min < max <= 100, got [%v, %v]", c.Min, c.Max)
	}
	return nil
}

// Counts tracks oscillator progress since startup.
type Counts struct {
	Steps    uint64
	Peaks    int
	Troughs  int // each trough completes one breathing cycle
	LastDuty float64
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
