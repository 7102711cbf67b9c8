// Package pwm provides access to a named PWM output channel.
//
// Duty is expressed in percent (0..100). Close should be best-effort, leave
// the output disabled and be safe to call more than once.
package pwm

import "fmt"

// Peripheral opens PWM channels by board-specific name (e.g. "PWM0", "IO6").
type Peripheral interface {
	Open(name string) (Channel, error)
}

// Channel is an open PWM output.
type Channel interface {
	SetFrequencyHz(hz float64) error
	SetDutyCycle(percent float64) error
	SetEnabled(on bool) error
	Close() error
}

// OpenError is returned when a channel name is invalid or unavailable.
type OpenError struct {
	Name string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open pwm %s: %v", e.Name, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// IOError is returned when configuring or writing an open channel fails.
type IOError struct {
	Op      string // "frequency", "duty", "enable", "close"
	Channel string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("pwm %s %s: %v", e.Channel, e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
