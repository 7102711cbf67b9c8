package pwm

import (
	"errors"
	"sync"
)

// Fake is a Peripheral test double that records every call.
type Fake struct {
	mu sync.Mutex

	// OpenError, if set, is wrapped in *OpenError by Open.
	OpenError error

	// Opened lists channels returned by Open, in order.
	Opened []*FakeChannel

	// Template configures failures on channels opened after it is set.
	Template FakeFailures
}

// FakeFailures injects errors into a FakeChannel.
type FakeFailures struct {
	FrequencyErr error
	EnableErr    error
	DutyErr      error // returned by every SetDutyCycle call
	FailDutyAt   int   // 1-based SetDutyCycle call that fails; 0 disables
	CloseErr     error
}

// NewFake returns a Fake with no injected failures.
func NewFake() *Fake {
	return &Fake{}
}

// Open returns a new FakeChannel named name.
func (f *Fake) Open(name string) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenError != nil {
		return nil, &OpenError{Name: name, Err: f.OpenError}
	}
	c := &FakeChannel{Name: name, FakeFailures: f.Template}
	f.Opened = append(f.Opened, c)
	return c, nil
}

// errFakeDuty is returned by FakeChannel when FailDutyAt triggers.
var errFakeDuty = errors.New("simulated duty write failure")

// FakeChannel records writes. Safe for concurrent use.
type FakeChannel struct {
	mu sync.Mutex

	Name string

	FakeFailures

	FrequencyHz float64
	Enabled     bool
	Duties      []float64 // successful duty writes, in order
	DutyCalls   int
	CloseCalls  int
	closed      bool

	// OnDuty, if set, is called after each successful duty write.
	OnDuty func(percent float64)
}

// SetFrequencyHz records hz.
func (c *FakeChannel) SetFrequencyHz(hz float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &IOError{Op: "frequency", Channel: c.Name, Err: ErrClosed}
	}
	if c.FrequencyErr != nil {
		return &IOError{Op: "frequency", Channel: c.Name, Err: c.FrequencyErr}
	}
	c.FrequencyHz = hz
	return nil
}

// SetDutyCycle records percent.
func (c *FakeChannel) SetDutyCycle(percent float64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return &IOError{Op: "duty", Channel: c.Name, Err: ErrClosed}
	}
	c.DutyCalls++
	if c.DutyErr != nil {
		c.mu.Unlock()
		return &IOError{Op: "duty", Channel: c.Name, Err: c.DutyErr}
	}
	if c.FailDutyAt > 0 && c.DutyCalls == c.FailDutyAt {
		c.mu.Unlock()
		return &IOError{Op: "duty", Channel: c.Name, Err: errFakeDuty}
	}
	c.Duties = append(c.Duties, percent)
	hook := c.OnDuty
	c.mu.Unlock()

	if hook != nil {
		hook(percent)
	}
	return nil
}

// SetEnabled records on.
func (c *FakeChannel) SetEnabled(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &IOError{Op: "enable", Channel: c.Name, Err: ErrClosed}
	}
	if c.EnableErr != nil {
		return &IOError{Op: "enable", Channel: c.Name, Err: c.EnableErr}
	}
	c.Enabled = on
	return nil
}

// Close marks the channel closed and disabled. Repeated calls are no-ops.
func (c *FakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCalls++
	if c.closed {
		return nil
	}
	c.closed = true
	c.Enabled = false
	if c.CloseErr != nil {
		return &IOError{Op: "close", Channel: c.Name, Err: c.CloseErr}
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// DutySnapshot returns a copy of the successful duty writes.
func (c *FakeChannel) DutySnapshot() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]float64(nil), c.Duties...)
}
