// Package controller drives a PWM channel through the breathing ramp.
package controller

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sweeney/breathing-led/internal/breathing"
	"github.com/sweeney/breathing-led/internal/pwm"
	"github.com/sweeney/breathing-led/internal/ticker"
)

// Lifecycle is the controller's run state.
type Lifecycle string

const (
	NotStarted Lifecycle = "NOT_STARTED"
	Running    Lifecycle = "RUNNING"
	Stopped    Lifecycle = "STOPPED"
)

var (
	// ErrAlreadyStarted is returned by Start on a running controller.
	ErrAlreadyStarted = errors.New("controller already started")
	// ErrStopped is returned by Start after Stop or a step failure.
	ErrStopped = errors.New("controller stopped")
)

// Options are optional collaborators. Zero values use the real clock.
type Options struct {
	// After schedules the next step; defaults to time.After.
	After func(time.Duration) <-chan time.Time
	// Now timestamps events; defaults to time.Now.
	Now func() time.Time
	// OnEvent receives reversal events on its own goroutine, in order. A
	// slow OnEvent never delays stepping; an event that finds EventBuffer
	// events already queued is dropped.
	OnEvent func(breathing.Event)
	// EventBuffer is the queue length for OnEvent; defaults to
	// DefaultEventBuffer.
	EventBuffer int
}

// DefaultEventBuffer is about 30 seconds of reversals at default settings.
const DefaultEventBuffer = 16

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	Lifecycle Lifecycle
	State     breathing.State
	Counts    breathing.Counts
	Config    breathing.Config
	Err       error

	// DroppedEvents counts reversals not delivered because OnEvent fell behind.
	DroppedEvents uint64
}

// Controller owns one PWM channel and steps its duty cycle on a fixed
// interval. Start and Stop may be called from any goroutine.
type Controller struct {
	cfg  breathing.Config
	opts Options

	mu        sync.Mutex
	lifecycle Lifecycle
	osc       *breathing.Oscillator
	ch        pwm.Channel
	timer     *ticker.Timer
	err       error
	dropped   uint64

	events   chan breathing.Event // closed by finish
	doneOnce sync.Once
	done     chan struct{}
}

// New creates a controller in the NotStarted state.
func New(cfg breathing.Config, opts Options) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("breathing config: %w", err)
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	return &Controller{
		cfg:       cfg,
		opts:      opts,
		lifecycle: NotStarted,
		osc:       breathing.NewOscillator(cfg, opts.Now()),
		events:    make(chan breathing.Event, opts.EventBuffer),
		done:      make(chan struct{}),
	}, nil
}

// Start configures ch (frequency, initial duty, enable) and begins stepping.
// If any configuration call fails, ch is closed, the controller stays
// NotStarted and the error is returned. On success the controller owns ch
// until it stops.
func (c *Controller) Start(ch pwm.Channel) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.lifecycle {
	case Running:
		return ErrAlreadyStarted
	case Stopped:
		return ErrStopped
	}

	if err := configure(ch, c.cfg, c.osc.State().Duty); err != nil {
		_ = ch.Close()
		return err
	}

	c.ch = ch
	c.lifecycle = Running
	if c.opts.OnEvent != nil {
		go c.dispatch()
	}
	c.timer = ticker.New(c.cfg.Interval, c.opts.After)
	c.timer.Start(c.step)
	return nil
}

// dispatch delivers queued events until finish closes the queue. Events
// still queued at that point are delivered before it returns.
func (c *Controller) dispatch() {
	for ev := range c.events {
		c.opts.OnEvent(ev)
	}
}

func configure(ch pwm.Channel, cfg breathing.Config, duty float64) error {
	if err := ch.SetFrequencyHz(cfg.FrequencyHz); err != nil {
		return fmt.Errorf("set frequency: %w", err)
	}
	if err := ch.SetDutyCycle(duty); err != nil {
		return fmt.Errorf("set initial duty: %w", err)
	}
	if err := ch.SetEnabled(true); err != nil {
		return fmt.Errorf("enable output: %w", err)
	}
	return nil
}

// step runs on the timer goroutine. Returning false ends the schedule.
func (c *Controller) step() bool {
	c.mu.Lock()
	if c.lifecycle != Running {
		c.mu.Unlock()
		return false
	}

	state, ev := c.osc.Next(c.opts.Now())
	if err := c.ch.SetDutyCycle(state.Duty); err != nil {
		// No retry: a failing peripheral would otherwise spin the timer.
		c.err = fmt.Errorf("step %d: %w", c.osc.CountsSnapshot().Steps, err)
		c.lifecycle = Stopped
		_ = c.release()
		c.mu.Unlock()
		c.finish()
		return false
	}
	if ev != nil && c.opts.OnEvent != nil {
		select {
		case c.events <- *ev:
		default:
			c.dropped++
		}
	}
	c.mu.Unlock()
	return true
}

// Stop cancels stepping, disables and closes the channel. Once Stop returns
// no further duty write happens. Stop does not wait for OnEvent. Safe to call any number of times, before
// Start and after a step failure; only the call that actually closes the
// channel can return an error.
func (c *Controller) Stop() error {
	c.mu.Lock()
	c.lifecycle = Stopped
	timer := c.timer
	c.mu.Unlock()

	// Cancel waits for an in-flight step, which sees Stopped and bails.
	if timer != nil {
		timer.Cancel()
	}

	c.mu.Lock()
	err := c.release()
	c.mu.Unlock()

	c.finish()
	return err
}

// release disables and closes the channel. Caller holds c.mu.
func (c *Controller) release() error {
	if c.ch == nil {
		return nil
	}
	ch := c.ch
	c.ch = nil
	disableErr := ch.SetEnabled(false)
	closeErr := ch.Close()
	if closeErr != nil {
		return closeErr
	}
	return disableErr
}

// finish runs once stepping can no longer happen, so nothing sends on
// c.events after it is closed.
func (c *Controller) finish() {
	c.doneOnce.Do(func() {
		close(c.events)
		close(c.done)
	})
}

// Done is closed once the controller has stopped, by Stop or by a failed step.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Err returns the step failure that stopped the controller, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Lifecycle returns the current run state.
func (c *Controller) Lifecycle() Lifecycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lifecycle
}

// Snapshot returns the current state and counters.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Lifecycle: c.lifecycle,
		State:     c.osc.State(),
		Counts:    c.osc.CountsSnapshot(),
		Config:    c.cfg,
		Err:       c.err,

		DroppedEvents: c.dropped,
	}
}

// CheckHeartbeat returns heartbeat data when interval has elapsed since the
// previous heartbeat, nil otherwise.
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *breathing.HeartbeatData {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.osc.CheckHeartbeat(now, interval)
}
