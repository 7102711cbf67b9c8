package breathing

import "time"

// Step advances s by one increment under cfg and reports whether the
// direction reversed. Overshoot past a bound is discarded: the duty is
// clamped to exactly Min or Max so a step size that does not divide the
// range cannot drift.
func Step(cfg Config, s State) (State, bool) {
	candidate := s.Duty + cfg.Step
	if s.Direction == Decreasing {
		candidate = s.Duty - cfg.Step
	}

	switch {
	case candidate >= cfg.Max:
		return State{Duty: cfg.Max, Direction: Decreasing}, s.Direction != Decreasing
	case candidate <= cfg.Min:
		return State{Duty: cfg.Min, Direction: Increasing}, s.Direction != Increasing
	default:
		return State{Duty: candidate, Direction: s.Direction}, false
	}
}

// Oscillator tracks state and counts across steps.
// Not safe for concurrent use; the controller is its single writer.
type Oscillator struct {
	cfg           Config
	state         State
	counts        Counts
	startTime     time.Time
	lastHeartbeat time.Time
}

// NewOscillator creates an oscillator in cfg's initial state.
// The startTime is used for calculating uptime in heartbeat events.
func NewOscillator(cfg Config, startTime time.Time) *Oscillator {
	initial := cfg.InitialState()
	return &Oscillator{
		cfg:           cfg,
		state:         initial,
		counts:        Counts{LastDuty: initial.Duty},
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Config returns the oscillator's fixed parameters.
func (o *Oscillator) Config() Config {
	return o.cfg
}

// Next performs one step and returns the new state. If the step reversed
// direction, the returned event is non-nil.
func (o *Oscillator) Next(now time.Time) (State, *Event) {
	next, reversed := Step(o.cfg, o.state)
	o.state = next
	o.counts.Steps++
	o.counts.LastDuty = next.Duty

	if !reversed {
		return next, nil
	}

	ev := &Event{Timestamp: now, Duty: next.Duty, Step: o.counts.Steps}
	if next.Direction == Decreasing {
		ev.Type = EventPeak
		o.counts.Peaks++
	} else {
		ev.Type = EventTrough
		o.counts.Troughs++
	}
	return next, ev
}

// State returns the current duty and direction.
func (o *Oscillator) State() State {
	return o.state
}

// CountsSnapshot returns a copy of the progress counters.
func (o *Oscillator) CountsSnapshot() Counts {
	return o.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed, or
// if interval is <= 0 (disabled).
func (o *Oscillator) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(o.lastHeartbeat) < interval {
		return nil
	}

	o.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(o.startTime),
		Counts:    o.counts,
	}
}

// Period returns the number of steps in one full breathing cycle for cfg
// when Step divides the range evenly.
func Period(cfg Config) int {
	return 2 * int((cfg.Max-cfg.Min)/cfg.Step)
}
