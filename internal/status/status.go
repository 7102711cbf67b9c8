// Package status provides a thread-safe status tracker for the breathing-led daemon.
// It is read by the HTTP handlers and the MQTT system events.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/breathing-led/internal/breathing"
)

// Config contains daemon configuration for display.
type Config struct {
	FrequencyHz float64
	Step        float64
	IntervalMs  int64
	HeartbeatMs int64
	Broker      string
	HTTPAddr    string
}

// Board identifies the hardware being driven.
type Board struct {
	DeviceID string
	Variant  string
	Channel  string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Board         Board
	Lifecycle     string
	State         breathing.State
	Counts        breathing.Counts
	LastError     string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetBoard records the resolved board and channel.
func (t *Tracker) SetBoard(b Board) {
	t.mu.Lock()
	t.snap.Board = b
	t.mu.Unlock()
}

// Update sets lifecycle, oscillator state and counts.
func (t *Tracker) Update(lifecycle string, state breathing.State, counts breathing.Counts) {
	t.mu.Lock()
	t.snap.Lifecycle = lifecycle
	t.snap.State = state
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetError records the most recent failure; empty clears it.
func (t *Tracker) SetError(msg string) {
	t.mu.Lock()
	t.snap.LastError = msg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
