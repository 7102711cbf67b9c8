package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Board         BoardJSON  `json:"board"`
	Lifecycle     string     `json:"lifecycle"`
	Duty          float64    `json:"duty"`
	Direction     string     `json:"direction"`
	Counts        CountsJSON `json:"counts"`
	LastError     string     `json:"last_error,omitempty"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// BoardJSON is the JSON representation of the resolved board.
type BoardJSON struct {
	DeviceID string `json:"device_id"`
	Variant  string `json:"variant,omitempty"`
	Channel  string `json:"channel,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of oscillator counters.
type CountsJSON struct {
	Steps   uint64 `json:"steps"`
	Peaks   int    `json:"peaks"`
	Troughs int    `json:"troughs"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	FrequencyHz float64 `json:"frequency_hz"`
	Step        float64 `json:"step"`
	IntervalMs  int64   `json:"interval_ms"`
	HeartbeatMs int64   `json:"heartbeat_ms"`
	Broker      string  `json:"broker"`
	HTTPAddr    string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	lifecycle := snap.Lifecycle
	if lifecycle == "" {
		lifecycle = "UNKNOWN"
	}
	direction := string(snap.State.Direction)
	if direction == "" {
		direction = "UNKNOWN"
	}

	return StatusInner{
		Board: BoardJSON{
			DeviceID: snap.Board.DeviceID,
			Variant:  snap.Board.Variant,
			Channel:  snap.Board.Channel,
		},
		Lifecycle: lifecycle,
		// Rounded to two decimals.
		Duty:      math.Round(snap.State.Duty*100) / 100,
		Direction: direction,
		Counts: CountsJSON{
			Steps:   snap.Counts.Steps,
			Peaks:   snap.Counts.Peaks,
			Troughs: snap.Counts.Troughs,
		},
		LastError:     snap.LastError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			FrequencyHz: snap.Config.FrequencyHz,
			Step:        snap.Config.Step,
			IntervalMs:  snap.Config.IntervalMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
