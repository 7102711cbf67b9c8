package main

import (
	"errors"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/breathing-led/internal/board"
	"github.com/sweeney/breathing-led/internal/breathing"
	"github.com/sweeney/breathing-led/internal/config"
	"github.com/sweeney/breathing-led/internal/controller"
	"github.com/sweeney/breathing-led/internal/gpio"
	"github.com/sweeney/breathing-led/internal/mqtt"
	"github.com/sweeney/breathing-led/internal/pwm"
	"github.com/sweeney/breathing-led/internal/status"
)

// --- flag handling ---

func TestApplyFlagsOnlyOverridesSetFlags(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://10.0.0.1:1883"

	got, err := applyFlags(cfg, flagValues{
		device:    "rpi3",
		broker:    "tcp://ignored:1883",
		httpAddr:  ":8080",
		heartbeat: time.Minute,
	}, map[string]bool{"device": true, "http": true})
	if err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if got.Device != "rpi3" {
		t.Errorf("Device: got %q, want rpi3", got.Device)
	}
	if got.HTTP.Addr != ":8080" {
		t.Errorf("HTTP.Addr: got %q, want :8080", got.HTTP.Addr)
	}
	if got.MQTT.Broker != "tcp://10.0.0.1:1883" {
		t.Errorf("MQTT.Broker: got %q, want config value", got.MQTT.Broker)
	}
	if got.Heartbeat != config.DefaultHeartbeat {
		t.Errorf("Heartbeat: got %v, want %v", got.Heartbeat, config.DefaultHeartbeat)
	}
}

func TestApplyFlagsValidates(t *testing.T) {
	_, err := applyFlags(config.Default(), flagValues{broker: "192.168.1.200"}, map[string]bool{"broker": true})
	if err == nil {
		t.Fatal("expected error for broker without scheme")
	}
}

func TestApplyFlagsHeartbeatDisable(t *testing.T) {
	got, err := applyFlags(config.Default(), flagValues{heartbeat: 0}, map[string]bool{"heartbeat": true})
	if err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if got.Heartbeat != 0 {
		t.Errorf("Heartbeat: got %v, want 0", got.Heartbeat)
	}
}

// --- board resolution ---

func TestResolveBoard(t *testing.T) {
	tests := []struct {
		device      string
		lines       []string
		wantChannel string
		wantProbes  int
	}{
		{"rpi3", nil, "PWM0", 0},
		{"imx6ul", nil, "PWM7", 0},
		{"edison_arduino", nil, "IO6", 0},
		{"edison", []string{"IO0", "IO1"}, "IO6", 1},
		{"edison", []string{"GP12", "GP13"}, "GP12", 1},
		{"edison", nil, "GP12", 1},
	}
	for _, tt := range tests {
		lister := gpio.NewFakeLister(tt.lines...)
		b, err := resolveBoard(tt.device, lister)
		if err != nil {
			t.Fatalf("resolveBoard(%q): %v", tt.device, err)
		}
		if b.Channel != tt.wantChannel {
			t.Errorf("resolveBoard(%q, %v): got %q, want %q", tt.device, tt.lines, b.Channel, tt.wantChannel)
		}
		if lister.Calls != tt.wantProbes {
			t.Errorf("resolveBoard(%q): probe calls got %d, want %d", tt.device, lister.Calls, tt.wantProbes)
		}
	}
}

func TestResolveBoardUnsupported(t *testing.T) {
	lister := gpio.NewFakeLister("IO0")
	b, err := resolveBoard("beaglebone", lister)

	var ube *board.UnsupportedBoardError
	if !errors.As(err, &ube) {
		t.Fatalf("expected UnsupportedBoardError, got %v", err)
	}
	if ube.DeviceID != "beaglebone" {
		t.Errorf("DeviceID: got %q, want beaglebone", ube.DeviceID)
	}
	if b.DeviceID != "beaglebone" {
		t.Errorf("board DeviceID: got %q, want beaglebone", b.DeviceID)
	}
	if lister.Calls != 0 {
		t.Errorf("probe should not run for unknown board, got %d calls", lister.Calls)
	}
}

// --- startup ---

// manualClock feeds ticks to the controller's timer by hand.
type manualClock struct {
	ch chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{ch: make(chan time.Time)}
}

func (m *manualClock) after(time.Duration) <-chan time.Time {
	return m.ch
}

func (m *manualClock) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("controller timer not waiting for a tick")
	}
}

func newTestTracker(cfg config.Config) *status.Tracker {
	return status.NewTracker(time.Now(), status.Config{
		FrequencyHz: cfg.Breathing.FrequencyHz,
		Step:        cfg.Breathing.Step,
		IntervalMs:  cfg.Breathing.Interval.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
	})
}

type harness struct {
	cfg     config.Config
	fake    *pwm.Fake
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	clk     *manualClock
	ctrl    *controller.Controller
}

func startHarness(t *testing.T, device string, template pwm.FakeFailures) *harness {
	t.Helper()
	h := &harness{
		cfg:  config.Default(),
		fake: pwm.NewFake(),
		pub:  mqtt.NewFakePublisher(),
		clk:  newManualClock(),
	}
	h.cfg.Device = device
	h.fake.Template = template
	h.tracker = newTestTracker(h.cfg)

	ctrl, err := startup(h.cfg, gpio.NewFakeLister(), h.fake, h.pub, h.tracker, h.clk.after)
	if err != nil {
		t.Fatalf("startup: %v", err)
	}
	t.Cleanup(func() { ctrl.Stop() })
	h.ctrl = ctrl
	return h
}

func (h *harness) channel() *pwm.FakeChannel {
	return h.fake.Opened[0]
}

func TestStartupOpensResolvedChannel(t *testing.T) {
	h := startHarness(t, "imx6ul", pwm.FakeFailures{})

	if len(h.fake.Opened) != 1 {
		t.Fatalf("expected 1 opened channel, got %d", len(h.fake.Opened))
	}
	if h.channel().Name != "PWM7" {
		t.Errorf("opened channel: got %q, want PWM7", h.channel().Name)
	}
	if h.ctrl.Lifecycle() != controller.Running {
		t.Errorf("lifecycle: got %s, want RUNNING", h.ctrl.Lifecycle())
	}

	snap := h.tracker.Snapshot()
	if snap.Board.Channel != "PWM7" || snap.Board.Variant != "imx6ul" {
		t.Errorf("tracker board: got %+v", snap.Board)
	}
	if snap.Lifecycle != "RUNNING" {
		t.Errorf("tracker lifecycle: got %q, want RUNNING", snap.Lifecycle)
	}
}

func TestStartupUnsupportedBoard(t *testing.T) {
	cfg := config.Default()
	cfg.Device = "beaglebone"
	fake := pwm.NewFake()
	tracker := newTestTracker(cfg)

	_, err := startup(cfg, gpio.NewFakeLister(), fake, mqtt.NewFakePublisher(), tracker, nil)
	var ube *board.UnsupportedBoardError
	if !errors.As(err, &ube) {
		t.Fatalf("expected UnsupportedBoardError, got %v", err)
	}
	if len(fake.Opened) != 0 {
		t.Errorf("no channel should be opened, got %d", len(fake.Opened))
	}
	if got := tracker.Snapshot().Board.DeviceID; got != "beaglebone" {
		t.Errorf("tracker DeviceID: got %q, want beaglebone", got)
	}
}

func TestStartupOpenError(t *testing.T) {
	cfg := config.Default()
	cfg.Device = "rpi3"
	fake := pwm.NewFake()
	fake.OpenError = errors.New("no such device")

	_, err := startup(cfg, gpio.NewFakeLister(), fake, mqtt.NewFakePublisher(), newTestTracker(cfg), nil)
	var oe *pwm.OpenError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OpenError, got %v", err)
	}
	if oe.Name != "PWM0" {
		t.Errorf("OpenError.Name: got %q, want PWM0", oe.Name)
	}
}

func TestStartupConfigureFailureClosesChannel(t *testing.T) {
	cfg := config.Default()
	cfg.Device = "rpi3"
	fake := pwm.NewFake()
	fake.Template = pwm.FakeFailures{FrequencyErr: errors.New("EINVAL")}

	_, err := startup(cfg, gpio.NewFakeLister(), fake, mqtt.NewFakePublisher(), newTestTracker(cfg), nil)
	var ioe *pwm.IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("expected IOError, got %v", err)
	}
	if !fake.Opened[0].Closed() {
		t.Error("channel should be closed after failed start")
	}
}

// --- runLoop ---

// runLoopAsync starts runLoop on its own goroutine and returns its inputs.
func runLoopAsync(h *harness, heartbeat time.Duration, now func() time.Time) (chan time.Time, chan os.Signal, chan error) {
	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- runLoop(h.ctrl, h.pub, h.pub, h.tracker, heartbeat, now, tick, sig)
	}()
	return tick, sig, errCh
}

func waitErr(t *testing.T, errCh chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return")
		return nil
	}
}

func waitEvents(t *testing.T, pub *mqtt.FakePublisher, n int) []breathing.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ev := pub.EventsSnapshot(); len(ev) >= n {
			return ev
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, have %d", n, len(pub.EventsSnapshot()))
	return nil
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	h := startHarness(t, "rpi3", pwm.FakeFailures{})
	_, sig, errCh := runLoopAsync(h, 0, time.Now)

	for i := 0; i < 5; i++ {
		h.clk.tick(t)
	}
	sig <- syscall.SIGTERM

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if !h.channel().Closed() {
		t.Error("channel should be closed after shutdown")
	}
	if h.ctrl.Lifecycle() != controller.Stopped {
		t.Errorf("lifecycle: got %s, want STOPPED", h.ctrl.Lifecycle())
	}

	names := h.pub.SystemEventNames()
	if len(names) != 1 || names[0] != "SHUTDOWN" {
		t.Fatalf("system events: got %v, want [SHUTDOWN]", names)
	}
	ev := h.pub.SystemEvents[0]
	if ev.Reason != "SIGTERM" || !ev.Retained {
		t.Errorf("SHUTDOWN: reason=%q retained=%v", ev.Reason, ev.Retained)
	}
	if !strings.Contains(string(h.pub.SystemPayloads[0]), `"lifecycle":"STOPPED"`) {
		t.Errorf("SHUTDOWN payload should report STOPPED: %s", h.pub.SystemPayloads[0])
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := startHarness(t, "rpi3", pwm.FakeFailures{})
	_, sig, errCh := runLoopAsync(h, 0, time.Now)

	sig <- syscall.SIGINT
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
	if h.pub.SystemEvents[0].Reason != "SIGINT" {
		t.Errorf("reason: got %q, want SIGINT", h.pub.SystemEvents[0].Reason)
	}
}

func TestRunLoopPublishesPeakAndTrough(t *testing.T) {
	h := startHarness(t, "rpi3", pwm.FakeFailures{})
	_, sig, errCh := runLoopAsync(h, 0, time.Now)

	for i := 0; i < 200; i++ {
		h.clk.tick(t)
	}
	events := waitEvents(t, h.pub, 2)
	sig <- syscall.SIGTERM
	waitErr(t, errCh)

	if events[0].Type != breathing.EventPeak || events[0].Duty != 100 || events[0].Step != 100 {
		t.Errorf("first event: got %+v, want PEAK at duty 100 step 100", events[0])
	}
	if events[1].Type != breathing.EventTrough || events[1].Duty != 0 || events[1].Step != 200 {
		t.Errorf("second event: got %+v, want TROUGH at duty 0 step 200", events[1])
	}
}

func TestRunLoopPublishErrorNotFatal(t *testing.T) {
	h := startHarness(t, "rpi3", pwm.FakeFailures{})
	h.pub.PublishError = errors.New("broker down")
	_, sig, errCh := runLoopAsync(h, 0, time.Now)

	for i := 0; i < 100; i++ {
		h.clk.tick(t)
	}
	// Reaching the 101st wait proves the peak publish failure did not stop stepping.
	h.clk.tick(t)
	sig <- syscall.SIGTERM
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}
}

func TestRunLoopStepFailurePublishesFault(t *testing.T) {
	// Duty call 1 is the initial duty during Start, so call 3 is step 2.
	h := startHarness(t, "rpi3", pwm.FakeFailures{FailDutyAt: 3})
	_, _, errCh := runLoopAsync(h, 0, time.Now)

	h.clk.tick(t)
	h.clk.tick(t)

	err := waitErr(t, errCh)
	var ioe *pwm.IOError
	if !errors.As(err, &ioe) {
		t.Fatalf("expected IOError from runLoop, got %v", err)
	}
	if !h.channel().Closed() {
		t.Error("channel should be closed after step failure")
	}

	names := h.pub.SystemEventNames()
	if len(names) != 1 || names[0] != "FAULT" {
		t.Fatalf("system events: got %v, want [FAULT]", names)
	}
	if !h.pub.SystemEvents[0].Retained {
		t.Error("FAULT should be retained")
	}

	snap := h.tracker.Snapshot()
	if snap.Lifecycle != "STOPPED" {
		t.Errorf("tracker lifecycle: got %q, want STOPPED", snap.Lifecycle)
	}
	if !strings.Contains(snap.LastError, "step 2") {
		t.Errorf("tracker LastError: got %q, want step 2 failure", snap.LastError)
	}
	if d := h.channel().DutySnapshot(); len(d) != 2 || d[1] != 1 {
		t.Errorf("duties: got %v, want [0 1]", d)
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	h := startHarness(t, "rpi3", pwm.FakeFailures{})
	// Clock two minutes ahead so the first status tick is due a heartbeat.
	now := func() time.Time { return time.Now().Add(2 * time.Minute) }
	tick, sig, errCh := runLoopAsync(h, time.Minute, now)

	h.clk.tick(t)
	tick <- time.Time{}
	tick <- time.Time{}
	sig <- syscall.SIGTERM
	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("runLoop returned error: %v", err)
	}

	names := h.pub.SystemEventNames()
	if len(names) != 2 || names[0] != "HEARTBEAT" || names[1] != "SHUTDOWN" {
		t.Fatalf("system events: got %v, want [HEARTBEAT SHUTDOWN]", names)
	}
	if h.pub.SystemEvents[0].Retained {
		t.Error("HEARTBEAT should not be retained")
	}
	if !strings.Contains(string(h.pub.SystemPayloads[0]), `"event":"HEARTBEAT"`) {
		t.Errorf("HEARTBEAT payload: %s", h.pub.SystemPayloads[0])
	}
}

func TestRunLoopTickUpdatesTracker(t *testing.T) {
	h := startHarness(t, "rpi3", pwm.FakeFailures{})
	h.pub.Connected = true
	tick, sig, errCh := runLoopAsync(h, 0, time.Now)

	for i := 0; i < 3; i++ {
		h.clk.tick(t)
	}
	// The timer goroutine finishes step 3 before waiting again.
	h.clk.tick(t)
	tick <- time.Time{}
	tick <- time.Time{} // second send ensures the first was fully handled

	snap := h.tracker.Snapshot()
	if snap.Counts.Steps < 3 {
		t.Errorf("tracker steps: got %d, want >= 3", snap.Counts.Steps)
	}
	if !snap.MQTTConnected {
		t.Error("tracker should report MQTT connected")
	}

	sig <- syscall.SIGTERM
	waitErr(t, errCh)
}
