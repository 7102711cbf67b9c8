// Command breathing-led fades an LED up and down on the board's PWM channel
// until it is signalled to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/breathing-led/internal/board"
	"github.com/sweeney/breathing-led/internal/breathing"
	"github.com/sweeney/breathing-led/internal/config"
	"github.com/sweeney/breathing-led/internal/controller"
	"github.com/sweeney/breathing-led/internal/gpio"
	"github.com/sweeney/breathing-led/internal/mqtt"
	"github.com/sweeney/breathing-led/internal/pwm"
	"github.com/sweeney/breathing-led/internal/status"
	"github.com/sweeney/breathing-led/internal/web"
)

// statusInterval is how often the status tracker is refreshed from the controller.
const statusInterval = time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file (empty for built-in defaults)")
	device := flag.String("device", "", "Device id override: rpi3, edison, edison_arduino, imx6ul")
	broker := flag.String("broker", "", "MQTT broker address, e.g. tcp://192.168.1.200:1883 (empty to disable)")
	httpAddr := flag.String("http", config.DefaultHTTPAddr, "HTTP status address (empty to disable)")
	heartbeat := flag.Duration("heartbeat", config.DefaultHeartbeat, "Heartbeat interval (0 to disable)")
	printBoard := flag.Bool("print-board", false, "Print resolved board and PWM channel and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: load config: %v", err)
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	cfg, err = applyFlags(cfg, flagValues{
		device:    *device,
		broker:    *broker,
		httpAddr:  *httpAddr,
		heartbeat: *heartbeat,
	}, set)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	if err := run(cfg, *printBoard); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

type flagValues struct {
	device    string
	broker    string
	httpAddr  string
	heartbeat time.Duration
}

// applyFlags overrides cfg with the flags that were given on the command line.
func applyFlags(cfg config.Config, fv flagValues, set map[string]bool) (config.Config, error) {
	if set["device"] {
		cfg.Device = fv.device
	}
	if set["broker"] {
		cfg.MQTT.Broker = fv.broker
	}
	if set["http"] {
		cfg.HTTP.Addr = fv.httpAddr
	}
	if set["heartbeat"] {
		cfg.Heartbeat = fv.heartbeat
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func run(cfg config.Config, printBoard bool) error {
	lister := gpio.NewRealLister()

	// Print board mode
	if printBoard {
		b, err := resolveBoard(cfg.Device, lister)
		if err != nil {
			return err
		}
		fmt.Printf("device: %s, variant: %s, channel: %s\n", b.DeviceID, b.Variant, b.Channel)
		return nil
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		FrequencyHz: cfg.Breathing.FrequencyHz,
		Step:        cfg.Breathing.Step,
		IntervalMs:  cfg.Breathing.Interval.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		HTTPAddr:    cfg.HTTP.Addr,
	})

	publisher, err := newPublisher(cfg, tracker)
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()
	mqttStatus, _ := publisher.(mqtt.ConnectionStatus)

	peripheral := pwm.NewSysfs(cfg.PWM.SysfsBase, cfg.PWM.Channels)
	ctrl, err := startup(cfg, lister, peripheral, publisher, tracker, nil)
	if err != nil {
		publishFault(publisher, tracker, err)
		return err
	}
	defer ctrl.Stop()

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	log.Printf("started: freq=%vHz step=%v interval=%v broker=%s heartbeat=%v",
		cfg.Breathing.FrequencyHz, cfg.Breathing.Step, cfg.Breathing.Interval, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(ctrl, publisher, mqttStatus, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh)
}

func newPublisher(cfg config.Config, tracker *status.Tracker) (mqtt.Publisher, error) {
	if cfg.MQTT.Broker == "" {
		log.Printf("mqtt disabled: no broker configured")
		return mqtt.Discard{}, nil
	}
	return mqtt.NewRealPublisher(mqtt.Options{
		Broker:             cfg.MQTT.Broker,
		ClientID:           cfg.MQTT.ClientID,
		Topics:             mqtt.TopicsFor(cfg.MQTT.TopicPrefix),
		BufferSize:         cfg.MQTT.Buffer,
		OnConnectionChange: tracker.SetMQTTConnected,
	})
}

// resolveBoard detects the device id and maps it to a PWM channel.
func resolveBoard(override string, lister gpio.Lister) (status.Board, error) {
	deviceID := board.DetectDeviceID(override)
	resolver := board.NewResolver()
	channel, err := resolver.Resolve(deviceID, gpio.Probe(lister))
	if err != nil {
		return status.Board{DeviceID: deviceID}, fmt.Errorf("resolve board: %w", err)
	}
	variant, _ := resolver.Variant()
	return status.Board{DeviceID: deviceID, Variant: string(variant), Channel: channel}, nil
}

// startup resolves the board, opens its channel and starts the controller.
// after is passed to the controller; nil uses the real clock.
func startup(cfg config.Config, lister gpio.Lister, peripheral pwm.Peripheral, publisher mqtt.Publisher, tracker *status.Tracker, after func(time.Duration) <-chan time.Time) (*controller.Controller, error) {
	b, err := resolveBoard(cfg.Device, lister)
	tracker.SetBoard(b)
	if err != nil {
		return nil, err
	}
	log.Printf("board: device=%s variant=%s channel=%s", b.DeviceID, b.Variant, b.Channel)

	params, err := cfg.BreathingParams()
	if err != nil {
		return nil, err
	}

	ctrl, err := controller.New(params, controller.Options{
		After: after,
		OnEvent: func(ev breathing.Event) {
			if err := publisher.Publish(ev); err != nil {
				log.Printf("publish error: %v", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	ch, err := peripheral.Open(b.Channel)
	if err != nil {
		return nil, fmt.Errorf("open pwm: %w", err)
	}
	if err := ctrl.Start(ch); err != nil {
		return nil, fmt.Errorf("start breathing: %w", err)
	}

	refreshTracker(tracker, ctrl, nil)
	return ctrl, nil
}

func runLoop(ctrl *controller.Controller, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}

			stopErr := ctrl.Stop()
			if stopErr != nil {
				log.Printf("stop error: %v", stopErr)
				tracker.SetError(stopErr.Error())
			}
			refreshTracker(tracker, ctrl, mqttStatus)

			snap := tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			log.Printf("stopped: steps=%d cycles=%d", snap.Counts.Steps, snap.Counts.Troughs)
			if stopErr != nil {
				return fmt.Errorf("stop: %w", stopErr)
			}
			return nil

		case <-ctrl.Done():
			// Only a failed step gets here; Stop is called from the signal case.
			err := ctrl.Err()
			if err == nil {
				return nil
			}
			log.Printf("fault: %v", err)
			publishFault(publisher, tracker, err)
			refreshTracker(tracker, ctrl, mqttStatus)
			return fmt.Errorf("breathing stopped: %w", err)

		case <-tick:
			t := now()
			refreshTracker(tracker, ctrl, mqttStatus)

			if hb := ctrl.CheckHeartbeat(t, heartbeat); hb != nil {
				log.Printf("heartbeat: uptime=%v steps=%d peaks=%d cycles=%d duty=%.1f",
					hb.Uptime, hb.Counts.Steps, hb.Counts.Peaks, hb.Counts.Troughs, hb.Counts.LastDuty)

				snap := tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hb.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// refreshTracker copies controller state into the tracker for HTTP and MQTT consumers.
func refreshTracker(tracker *status.Tracker, ctrl *controller.Controller, mqttStatus mqtt.ConnectionStatus) {
	snap := ctrl.Snapshot()
	tracker.Update(string(snap.Lifecycle), snap.State, snap.Counts)
	if snap.Err != nil {
		tracker.SetError(snap.Err.Error())
	}
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
}

func publishFault(publisher mqtt.Publisher, tracker *status.Tracker, cause error) {
	tracker.SetError(cause.Error())
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "FAULT",
		Reason:     cause.Error(),
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "FAULT", cause.Error()),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Printf("failed to publish fault event: %v", err)
	}
}
