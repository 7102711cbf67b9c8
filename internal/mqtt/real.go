package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/breathing-led/internal/breathing"
)

// Options configure a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Topics     Topics
	BufferSize int

	// OnConnectionChange, if set, is called from paho's goroutines when the
	// connection comes up or is lost.
	OnConnectionChange func(connected bool)
}

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are held in a ring
// buffer and sent in order once it comes back.
type RealPublisher struct {
	client paho.Client
	opts   Options

	mu            sync.Mutex
	buf           *ringBuffer
	connected     bool // set by the connect and connection-lost handlers
	everConnected bool
}

// NewRealPublisher creates a publisher connected to the given broker.
// If the broker is unreachable within the connect timeout, the publisher is
// still returned and keeps retrying in the background.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.ClientID == "" {
		opts.ClientID = "breathing-led"
	}
	if opts.Topics == (Topics{}) {
		opts.Topics = TopicsFor(DefaultTopicPrefix)
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}

	p := newRealPublisher(opts)

	copts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(opts.Topics.System, string(willPayload(time.Now())), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(copts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Printf("mqtt: broker=%s not reachable yet, buffering until connected", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return p, nil
}

func newRealPublisher(opts Options) *RealPublisher {
	return &RealPublisher{
		opts: opts,
		buf:  newRingBuffer(opts.BufferSize),
	}
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.everConnected
	p.everConnected = true
	p.connected = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	log.Printf("mqtt: connected broker=%s buffered=%d", p.opts.Broker, len(pending))
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(true)
	}

	for _, m := range pending {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay topic=%s failed: %v", m.topic, err)
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err := p.send(bufferedMsg{topic: p.opts.Topics.System, payload: payload, qos: 1}); err != nil {
			log.Printf("mqtt: publish RECONNECTED failed: %v", err)
		}
	}
}

func (p *RealPublisher) onConnectionLost(c paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
	if p.opts.OnConnectionChange != nil {
		p.opts.OnConnectionChange(false)
	}
}

// IsConnected reports whether the client currently has an open connection.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Publish sends a breathing event to the MQTT broker.
func (p *RealPublisher) Publish(event breathing.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.enqueue(bufferedMsg{topic: p.opts.Topics.Events, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.enqueue(bufferedMsg{
		topic:    p.opts.Topics.System,
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

// enqueue buffers m while offline, otherwise sends it. The connected check
// and the push share p.mu with onConnect's drain, so nothing is pushed after
// the drain that should have replayed it.
func (p *RealPublisher) enqueue(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.mu.Lock()
	dropped := p.buf.len()
	p.mu.Unlock()
	if dropped > 0 {
		log.Printf("mqtt: closing with %d unsent messages", dropped)
	}
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
