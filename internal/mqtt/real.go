package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/irrigation-controller/internal/logger"
	"github.com/sweeney/irrigation-controller/internal/logic"
)

const (
	connectWait    = 10 * time.Second
	publishWait    = 5 * time.Second
	disconnectWait = 1000 // ms
)

// DefaultBufferSize is how many messages are held while disconnected.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	DeviceID   string
	BufferSize int
}

// RealPublisher publishes to a broker. Messages published while the
// connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	topics Topics
	log    *logger.Logger

	mu     sync.Mutex
	buffer *ringBuffer
}

// NewRealPublisher connects to the broker. If the broker does not answer
// within the connect wait, the publisher is returned anyway and keeps
// retrying in the background.
func NewRealPublisher(opts Options, log *logger.Logger) (*RealPublisher, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ClientID == "" {
		opts.ClientID = "irrigation-" + opts.DeviceID
	}

	p := &RealPublisher{
		topics: TopicsFor(opts.DeviceID),
		log:    log,
		buffer: newRingBuffer(opts.BufferSize, log),
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: EventOffline})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	co := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnw("mqtt connection lost", "err", err)
		})

	p.client = paho.NewClient(co)
	token := p.client.Connect()
	if !token.WaitTimeout(connectWait) {
		log.Warnw("mqtt broker not reachable yet, buffering", "broker", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	pending := p.buffer.drain()
	p.mu.Unlock()

	p.log.Infow("mqtt connected", "replaying", len(pending))
	for _, m := range pending {
		token := c.Publish(m.topic, m.qos, m.retained, m.payload)
		if !token.WaitTimeout(publishWait) || token.Error() != nil {
			p.log.Warnw("mqtt replay failed", "topic", m.topic, "err", token.Error())
		}
	}
}

func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishWait) {
		return fmt.Errorf("publish to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Publish sends a pump event at QoS 1.
func (p *RealPublisher) Publish(event logic.PumpEvent) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(p.topics.Events, 1, false, payload)
}

// PublishSystem sends a lifecycle event at QoS 1.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.send(p.topics.System, 1, event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(disconnectWait)
	return nil
}
