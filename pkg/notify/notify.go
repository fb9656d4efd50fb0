// Package notify fans motion events out to an MQTT broker.
package notify

import (
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"picam-motion/pkg/utils"
)

const publishTimeout = 2 * time.Second

var (
	logger *zap.SugaredLogger

	// how long NewMQTT waits for the first connection before leaving it to
	// the background retry
	connectTimeout = 5 * time.Second
)

func init() {
	logger = utils.GetLogger()
}

type Publisher interface {
	Publish(v any) error
	Close()
}

// Nop drops everything. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(any) error { return nil }

func (Nop) Close() {}

type Options struct {
	Broker   string
	ClientID string
	Topic    string
	QoS      byte
}

// MQTT publishes JSON encoded values to a single topic.
type MQTT struct {
	opts   Options
	client mqtt.Client

	mu        sync.Mutex
	connected bool
	published uint64
	errors    uint64
}

// NewMQTT connects to the broker. An unreachable broker is not an error: the
// client keeps retrying in the background and Publish fails until it is up.
func NewMQTT(o Options) (*MQTT, error) {
	if o.Broker == "" || o.Topic == "" {
		return nil, fmt.Errorf("mqtt broker and topic are required")
	}
	m := &MQTT{opts: o}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", o.Broker))
	opts.SetClientID(o.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		m.setConnected(true)
		logger.Infof("mqtt: connected to %s", o.Broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		m.setConnected(false)
		logger.Warnf("mqtt: connection lost, reconnecting: %s", err)
	}

	return m, m.connect(mqtt.NewClient(opts))
}

func (m *MQTT) connect(c mqtt.Client) error {
	m.client = c
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		logger.Warnf("mqtt: broker %s not reachable after %s, retrying in background", m.opts.Broker, connectTimeout)
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	m.setConnected(true)

	return nil
}

func (m *MQTT) Publish(v any) error {
	if !m.isConnected() {
		m.incErr()
		return fmt.Errorf("mqtt not connected")
	}
	payload, err := json.Marshal(v)
	if err != nil {
		m.incErr()
		return fmt.Errorf("marshal payload: %w", err)
	}

	token := m.client.Publish(m.opts.Topic, m.opts.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.incErr()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		m.incErr()
		return fmt.Errorf("publish failed: %w", err)
	}

	m.mu.Lock()
	m.published++
	m.mu.Unlock()

	return nil
}

// Stats returns the number of published messages and failures.
func (m *MQTT) Stats() (published, errors uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published, m.errors
}

// Close disconnects and stops any pending connect retry.
func (m *MQTT) Close() {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	m.setConnected(false)
}

func (m *MQTT) setConnected(b bool) {
	m.mu.Lock()
	m.connected = b
	m.mu.Unlock()
}

func (m *MQTT) isConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *MQTT) incErr() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

// New returns a Nop publisher when broker is empty.
func New(o Options) (Publisher, error) {
	if o.Broker == "" {
		return Nop{}, nil
	}
	m, err := NewMQTT(o)
	if m == nil {
		return Nop{}, err
	}
	return m, err
}
