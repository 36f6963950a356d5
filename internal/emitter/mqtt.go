// Package emitter publishes hot-plug events and capture statistics to an
// MQTT broker as msgpack payloads.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/e7canasta/devicecapture"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// Event kinds, used as the last topic segment.
const (
	KindAdded   = "added"
	KindRemoved = "removed"
)

// ErrNotConnected is returned when publishing before Connect succeeded.
var ErrNotConnected = errors.New("emitter: mqtt not connected")

// Config configures the emitter.
type Config struct {
	Broker      string // host:port
	ClientID    string
	Instance    string
	TopicPrefix string
	QoS         byte
}

// DeviceEvent is the payload of a hot-plug message.
type DeviceEvent struct {
	ID        string    `msgpack:"id"`
	Kind      string    `msgpack:"kind"`
	Name      string    `msgpack:"name"`
	Path      string    `msgpack:"path"`
	Instance  string    `msgpack:"instance"`
	Timestamp time.Time `msgpack:"ts"`
}

// publisher is the part of mqtt.Client the emitter publishes through.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes device events to an MQTT broker.
type MQTTEmitter struct {
	cfg       Config
	client    mqtt.Client
	pub       publisher
	newClient func(*mqtt.ClientOptions) mqtt.Client

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates an emitter. Call Connect before publishing.
func NewMQTTEmitter(cfg Config) *MQTTEmitter {
	return &MQTTEmitter{
		cfg:       cfg,
		published: make(map[string]uint64),
		newClient: mqtt.NewClient,
	}
}

// Connect establishes the broker connection. The client reconnects on its
// own after a later connection loss.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", e.cfg.Broker))
	opts.SetClientID(e.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		slog.Info("emitter: mqtt connection established",
			"broker", e.cfg.Broker,
			"client_id", e.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		slog.Warn("emitter: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", e.cfg.Broker,
		)
	}

	client := e.newClient(opts)

	slog.Info("emitter: connecting to mqtt broker", "broker", e.cfg.Broker)

	// With connect retry on, a failed attempt keeps retrying in the
	// background until the client is disconnected.
	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(connectTimeout):
		client.Disconnect(0)
		return fmt.Errorf("emitter: mqtt connection timeout")
	case <-ctx.Done():
		client.Disconnect(0)
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		client.Disconnect(0)
		return fmt.Errorf("emitter: mqtt connection failed: %w", err)
	}

	e.client = client
	e.pub = client

	e.setConnected(true)
	return nil
}

// DeviceAdded publishes an added event. It has the hot-plug handler
// signature and logs instead of returning errors.
func (e *MQTTEmitter) DeviceAdded(info devicecapture.DeviceInfo) {
	if err := e.PublishDevice(KindAdded, info); err != nil {
		slog.Warn("emitter: failed to publish device event", "kind", KindAdded, "path", info.Path, "error", err)
	}
}

// DeviceRemoved publishes a removed event. See DeviceAdded.
func (e *MQTTEmitter) DeviceRemoved(info devicecapture.DeviceInfo) {
	if err := e.PublishDevice(KindRemoved, info); err != nil {
		slog.Warn("emitter: failed to publish device event", "kind", KindRemoved, "path", info.Path, "error", err)
	}
}

// PublishDevice publishes one hot-plug event to
// <prefix>/<instance>/devices/<kind>.
func (e *MQTTEmitter) PublishDevice(kind string, info devicecapture.DeviceInfo) error {
	event := DeviceEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Name:      info.Name,
		Path:      info.Path,
		Instance:  e.cfg.Instance,
		Timestamp: time.Now().UTC(),
	}
	return e.publish(e.DeviceTopic(kind), event)
}

// PublishStats publishes capture statistics to <prefix>/<instance>/capture/stats.
func (e *MQTTEmitter) PublishStats(stats devicecapture.CameraStats) error {
	return e.publish(fmt.Sprintf("%s/%s/capture/stats", e.cfg.TopicPrefix, e.cfg.Instance), stats)
}

// DeviceTopic returns the topic hot-plug events of a kind go to.
func (e *MQTTEmitter) DeviceTopic(kind string) string {
	return fmt.Sprintf("%s/%s/devices/%s", e.cfg.TopicPrefix, e.cfg.Instance, kind)
}

func (e *MQTTEmitter) publish(topic string, v any) error {
	if !e.isConnected() {
		e.countError()
		return ErrNotConnected
	}

	payload, err := msgpack.Marshal(v)
	if err != nil {
		e.countError()
		return fmt.Errorf("emitter: failed to marshal payload: %w", err)
	}

	token := e.pub.Publish(topic, e.cfg.QoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		e.countError()
		return fmt.Errorf("emitter: publish timeout")
	}
	if err := token.Error(); err != nil {
		e.countError()
		return fmt.Errorf("emitter: publish failed: %w", err)
	}

	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()

	slog.Debug("emitter: published",
		"topic", topic,
		"qos", e.cfg.QoS,
		"size", len(payload),
	)
	return nil
}

// Disconnect closes the MQTT connection.
func (e *MQTTEmitter) Disconnect() {
	if e.client != nil && e.client.IsConnected() {
		e.client.Disconnect(250) // 250ms grace period
		slog.Info("emitter: mqtt disconnected")
	}
	e.setConnected(false)
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// Stats returns a copy of the emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}

	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) isConnected() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.connected
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
