package messaging

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"unloadtrack/config"
)

var ErrNotConnected = errors.New("messaging not connected")

// Handler receives raw message bodies.
type Handler func(topic string, data []byte)

type backend interface {
	connect() error
	publish(topic string, data []byte) error
	subscribe(topic string, h Handler) error
	isConnected() bool
	close()
}

// Client is the plant bus connection. The backend is mqtt or kafka.
type Client struct {
	mu      sync.RWMutex
	cfg     config.MessagingConfig
	backend backend
	subs    map[string]Handler
}

func NewClient(cfg *config.MessagingConfig) *Client {
	c := &Client{cfg: *cfg, subs: make(map[string]Handler)}
	c.backend = c.newBackend(cfg)
	return c
}

func (c *Client) newBackend(cfg *config.MessagingConfig) backend {
	if cfg.Backend == "kafka" {
		return newKafkaBackend(cfg.Kafka)
	}
	return newMQTTBackend(cfg.MQTT, c.subscriptions)
}

// subscriptions returns a copy of the registered topic handlers.
func (c *Client) subscriptions() map[string]Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subs := make(map[string]Handler, len(c.subs))
	for t, h := range c.subs {
		subs[t] = h
	}
	return subs
}

func (c *Client) Connect() error {
	c.mu.RLock()
	b := c.backend
	c.mu.RUnlock()
	return b.connect()
}

func (c *Client) Publish(topic string, data []byte) error {
	c.mu.RLock()
	b := c.backend
	c.mu.RUnlock()
	if !b.isConnected() {
		return ErrNotConnected
	}
	return b.publish(topic, data)
}

// Subscribe registers h for topic. Subscriptions survive Reconfigure.
func (c *Client) Subscribe(topic string, h Handler) error {
	c.mu.Lock()
	c.subs[topic] = h
	b := c.backend
	c.mu.Unlock()
	return b.subscribe(topic, h)
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.backend.isConnected()
}

func (c *Client) Backend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Backend
}

// Reconfigure closes the current connection and connects with cfg,
// re-establishing existing subscriptions.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	c.mu.Lock()
	c.backend.close()
	c.cfg = *cfg
	c.backend = c.newBackend(cfg)
	b := c.backend
	c.mu.Unlock()
	subs := c.subscriptions()

	if err := b.connect(); err != nil {
		return err
	}
	for t, h := range subs {
		if err := b.subscribe(t, h); err != nil {
			return fmt.Errorf("resubscribe %s: %w", t, err)
		}
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend.close()
}

// --- mqtt ---

type mqttBackend struct {
	client mqtt.Client
	subs   func() map[string]Handler
}

func newMQTTBackend(cfg config.MQTTConfig, subs func() map[string]Handler) *mqttBackend {
	m := &mqttBackend{subs: subs}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.Broker, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetConnectTimeout(5 * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("messaging: mqtt connection lost: %v", err)
		}).
		SetOnConnectHandler(m.resubscribe)
	m.client = mqtt.NewClient(opts)
	return m
}

// resubscribe re-issues every registered subscription. The broker drops
// them with the clean session on each reconnect.
func (m *mqttBackend) resubscribe(client mqtt.Client) {
	if m.subs == nil {
		return
	}
	subs := m.subs()
	for topic, h := range subs {
		tok := client.Subscribe(topic, 1, mqttHandler(h))
		if !tok.WaitTimeout(10 * time.Second) {
			log.Printf("messaging: mqtt resubscribe %s: timeout", topic)
			continue
		}
		if err := tok.Error(); err != nil {
			log.Printf("messaging: mqtt resubscribe %s: %v", topic, err)
		}
	}
	if len(subs) > 0 {
		log.Printf("messaging: mqtt connected, %d subscriptions restored", len(subs))
	}
}

func mqttHandler(h Handler) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		h(msg.Topic(), msg.Payload())
	}
}

func (m *mqttBackend) connect() error {
	tok := m.client.Connect()
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt connect: timeout")
	}
	return tok.Error()
}

func (m *mqttBackend) publish(topic string, data []byte) error {
	tok := m.client.Publish(topic, 1, false, data)
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return tok.Error()
}

func (m *mqttBackend) subscribe(topic string, h Handler) error {
	tok := m.client.Subscribe(topic, 1, mqttHandler(h))
	if !tok.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("mqtt subscribe %s: timeout", topic)
	}
	return tok.Error()
}

func (m *mqttBackend) isConnected() bool { return m.client.IsConnectionOpen() }

func (m *mqttBackend) close() {
	if m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

// --- kafka ---

// kafkaTopic maps bus topics onto legal kafka topic names.
func kafkaTopic(topic string) string { return strings.ReplaceAll(topic, "/", ".") }

type kafkaBackend struct {
	cfg       config.KafkaConfig
	writer    *kafka.Writer
	mu        sync.Mutex
	readers   []*kafka.Reader
	connected bool
	cancel    context.CancelFunc
	ctx       context.Context
}

func newKafkaBackend(cfg config.KafkaConfig) *kafkaBackend {
	ctx, cancel := context.WithCancel(context.Background())
	return &kafkaBackend{cfg: cfg, ctx: ctx, cancel: cancel}
}

func (k *kafkaBackend) connect() error {
	if len(k.cfg.Brokers) == 0 {
		return fmt.Errorf("kafka: no brokers configured")
	}
	conn, err := kafka.DialContext(k.ctx, "tcp", k.cfg.Brokers[0])
	if err != nil {
		return fmt.Errorf("kafka dial: %w", err)
	}
	conn.Close()
	k.mu.Lock()
	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(k.cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}
	k.connected = true
	k.mu.Unlock()
	return nil
}

func (k *kafkaBackend) publish(topic string, data []byte) error {
	k.mu.Lock()
	w := k.writer
	k.mu.Unlock()
	if w == nil {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(k.ctx, 10*time.Second)
	defer cancel()
	return w.WriteMessages(ctx, kafka.Message{Topic: kafkaTopic(topic), Value: data})
}

func (k *kafkaBackend) subscribe(topic string, h Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: k.cfg.Brokers,
		GroupID: k.cfg.GroupID,
		Topic:   kafkaTopic(topic),
	})
	k.mu.Lock()
	k.readers = append(k.readers, r)
	k.mu.Unlock()
	go k.readLoop(topic, r, h)
	return nil
}

// reader is the part of kafka.Reader the read loop needs.
type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

const (
	readBackoffMin = 500 * time.Millisecond
	readBackoffMax = 30 * time.Second
)

// readLoop delivers messages until the backend is closed. Read errors are
// logged and retried with a growing backoff.
func (k *kafkaBackend) readLoop(topic string, r reader, h Handler) {
	backoff := readBackoffMin
	for k.ctx.Err() == nil {
		msg, err := r.ReadMessage(k.ctx)
		if err != nil {
			if k.ctx.Err() != nil {
				return
			}
			log.Printf("messaging: kafka read %s: %v (retry in %s)", topic, err, backoff)
			select {
			case <-k.ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, readBackoffMax)
			continue
		}
		backoff = readBackoffMin
		h(topic, msg.Value)
	}
}

func (k *kafkaBackend) isConnected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected
}

func (k *kafkaBackend) close() {
	k.cancel()
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, r := range k.readers {
		r.Close()
	}
	k.readers = nil
	if k.writer != nil {
		k.writer.Close()
		k.writer = nil
	}
	k.connected = false
}
