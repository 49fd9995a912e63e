// Package mqttbus wraps the paho MQTT client as the messaging session used
// by the controller and the sync service. Reconnection is not automatic:
// callers decide when to reconnect.
package mqttbus

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// ErrTimeout is returned when the broker does not acknowledge in time.
var ErrTimeout = errors.New("mqtt: timed out waiting for broker")

// Handler receives inbound messages. Handlers run one at a time in arrival
// order on the client's dispatch goroutine, never on paho's, so they may
// block briefly and may publish.
type Handler func(topic string, payload []byte)

// DefaultInbox is the number of inbound messages buffered ahead of the
// handler.
const DefaultInbox = 256

// Options configures a Client.
type Options struct {
	BrokerURL      string
	ClientID       string // empty: prefix + random suffix
	ClientPrefix   string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
	// StatusTopic, when set, gets a retained "online" after every connect
	// and is the last will ("offline").
	StatusTopic string
	// Inbox bounds the messages waiting for the handler. Messages arriving
	// while it is full are dropped. Zero means DefaultInbox.
	Inbox int
}

type message struct {
	topic   string
	payload []byte
}

// Client is a paho-backed session.
type Client struct {
	opts Options
	log  *slog.Logger
	c    mqtt.Client

	mu      sync.RWMutex
	handler Handler

	inbox    chan message
	done     chan struct{}
	stopOnce sync.Once
}

// ClientID returns opts.ClientID or prefix-<uuid>.
func ClientID(prefix, id string) string {
	if id != "" {
		return id
	}
	if prefix == "" {
		prefix = "greenhouse"
	}
	return prefix + "-" + uuid.NewString()[:8]
}

// New builds the client; it does not connect.
func New(o Options, log *slog.Logger) *Client {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Second
	}
	if o.Inbox <= 0 {
		o.Inbox = DefaultInbox
	}
	o.ClientID = ClientID(o.ClientPrefix, o.ClientID)
	b := &Client{
		opts:  o,
		log:   log.With("component", "mqtt", "clientId", o.ClientID),
		inbox: make(chan message, o.Inbox),
		done:  make(chan struct{}),
	}

	opts := mqtt.NewClientOptions().
		AddBroker(o.BrokerURL).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetCleanSession(true).
		SetKeepAlive(30 * time.Second).
		SetConnectTimeout(o.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetDefaultPublishHandler(b.deliver).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			b.log.Warn("broker connection lost", "err", err)
		})
	if o.StatusTopic != "" {
		opts.SetWill(o.StatusTopic, "offline", 1, true)
	}
	b.c = mqtt.NewClient(opts)
	go b.dispatch()
	return b
}

// SetHandler installs the inbound message handler.
func (b *Client) SetHandler(h Handler) {
	b.mu.Lock()
	b.handler = h
	b.mu.Unlock()
}

// Connected reports whether the session is open.
func (b *Client) Connected() bool {
	return b.c.IsConnectionOpen()
}

// Connect opens the session and announces the client online.
func (b *Client) Connect() error {
	if b.c.IsConnected() {
		b.c.Disconnect(100)
	}
	tok := b.c.Connect()
	if err := b.wait(tok, b.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("connect %s: %w", b.opts.BrokerURL, err)
	}
	b.log.Info("connected to broker", "broker", b.opts.BrokerURL)
	if b.opts.StatusTopic != "" {
		tok := b.c.Publish(b.opts.StatusTopic, 1, true, "online")
		if err := b.wait(tok, b.opts.PublishTimeout); err != nil {
			b.log.Warn("online marker not published", "err", err)
		}
	}
	return nil
}

// Subscribe subscribes filter with QoS 1 and routes messages to the handler.
func (b *Client) Subscribe(filter string) error {
	tok := b.c.Subscribe(filter, 1, b.deliver)
	if err := b.wait(tok, b.opts.ConnectTimeout); err != nil {
		return fmt.Errorf("subscribe %s: %w", filter, err)
	}
	return nil
}

// Publish sends payload at QoS 0, waiting at most PublishTimeout.
func (b *Client) Publish(topic, payload string) error {
	return b.publish(topic, 0, false, []byte(payload))
}

// PublishJSON sends an already encoded document at QoS 1.
func (b *Client) PublishJSON(topic string, doc []byte) error {
	return b.publish(topic, 1, false, doc)
}

func (b *Client) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !b.c.IsConnectionOpen() {
		return fmt.Errorf("publish %s: not connected", topic)
	}
	tok := b.c.Publish(topic, qos, retained, payload)
	if err := b.wait(tok, b.opts.PublishTimeout); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close marks the client offline, disconnects and stops dispatching.
func (b *Client) Close() {
	defer b.stopOnce.Do(func() { close(b.done) })
	if !b.c.IsConnectionOpen() {
		return
	}
	if b.opts.StatusTopic != "" {
		tok := b.c.Publish(b.opts.StatusTopic, 1, true, "offline")
		_ = b.wait(tok, b.opts.PublishTimeout)
	}
	b.c.Disconnect(250)
	b.log.Info("disconnected from broker")
}

// deliver runs on paho's goroutine. It only queues: a handler waiting on
// a token there would hold up the acks that token is waiting for.
func (b *Client) deliver(_ mqtt.Client, msg mqtt.Message) {
	b.enqueue(msg.Topic(), msg.Payload())
}

func (b *Client) enqueue(topic string, payload []byte) bool {
	select {
	case b.inbox <- message{topic: topic, payload: payload}:
		return true
	default:
		b.log.Warn("inbox full, message dropped", "topic", topic)
		return false
	}
}

func (b *Client) dispatch() {
	for {
		select {
		case <-b.done:
			return
		case m := <-b.inbox:
			b.deliverRaw(m.topic, m.payload)
		}
	}
}

func (b *Client) deliverRaw(topic string, payload []byte) {
	b.mu.RLock()
	h := b.handler
	b.mu.RUnlock()
	if h == nil {
		b.log.Debug("message without handler", "topic", topic)
		return
	}
	h(topic, payload)
}

func (b *Client) wait(tok mqtt.Token, d time.Duration) error {
	if !tok.WaitTimeout(d) {
		return ErrTimeout
	}
	return tok.Error()
}
