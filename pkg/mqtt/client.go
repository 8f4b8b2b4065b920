package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/paho"

	"cloupeer.io/displayagent/pkg/log"
)

// ErrNotConnected is returned by operations that need a live connection.
var ErrNotConnected = errors.New("mqtt client not connected")

type dialFunc func(ctx context.Context, u *url.URL) (net.Conn, error)

type pahoClient struct {
	cfg    *ClientConfig
	broker *url.URL
	dial   dialFunc
	logger log.Logger

	// mu serialises Connect and Disconnect. Publish and Subscribe only read cli.
	mu   sync.Mutex
	cli  *paho.Client
	conn net.Conn

	// generation identifies the current connection so that callbacks fired by
	// an older paho client cannot change the state of a newer one.
	generation atomic.Uint64
	connected  atomic.Bool

	// subscriptions holds the registered handlers.
	// Key: topic filter (string), Value: *subscription
	subscriptions sync.Map
}

// subscriptionQueueSize bounds the messages buffered for a single handler
// before the paho reader waits on it.
const subscriptionQueueSize = 64

type inbound struct {
	topic   string
	payload []byte
}

// subscription delivers matching messages to its handler one at a time,
// in the order the broker sent them.
type subscription struct {
	topic   string
	qos     int
	handler MessageHandler

	queue chan inbound
	done  chan struct{}
	once  sync.Once
}

func newSubscription(topic string, qos int, handler MessageHandler) *subscription {
	s := &subscription{
		topic:   topic,
		qos:     qos,
		handler: handler,
		queue:   make(chan inbound, subscriptionQueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *subscription) run() {
	for {
		select {
		case <-s.done:
			return
		case m := <-s.queue:
			s.handler(context.Background(), m.topic, m.payload)
		}
	}
}

// deliver queues a message for the handler. It reports false once the
// subscription has been stopped.
func (s *subscription) deliver(m inbound) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- m:
		return true
	case <-s.done:
		return false
	}
}

func (s *subscription) stop() {
	s.once.Do(func() { close(s.done) })
}

var _ Client = (*pahoClient)(nil)

// NewClient creates a new MQTT client implementing the Client interface.
// No connection is made until Connect is called.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mqtt config is required")
	}

	setDefaultConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	broker, _ := url.Parse(cfg.BrokerURL) // Already validated

	c := &pahoClient{
		cfg:    cfg,
		broker: broker,
		logger: log.WithName("mqtt").WithValues("broker", cfg.BrokerURL, "clientID", cfg.ClientID),
	}
	c.dial = c.dialBroker
	return c, nil
}

func (c *pahoClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}
	c.closeLocked()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, err := c.dial(ctx, c.broker)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.BrokerURL, err)
	}

	gen := c.generation.Add(1)
	cli := paho.NewClient(paho.ClientConfig{
		ClientID: c.cfg.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			c.router,
		},
		OnClientError:      func(err error) { c.onClientError(gen, err) },
		OnServerDisconnect: func(d *paho.Disconnect) { c.onServerDisconnect(gen, d) },
	})
	if c.cfg.Debug {
		cli.SetDebugLogger(pahoLogger{l: c.logger.WithName("paho")})
		cli.SetErrorLogger(pahoLogger{l: c.logger.WithName("paho"), warn: true})
	}

	if _, err := cli.Connect(ctx, c.connectPacket()); err != nil {
		_ = conn.Close()
		return fmt.Errorf("mqtt handshake: %w", err)
	}

	c.cli = cli
	c.conn = conn
	c.connected.Store(true)
	c.logger.Info("MQTT Connection established")
	return nil
}

func (c *pahoClient) connectPacket() *paho.Connect {
	cp := &paho.Connect{
		KeepAlive:    c.cfg.KeepAlive,
		ClientID:     c.cfg.ClientID,
		CleanStart:   c.cfg.CleanStart,
		Username:     c.cfg.Username,
		UsernameFlag: c.cfg.Username != "",
		Password:     []byte(c.cfg.Password),
		PasswordFlag: c.cfg.Password != "",
	}
	if c.cfg.WillTopic != "" {
		cp.WillMessage = &paho.WillMessage{
			Topic:   c.cfg.WillTopic,
			Payload: c.cfg.WillPayload,
			QoS:     c.cfg.WillQoS,
			Retain:  c.cfg.WillRetain,
		}
	}
	return cp
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cli := c.cli
	if cli == nil {
		return
	}

	if c.connected.Swap(false) {
		done := make(chan error, 1)
		go func() { done <- cli.Disconnect(&paho.Disconnect{ReasonCode: 0}) }()
		select {
		case err := <-done:
			if err != nil {
				c.logger.Debug("MQTT disconnect packet not delivered", "error", err)
			}
		case <-ctx.Done():
			c.logger.Warn("MQTT disconnect timed out, closing connection")
		}
	}

	c.closeLocked()
	c.logger.Info("MQTT Client disconnected")
}

// closeLocked drops the current connection and every subscription bound to it.
func (c *pahoClient) closeLocked() {
	c.connected.Store(false)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.cli = nil
	c.conn = nil
	c.generation.Add(1)
	c.subscriptions.Range(func(key, value any) bool {
		value.(*subscription).stop()
		c.subscriptions.Delete(key)
		return true
	})
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	cli := c.current()
	if cli == nil {
		return ErrNotConnected
	}

	_, err := cli.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	cli := c.current()
	if cli == nil {
		return ErrNotConnected
	}

	sub := newSubscription(topic, qos, handler)
	if prev, loaded := c.subscriptions.Swap(topic, sub); loaded {
		prev.(*subscription).stop()
	}

	suback, err := cli.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{
			{Topic: topic, QoS: byte(qos)},
		},
	})
	if err == nil && suback != nil {
		for _, reason := range suback.Reasons {
			if reason >= 0x80 {
				err = fmt.Errorf("subscription rejected with reason code 0x%02x", reason)
				break
			}
		}
	}
	if err != nil {
		sub.stop()
		c.subscriptions.CompareAndDelete(topic, sub)
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	c.logger.Info("Subscribed to topic", "topic", topic)
	return nil
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

func (c *pahoClient) current() *paho.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected.Load() {
		return nil
	}
	return c.cli
}

func (c *pahoClient) dialBroker(ctx context.Context, u *url.URL) (net.Conn, error) {
	addr := brokerAddress(u)
	if isTLS(u) {
		d := &tls.Dialer{Config: &tls.Config{
			ServerName:         u.Hostname(),
			InsecureSkipVerify: c.cfg.InsecureSkipVerify,
			MinVersion:         tls.VersionTLS12,
		}}
		return d.DialContext(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

// --- Internal Callbacks ---

func (c *pahoClient) onClientError(gen uint64, err error) {
	if c.generation.Load() != gen {
		return
	}
	c.connected.Store(false)
	c.logger.Error(err, "MQTT Client internal error, connection lost")
}

func (c *pahoClient) onServerDisconnect(gen uint64, d *paho.Disconnect) {
	if c.generation.Load() != gen {
		return
	}
	c.connected.Store(false)
	reason := ""
	if d.Properties != nil {
		reason = d.Properties.ReasonString
	}
	c.logger.Warn("MQTT Server requested disconnect", "reasonCode", d.ReasonCode, "reason", reason)
}

// router hands incoming messages to the subscriptions whose filter matches.
// Handlers run on the subscription's own goroutine, so the paho reader only
// waits when a handler falls a full queue behind.
func (c *pahoClient) router(p paho.PublishReceived) (bool, error) {
	matched := false
	c.subscriptions.Range(func(_, value any) bool {
		sub := value.(*subscription)
		if topicsMatch(topicFilter(sub.topic), p.Packet.Topic) {
			if sub.deliver(inbound{topic: p.Packet.Topic, payload: p.Packet.Payload}) {
				matched = true
			}
		}
		return true
	})

	if !matched {
		c.logger.Debug("Received message on unhandled topic", "topic", p.Packet.Topic)
	}

	return true, nil
}

// topicsMatch checks if a topic matches a filter (supports wildcards + and #).
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	filterParts := strings.Split(filter, "/")
	topicParts := strings.Split(topic, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}

	return len(filterParts) == len(topicParts)
}

// topicFilter strips a "$share/<group>/" prefix from a shared subscription.
func topicFilter(filter string) string {
	if strings.HasPrefix(filter, "$share/") {
		parts := strings.SplitN(filter, "/", 3)
		if len(parts) == 3 {
			return parts[2]
		}
	}
	return filter
}
