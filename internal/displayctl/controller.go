package displayctl

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"cloupeer.io/displayagent/internal/displayagent/core"
	"cloupeer.io/displayagent/pkg/log"
	mqtttopic "cloupeer.io/displayagent/pkg/mqtt/topic"
	"cloupeer.io/displayagent/pkg/options"
)

const (
	commandQoS  = 1
	presenceQoS = 1
)

// session is the part of autopaho.ConnectionManager the controller uses.
type session interface {
	AwaitConnection(ctx context.Context) error
	Publish(ctx context.Context, p *paho.Publish) (*paho.PublishResponse, error)
	Subscribe(ctx context.Context, s *paho.Subscribe) (*paho.Suback, error)
	Disconnect(ctx context.Context) error
}

// Controller sends display commands to agents and follows their availability.
type Controller struct {
	session session
	topics  *mqtttopic.Builder
	roster  *Roster

	watching atomic.Bool
	mu       sync.Mutex
	onChange func(Presence)

	logger log.Logger
}

// NewController connects to the broker described by opts. The connection is
// kept up in the background until Close.
func NewController(ctx context.Context, opts *options.MqttOptions) (*Controller, error) {
	serverURL, err := url.Parse(opts.Broker)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker URL: %w", err)
	}

	c := newController(nil, opts.TopicRoot)

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{serverURL},
		TlsCfg:                        &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		KeepAlive:                     uint16(opts.KeepAlive.Seconds()),
		ConnectTimeout:                opts.ConnectTimeout,
		CleanStartOnInitialConnection: true,
		ConnectUsername:               opts.Username,
		ConnectPassword:               []byte(opts.Password),
		ReconnectBackoff:              autopaho.NewConstantBackoff(opts.ConnectBackoff),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError: func(err error) {
			c.logger.Warn("Error whilst attempting connection", "error", err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: opts.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				c.onPublishReceived,
			},
			OnClientError: func(err error) { c.logger.Error(err, "MQTT client error") },
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	c.session = cm

	return c, nil
}

func newController(s session, topicRoot string) *Controller {
	return &Controller{
		session: s,
		topics:  mqtttopic.NewBuilder(topicRoot),
		roster:  NewRoster(nil),
		logger:  log.WithName("displayctl"),
	}
}

// Roster returns the availability seen so far.
func (c *Controller) Roster() *Roster {
	return c.roster
}

// Switch sends cmd to the agent of host.
func (c *Controller) Switch(ctx context.Context, host string, cmd core.Command) error {
	var payload string
	switch cmd {
	case core.CommandExternal:
		payload = core.PayloadExternal
	case core.CommandInternal:
		payload = core.PayloadInternal
	default:
		return fmt.Errorf("unsupported command %q", cmd)
	}
	if host == "" || strings.ContainsAny(host, "/+#") {
		return fmt.Errorf("invalid host %q", host)
	}

	if err := c.session.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("broker not reachable: %w", err)
	}

	topic := c.topics.Command(host)
	if _, err := c.session.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     commandQoS,
		Payload: []byte(payload),
	}); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", payload, topic, err)
	}

	c.logger.Info("Sent display command", "host", host, "command", payload, "topic", topic)
	return nil
}

// Watch follows the availability of every agent until ctx is done. fn, if
// set, is called on each change.
func (c *Controller) Watch(ctx context.Context, fn func(Presence)) error {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()

	if err := c.session.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("broker not reachable: %w", err)
	}
	// Later reconnects resubscribe in onConnectionUp.
	c.watching.Store(true)
	if err := c.subscribePresence(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// Close disconnects from the broker.
func (c *Controller) Close(ctx context.Context) error {
	return c.session.Disconnect(ctx)
}

func (c *Controller) subscribePresence(ctx context.Context) error {
	filter := c.topics.AvailableWildcard()
	if _, err := c.session.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: presenceQoS}},
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", filter, err)
	}
	c.logger.Debug("Subscribed to availability", "filter", filter)
	return nil
}

func (c *Controller) onConnectionUp(_ *autopaho.ConnectionManager, _ *paho.Connack) {
	c.logger.Info("MQTT connection up")
	if !c.watching.Load() {
		return
	}
	if err := c.subscribePresence(context.Background()); err != nil {
		c.logger.Error(err, "Failed to resubscribe after reconnect")
	}
}

func (c *Controller) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	c.handlePresence(pr.Packet.Topic, pr.Packet.Payload)
	return true, nil
}

func (c *Controller) handlePresence(topic string, payload []byte) {
	host, ok := c.topics.HostFromAvailable(topic)
	if !ok {
		return
	}

	p, changed := c.roster.Update(host, string(payload))
	if !changed {
		return
	}

	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(p)
	}
}
