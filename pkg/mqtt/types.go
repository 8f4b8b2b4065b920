package mqtt

import (
	"context"
)

// MessageHandler defines the callback function for processing received MQTT messages.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Client is the broker session used by the display agent.
//
// Unlike an auto-reconnecting connection manager, a Client never reconnects
// on its own: the caller decides when to Connect again after a failure.
// Subscriptions belong to a single connection and are forgotten on Disconnect.
type Client interface {
	// Connect dials the broker and performs the MQTT handshake.
	// It is a no-op if the client is already connected.
	Connect(ctx context.Context) error

	// Disconnect cleanly closes the connection. Safe to call when not connected.
	Disconnect(ctx context.Context)

	// Publish sends a message to the specified topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error

	// Subscribe registers a handler for a topic filter and sends the SUBSCRIBE packet.
	// Handlers run on their own goroutine, never on the network reader.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool
}
