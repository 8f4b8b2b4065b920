package displayagent

import (
	"context"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"

	"cloupeer.io/displayagent/internal/pkg/metrics"
	"cloupeer.io/displayagent/pkg/log"
	"cloupeer.io/displayagent/pkg/mqtt"
)

// Availability messages are retained so that late subscribers see the last known state.
const (
	AvailabilityQoS      = 1
	AvailabilityRetained = true
)

// connectionQuery is the read-only view of the supervisor used by the heartbeat.
type connectionQuery interface {
	Connected() bool
}

// Heartbeat republishes the online payload on a fixed interval while connected.
type Heartbeat struct {
	session  mqtt.Client
	conn     connectionQuery
	topic    string
	payload  []byte
	interval time.Duration
	clock    clock.Clock

	running atomic.Bool
	logger  log.Logger
}

// NewHeartbeat creates a heartbeat publishing payload to topic every interval.
func NewHeartbeat(session mqtt.Client, conn connectionQuery, topic, payload string, interval time.Duration, clk clock.Clock) *Heartbeat {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Heartbeat{
		session:  session,
		conn:     conn,
		topic:    topic,
		payload:  []byte(payload),
		interval: interval,
		clock:    clk,
		logger:   log.WithName("heartbeat"),
	}
}

// Run publishes, then sleeps, until ctx is cancelled or the connection breaks.
// It returns nil on shutdown, ErrConnectionLost or a *PublishError when the
// connection is broken, and ErrHeartbeatRunning if another Run is active.
func (h *Heartbeat) Run(ctx context.Context) error {
	if !h.running.CompareAndSwap(false, true) {
		return ErrHeartbeatRunning
	}
	defer h.running.Store(false)

	h.logger.Info("Heartbeat started", "topic", h.topic, "interval", h.interval)
	defer h.logger.Info("Heartbeat stopped", "topic", h.topic)

	for {
		if ctx.Err() != nil {
			return nil
		}
		if !h.conn.Connected() {
			return ErrConnectionLost
		}

		if err := h.session.Publish(ctx, h.topic, AvailabilityQoS, AvailabilityRetained, h.payload); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.HeartbeatsTotal.WithLabelValues("failed").Inc()
			return &PublishError{Topic: h.topic, Err: err}
		}
		metrics.HeartbeatsTotal.WithLabelValues("success").Inc()
		h.logger.Debug("Published availability", "topic", h.topic, "payload", string(h.payload))

		t := h.clock.NewTimer(h.interval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C():
		}
	}
}

// Running reports whether a Run is active.
func (h *Heartbeat) Running() bool {
	return h.running.Load()
}
