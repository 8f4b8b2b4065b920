package displayagent

import (
	"context"
	"sync"

	"cloupeer.io/displayagent/internal/displayagent/core"
	"cloupeer.io/displayagent/internal/pkg/metrics"
	"cloupeer.io/displayagent/pkg/log"
)

// Dispatcher maps command payloads onto the display executor.
type Dispatcher struct {
	executor core.Executor

	// mu serialises executor calls; two switches never run concurrently.
	mu     sync.Mutex
	logger log.Logger
}

// NewDispatcher creates a Dispatcher driving executor.
func NewDispatcher(executor core.Executor) *Dispatcher {
	return &Dispatcher{
		executor: executor,
		logger:   log.WithName("dispatcher"),
	}
}

// Handle is the mqtt.MessageHandler of the command topic. Unrecognized payloads are ignored.
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) {
	cmd := core.ParseCommand(payload)
	metrics.CommandsTotal.WithLabelValues(cmd.String()).Inc()

	switch cmd {
	case core.CommandExternal:
		d.logger.Info("Switching to external display", "topic", topic)
		d.mu.Lock()
		defer d.mu.Unlock()
		d.executor.SwitchToExternal(ctx)
	case core.CommandInternal:
		d.logger.Info("Switching to internal display", "topic", topic)
		d.mu.Lock()
		defer d.mu.Unlock()
		d.executor.SwitchToInternal(ctx)
	default:
		d.logger.Debug("Ignoring unrecognized command", "topic", topic, "payload", string(payload))
	}
}
