package displayagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	"cloupeer.io/displayagent/internal/displayagent/core"
	fsmutil "cloupeer.io/displayagent/internal/pkg/util/fsm"
	"cloupeer.io/displayagent/internal/pkg/metrics"
	"cloupeer.io/displayagent/pkg/log"
	"cloupeer.io/displayagent/pkg/mqtt"
)

// Agent lifecycle states.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateStopping = "stopping"
	StateStopped  = "stopped"
)

const (
	eventStart  = "start"
	eventStop   = "stop"
	eventFinish = "finish"
	eventAbort  = "abort"
)

var agentStates = []string{StateIdle, StateRunning, StateStopping, StateStopped}

const (
	// DefaultShutdownTimeout bounds how long Run waits for the agent to stop after a shutdown signal.
	DefaultShutdownTimeout = 5 * time.Second

	// finalPublishTimeout bounds the offline announcement and the disconnect on stop.
	finalPublishTimeout = 3 * time.Second
)

// Settings are the resolved runtime parameters of an Agent.
type Settings struct {
	Hostname       string
	AvailableTopic string
	PayloadOnline  string
	PayloadOffline string
	CommandTopic   string

	// Interval is the pause between two heartbeats.
	Interval time.Duration

	MaxAttempts int
	Backoff     time.Duration

	ShutdownTimeout time.Duration

	// Clock drives the backoff and heartbeat sleeps. Defaults to the real clock.
	Clock clock.Clock
}

// Agent connects to the broker, announces presence while connected and
// executes display commands until it is shut down or the broker is unreachable.
type Agent struct {
	settings Settings

	session    mqtt.Client
	supervisor *Supervisor
	heartbeat  *Heartbeat
	dispatcher *Dispatcher

	lifecycle *fsm.FSM

	mu     sync.Mutex
	cancel context.CancelFunc
	// stopRequested is set by the first Shutdown and never cleared.
	stopRequested bool
	done          chan struct{}
	err           error

	logger log.Logger
}

// NewAgent wires an Agent around session and executor.
func NewAgent(settings Settings, session mqtt.Client, executor core.Executor) *Agent {
	if settings.ShutdownTimeout <= 0 {
		settings.ShutdownTimeout = DefaultShutdownTimeout
	}
	if settings.Clock == nil {
		settings.Clock = clock.RealClock{}
	}

	a := &Agent{
		settings:   settings,
		session:    session,
		dispatcher: NewDispatcher(executor),
		done:       make(chan struct{}),
		logger:     log.WithName("agent").WithValues("hostname", settings.Hostname),
	}

	a.supervisor = NewSupervisor(session, SupervisorConfig{
		CommandTopic: settings.CommandTopic,
		Handler:      a.dispatcher.Handle,
		MaxAttempts:  settings.MaxAttempts,
		Backoff:      settings.Backoff,
		Clock:        settings.Clock,
	})
	a.heartbeat = NewHeartbeat(session, a.supervisor, settings.AvailableTopic, settings.PayloadOnline, settings.Interval, settings.Clock)

	a.lifecycle = fsm.NewFSM(StateIdle,
		fsm.Events{
			{Name: eventStart, Src: []string{StateIdle}, Dst: StateRunning},
			{Name: eventStop, Src: []string{StateRunning}, Dst: StateStopping},
			{Name: eventFinish, Src: []string{StateStopping}, Dst: StateStopped},
			{Name: eventAbort, Src: []string{StateIdle}, Dst: StateStopped},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.SetState(metrics.AgentState, agentStates, e.Dst)
				a.logger.Debug("Agent state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
	metrics.SetState(metrics.AgentState, agentStates, StateIdle)

	return a
}

// State returns the lifecycle state.
func (a *Agent) State() string {
	return a.lifecycle.Current()
}

// Ready reports whether the agent holds a live broker connection.
func (a *Agent) Ready() bool {
	return a.supervisor.Connected()
}

// Start launches the agent in the background. Cancelling ctx has the same effect as Shutdown.
// An agent that was shut down before Start never runs and Start returns ErrShutdown.
func (a *Agent) Start(ctx context.Context) error {
	if err := a.lifecycle.Event(context.Background(), eventStart); err != nil {
		if a.State() == StateStopped && a.shutdownRequested() {
			return fmt.Errorf("start agent: %w", ErrShutdown)
		}
		return fmt.Errorf("start agent: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	if a.stopRequested {
		cancel()
	}
	a.mu.Unlock()

	a.logger.Info("Starting display agent",
		"availableTopic", a.settings.AvailableTopic,
		"commandTopic", a.settings.CommandTopic,
		"interval", a.settings.Interval)

	go func() {
		defer close(a.done)
		a.err = a.work(ctx)
	}()

	return nil
}

// Shutdown asks the agent to stop. It is safe to call more than once and from any goroutine.
// Before Start it moves the agent straight to stopped.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	a.stopRequested = true
	cancel := a.cancel
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		return
	}

	// Either this abort or the start event wins; a concurrent Start sees
	// stopRequested once it publishes its cancel func.
	if err := a.lifecycle.Event(context.Background(), eventAbort); err != nil {
		return
	}
	close(a.done)
	a.logger.Info("Display agent stopped before start")
}

func (a *Agent) shutdownRequested() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopRequested
}

// Done is closed once the agent has stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// Wait blocks until the agent has stopped or timeout elapsed. It returns the
// terminal error, which is non-nil only when the broker was unreachable.
func (a *Agent) Wait(timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case <-a.done:
		return a.err
	case <-t.C:
		return ErrShutdownTimeout
	}
}

// Run starts the agent and blocks until ctx is cancelled or the agent stops on
// its own. After cancellation it waits at most the shutdown timeout.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		if errors.Is(err, ErrShutdown) {
			return nil
		}
		return err
	}

	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received, stopping agent", "timeout", a.settings.ShutdownTimeout)
		a.Shutdown()
		if err := a.Wait(a.settings.ShutdownTimeout); err != nil {
			a.logger.Error(err, "Agent stop did not complete cleanly")
			return err
		}
		return nil
	case <-a.done:
		return a.err
	}
}

// work alternates between connecting and heartbeating until shutdown or exhaustion.
func (a *Agent) work(ctx context.Context) error {
	defer a.stop()

	for {
		if err := a.supervisor.EnsureConnected(ctx); err != nil {
			if errors.Is(err, ErrShutdown) {
				return nil
			}
			a.logger.Error(err, "Broker unreachable, stopping agent")
			return err
		}

		err := a.heartbeat.Run(ctx)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, ErrHeartbeatRunning):
			return err
		}

		a.logger.Warn("Broker connection broken, reconnecting", "error", err)
		a.supervisor.MarkBroken(ctx)
	}
}

// stop announces offline when still connected and disconnects exactly once.
func (a *Agent) stop() {
	if err := fsmutil.IgnoreNoTransition(a.lifecycle.Event(context.Background(), eventStop)); err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), finalPublishTimeout)
	defer cancel()

	if a.supervisor.Connected() {
		err := a.session.Publish(ctx, a.settings.AvailableTopic, AvailabilityQoS, AvailabilityRetained, []byte(a.settings.PayloadOffline))
		if err != nil {
			a.logger.Warn("Failed to announce offline", "topic", a.settings.AvailableTopic, "error", err)
		} else {
			a.logger.Info("Announced offline", "topic", a.settings.AvailableTopic)
		}
	}

	a.supervisor.Close(ctx)

	if err := fsmutil.IgnoreNoTransition(a.lifecycle.Event(context.Background(), eventFinish)); err != nil {
		a.logger.Warn("Unexpected lifecycle transition", "event", eventFinish, "state", a.State(), "error", err)
	}
	a.logger.Info("Display agent stopped")
}
