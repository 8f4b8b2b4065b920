package displayagent

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	fsmutil "cloupeer.io/displayagent/internal/pkg/util/fsm"
	"cloupeer.io/displayagent/internal/pkg/metrics"
	"cloupeer.io/displayagent/pkg/log"
	"cloupeer.io/displayagent/pkg/mqtt"
)

// Connection states owned by the Supervisor.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateShuttingDown = "shutting-down"
)

const (
	eventDial        = "dial"
	eventEstablished = "established"
	eventFail        = "fail"
	eventLose        = "lose"
	eventShutdown    = "shutdown"
)

var connectionStates = []string{StateDisconnected, StateConnecting, StateConnected, StateShuttingDown}

// CommandQoS is the subscription QoS of the command topic.
const CommandQoS = 1

// disconnectTimeout bounds the cleanup of a failed attempt.
const disconnectTimeout = 2 * time.Second

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// CommandTopic is subscribed with Handler on every successful connect.
	CommandTopic string
	Handler      mqtt.MessageHandler

	// MaxAttempts is the number of connect+subscribe attempts per EnsureConnected call.
	MaxAttempts int
	// Backoff is the fixed delay between two failed attempts.
	Backoff time.Duration

	Clock clock.Clock
}

// Supervisor owns the broker connection: it connects with a bounded retry
// budget and is the only writer of the connection state.
type Supervisor struct {
	session mqtt.Client
	cfg     SupervisorConfig
	state   *fsm.FSM
	logger  log.Logger
}

// NewSupervisor creates a Supervisor in the disconnected state.
func NewSupervisor(session mqtt.Client, cfg SupervisorConfig) *Supervisor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}

	s := &Supervisor{
		session: session,
		cfg:     cfg,
		logger:  log.WithName("supervisor"),
	}

	active := []string{StateDisconnected, StateConnecting, StateConnected}
	s.state = fsm.NewFSM(StateDisconnected,
		fsm.Events{
			{Name: eventDial, Src: []string{StateDisconnected}, Dst: StateConnecting},
			{Name: eventEstablished, Src: []string{StateConnecting}, Dst: StateConnected},
			{Name: eventFail, Src: []string{StateConnecting}, Dst: StateDisconnected},
			{Name: eventLose, Src: []string{StateConnected}, Dst: StateDisconnected},
			{Name: eventShutdown, Src: active, Dst: StateShuttingDown},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				metrics.SetState(metrics.ConnectionState, connectionStates, e.Dst)
				s.logger.Debug("Connection state changed", "from", e.Src, "to", e.Dst)
			},
		},
	)
	metrics.SetState(metrics.ConnectionState, connectionStates, StateDisconnected)

	return s
}

// State returns the current connection state.
func (s *Supervisor) State() string {
	return s.state.Current()
}

// Connected reports whether the supervisor is connected and the session agrees.
func (s *Supervisor) Connected() bool {
	return s.state.Is(StateConnected) && s.session.IsConnected()
}

// EnsureConnected connects and subscribes the command handler, retrying up to
// MaxAttempts times with a fixed backoff. It returns nil when connected,
// ErrShutdown when ctx is cancelled, and a *FatalError when every attempt failed.
// It can be called again after the connection broke; each call starts a fresh budget.
func (s *Supervisor) EnsureConnected(ctx context.Context) error {
	if s.state.Is(StateShuttingDown) {
		return ErrShutdown
	}
	if s.state.Is(StateConnected) {
		if s.session.IsConnected() {
			return nil
		}
		s.transition(eventLose)
	}

	budget := backoff.WithMaxRetries(backoff.NewConstantBackOff(s.cfg.Backoff), uint64(s.cfg.MaxAttempts-1))
	budget.Reset()

	if err := s.transition(eventDial); err != nil {
		return err
	}

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			s.transition(eventFail)
			return ErrShutdown
		}

		err := s.attempt(ctx)
		if err == nil {
			metrics.ConnectAttemptsTotal.WithLabelValues("success").Inc()
			s.transition(eventEstablished)
			s.logger.Info("Connected to broker", "attempt", attempt, "commandTopic", s.cfg.CommandTopic)
			return nil
		}
		metrics.ConnectAttemptsTotal.WithLabelValues("failed").Inc()

		if ctx.Err() != nil {
			s.transition(eventFail)
			return ErrShutdown
		}

		delay := budget.NextBackOff()
		if delay == backoff.Stop {
			s.transition(eventFail)
			s.logger.Error(err, "Connect attempt failed, giving up", "attempt", attempt, "maxAttempts", s.cfg.MaxAttempts)
			return &FatalError{Attempts: attempt, Err: err}
		}

		s.logger.Warn("Connect attempt failed, retrying", "attempt", attempt, "maxAttempts", s.cfg.MaxAttempts, "backoff", delay, "error", err)
		if !s.sleep(ctx, delay) {
			s.transition(eventFail)
			s.logger.Info("Connect retries cancelled by shutdown", "attempt", attempt)
			return ErrShutdown
		}
	}
}

// attempt runs one connect+subscribe. A failed attempt leaves the session disconnected.
func (s *Supervisor) attempt(ctx context.Context) error {
	err := s.session.Connect(ctx)
	if err == nil {
		err = s.session.Subscribe(ctx, s.cfg.CommandTopic, CommandQoS, s.cfg.Handler)
	}
	if err != nil {
		s.disconnect(ctx)
	}
	return err
}

// MarkBroken records that the connection stopped working and releases it so
// that the next EnsureConnected starts from a clean session.
func (s *Supervisor) MarkBroken(ctx context.Context) {
	if err := s.transition(eventLose); err != nil {
		return
	}
	s.disconnect(ctx)
}

// Close moves to shutting-down and disconnects the session. Later calls do nothing.
func (s *Supervisor) Close(ctx context.Context) {
	if err := s.transition(eventShutdown); err != nil {
		return
	}
	s.session.Disconnect(ctx)
}

func (s *Supervisor) disconnect(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), disconnectTimeout)
	defer cancel()
	s.session.Disconnect(ctx)
}

// sleep waits for d and reports false if ctx was cancelled first.
func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	t := s.cfg.Clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}

// transition fires a state event. State bookkeeping is independent of the
// caller's cancellation, hence the background context.
func (s *Supervisor) transition(event string) error {
	return fsmutil.IgnoreNoTransition(s.state.Event(context.Background(), event))
}
