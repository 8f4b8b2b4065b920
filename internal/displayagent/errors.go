package displayagent

import (
	"errors"
	"fmt"
)

var (
	// ErrShutdown is returned when a shutdown interrupted the work in progress.
	// It is a normal outcome, not a failure.
	ErrShutdown = errors.New("shutdown requested")

	// ErrConnectionLost is returned by the heartbeat when the session is no longer connected.
	ErrConnectionLost = errors.New("broker connection lost")

	// ErrHeartbeatRunning is returned when a second heartbeat loop is started.
	ErrHeartbeatRunning = errors.New("heartbeat loop already running")

	// ErrShutdownTimeout is returned when the agent did not stop within its shutdown bound.
	ErrShutdownTimeout = errors.New("agent did not stop in time")
)

// FatalError reports that every connection attempt failed.
type FatalError struct {
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("broker unreachable after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// PublishError reports a failed heartbeat publish. It means the connection is broken.
type PublishError struct {
	Topic string
	Err   error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish to %s failed: %v", e.Topic, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
