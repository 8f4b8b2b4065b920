package displayagent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

const testBackoff = 5 * time.Second

func newTestSupervisor(session *fakeSession, attempts int, fc *testingclock.FakeClock) *Supervisor {
	return NewSupervisor(session, SupervisorConfig{
		CommandTopic: "displays/host/command",
		Handler:      func(context.Context, string, []byte) {},
		MaxAttempts:  attempts,
		Backoff:      testBackoff,
		Clock:        fc,
	})
}

func TestEnsureConnectedFirstAttempt(t *testing.T) {
	session := &fakeSession{}
	fc := testingclock.NewFakeClock(time.Now())
	s := newTestSupervisor(session, 3, fc)

	sleeps, err := stepUntilDone(t, fc, testBackoff, func() error {
		return s.EnsureConnected(context.Background())
	})

	require.NoError(t, err)
	assert.Equal(t, 0, sleeps)
	assert.Equal(t, []string{"connect", "subscribe:displays/host/command"}, session.history())
	assert.Equal(t, StateConnected, s.State())
	assert.True(t, s.Connected())
}

func TestEnsureConnectedRetriesThenSucceeds(t *testing.T) {
	for k := 1; k <= 2; k++ {
		session := &fakeSession{connectErrs: make([]error, k)}
		for i := range session.connectErrs {
			session.connectErrs[i] = errRefused
		}
		fc := testingclock.NewFakeClock(time.Now())
		s := newTestSupervisor(session, 3, fc)

		sleeps, err := stepUntilDone(t, fc, testBackoff, func() error {
			return s.EnsureConnected(context.Background())
		})

		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, k+1, session.count("connect"), "k=%d", k)
		assert.Equal(t, k, sleeps, "k=%d", k)
		assert.Equal(t, StateConnected, s.State())
	}
}

func TestEnsureConnectedExhausted(t *testing.T) {
	session := &fakeSession{connectErr: errRefused}
	fc := testingclock.NewFakeClock(time.Now())
	s := newTestSupervisor(session, 3, fc)

	sleeps, err := stepUntilDone(t, fc, testBackoff, func() error {
		return s.EnsureConnected(context.Background())
	})

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 3, fatal.Attempts)
	assert.ErrorIs(t, err, errRefused)
	assert.NotErrorIs(t, err, ErrShutdown)
	assert.Equal(t, 3, session.count("connect"))
	assert.Equal(t, 2, sleeps)
	assert.Equal(t, StateDisconnected, s.State())
	assert.False(t, s.Connected())
}

func TestEnsureConnectedSingleAttempt(t *testing.T) {
	session := &fakeSession{connectErr: errRefused}
	fc := testingclock.NewFakeClock(time.Now())
	s := newTestSupervisor(session, 1, fc)

	sleeps, err := stepUntilDone(t, fc, testBackoff, func() error {
		return s.EnsureConnected(context.Background())
	})

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, 1, fatal.Attempts)
	assert.Equal(t, 0, sleeps)
}

func TestEnsureConnectedCancelledDuringBackoff(t *testing.T) {
	session := &fakeSession{connectErr: errRefused}
	s := NewSupervisor(session, SupervisorConfig{
		CommandTopic: "displays/host/command",
		MaxAttempts:  3,
		Backoff:      time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := s.EnsureConnected(ctx)

	assert.ErrorIs(t, err, ErrShutdown)
	var fatal *FatalError
	assert.False(t, errors.As(err, &fatal))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 1, session.count("connect"))
	assert.Equal(t, StateDisconnected, s.State())
}

func TestEnsureConnectedAlreadyCancelled(t *testing.T) {
	session := &fakeSession{}
	s := newTestSupervisor(session, 3, testingclock.NewFakeClock(time.Now()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.EnsureConnected(ctx), ErrShutdown)
	assert.Zero(t, session.count("connect"))
}

func TestEnsureConnectedIsNoopWhileConnected(t *testing.T) {
	session := &fakeSession{}
	s := newTestSupervisor(session, 3, testingclock.NewFakeClock(time.Now()))

	require.NoError(t, s.EnsureConnected(context.Background()))
	require.NoError(t, s.EnsureConnected(context.Background()))
	assert.Equal(t, 1, session.count("connect"))
}

func TestEnsureConnectedResetsBudgetAfterBreak(t *testing.T) {
	session := &fakeSession{connectErrs: []error{errRefused, errRefused, nil}}
	fc := testingclock.NewFakeClock(time.Now())
	s := newTestSupervisor(session, 3, fc)

	_, err := stepUntilDone(t, fc, testBackoff, func() error {
		return s.EnsureConnected(context.Background())
	})
	require.NoError(t, err)

	session.drop()
	session.mu.Lock()
	session.connectErrs = []error{errRefused, errRefused, nil}
	session.mu.Unlock()

	sleeps, err := stepUntilDone(t, fc, testBackoff, func() error {
		return s.EnsureConnected(context.Background())
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sleeps)
	assert.Equal(t, 6, session.count("connect"))
	assert.Equal(t, StateConnected, s.State())
}

func TestEnsureConnectedSubscribeFailureDisconnects(t *testing.T) {
	session := &fakeSession{subscribeErr: errors.New("not authorized")}
	fc := testingclock.NewFakeClock(time.Now())
	s := newTestSupervisor(session, 2, fc)

	_, err := stepUntilDone(t, fc, testBackoff, func() error {
		return s.EnsureConnected(context.Background())
	})

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, []string{
		"connect", "subscribe:displays/host/command", "disconnect",
		"connect", "subscribe:displays/host/command", "disconnect",
	}, session.history())
	assert.False(t, session.IsConnected())
}

func TestMarkBrokenAndClose(t *testing.T) {
	session := &fakeSession{}
	s := newTestSupervisor(session, 3, testingclock.NewFakeClock(time.Now()))
	ctx := context.Background()

	require.NoError(t, s.EnsureConnected(ctx))
	s.MarkBroken(ctx)
	assert.Equal(t, StateDisconnected, s.State())
	assert.Equal(t, 1, session.count("disconnect"))

	// Nothing to release twice.
	s.MarkBroken(ctx)
	assert.Equal(t, 1, session.count("disconnect"))

	s.Close(ctx)
	s.Close(ctx)
	assert.Equal(t, StateShuttingDown, s.State())
	assert.Equal(t, 2, session.count("disconnect"))
	assert.ErrorIs(t, s.EnsureConnected(ctx), ErrShutdown)
}
