package displayagent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"cloupeer.io/displayagent/pkg/mqtt"
)

var errRefused = errors.New("connection refused")

type publishCall struct {
	topic   string
	qos     int
	retain  bool
	payload string
}

// fakeSession records every call in order and fails on demand.
type fakeSession struct {
	mu sync.Mutex

	connected bool
	// connectErrs is consumed one entry per Connect; once empty, connectErr applies.
	connectErrs  []error
	connectErr   error
	subscribeErr error
	publishErr   func(topic, payload string) error

	calls     []string
	published []publishCall
	handler   mqtt.MessageHandler
	subTopic  string
}

func (f *fakeSession) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "connect")

	err := f.connectErr
	if len(f.connectErrs) > 0 {
		err, f.connectErrs = f.connectErrs[0], f.connectErrs[1:]
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return err
	}
	f.connected = true
	return nil
}

func (f *fakeSession) Disconnect(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "disconnect")
	f.connected = false
	f.handler = nil
}

func (f *fakeSession) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("publish:%s=%s", topic, payload))

	if !f.connected {
		return mqtt.ErrNotConnected
	}
	if f.publishErr != nil {
		if err := f.publishErr(topic, string(payload)); err != nil {
			return err
		}
	}
	f.published = append(f.published, publishCall{topic: topic, qos: qos, retain: retain, payload: string(payload)})
	return nil
}

func (f *fakeSession) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "subscribe:"+topic)

	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handler = handler
	f.subTopic = topic
	return nil
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// drop simulates the broker closing the connection.
func (f *fakeSession) drop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *fakeSession) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeSession) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) publishes(payload string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.published {
		if p.payload == payload {
			n++
		}
	}
	return n
}

func (f *fakeSession) deliver(ctx context.Context, payload string) {
	f.mu.Lock()
	handler, topic := f.handler, f.subTopic
	f.mu.Unlock()
	if handler != nil {
		handler(ctx, topic, []byte(payload))
	}
}

// fakeExecutor counts the switches it was asked to perform.
type fakeExecutor struct {
	mu       sync.Mutex
	external int
	internal int
	active   int
	overlap  bool
	delay    time.Duration
}

func (e *fakeExecutor) enter() {
	e.mu.Lock()
	e.active++
	if e.active > 1 {
		e.overlap = true
	}
	e.mu.Unlock()
	time.Sleep(e.delay)
}

func (e *fakeExecutor) leave() {
	e.mu.Lock()
	e.active--
	e.mu.Unlock()
}

func (e *fakeExecutor) SwitchToExternal(context.Context) {
	e.enter()
	defer e.leave()
	e.mu.Lock()
	e.external++
	e.mu.Unlock()
}

func (e *fakeExecutor) SwitchToInternal(context.Context) {
	e.enter()
	defer e.leave()
	e.mu.Lock()
	e.internal++
	e.mu.Unlock()
}

func (e *fakeExecutor) counts() (external, internal int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.external, e.internal
}

// stepUntilDone runs fn and fires every timer it arms on fc, counting the sleeps.
func stepUntilDone(t *testing.T, fc *testingclock.FakeClock, step time.Duration, fn func() error) (int, error) {
	t.Helper()

	done := make(chan error, 1)
	go func() { done <- fn() }()

	sleeps := 0
	deadline := time.After(5 * time.Second)
	for {
		select {
		case err := <-done:
			return sleeps, err
		case <-deadline:
			t.Fatal("timed out waiting for fn to return")
			return sleeps, nil
		default:
		}

		if fc.HasWaiters() {
			fc.Step(step)
			sleeps++
			continue
		}
		time.Sleep(time.Millisecond)
	}
}

// eventually polls cond until it holds or a second passed.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
