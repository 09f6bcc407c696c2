package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeConn delivers queued messages then blocks until closed.
type fakeConn struct {
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn(msgs ...[]byte) *fakeConn {
	c := &fakeConn{msgs: make(chan []byte, len(msgs)+8), closed: make(chan struct{})}
	for _, m := range msgs {
		c.msgs <- m
	}
	return c
}

func (c *fakeConn) ReadMessage(ctx context.Context) ([]byte, error) {
	select {
	case m := <-c.msgs:
		return m, nil
	case <-c.closed:
		return nil, errors.New("connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	next  chan *fakeConn
	fails int32
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{next: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, callID string) (LiveConn, error) {
	if atomic.LoadInt32(&d.fails) > 0 {
		atomic.AddInt32(&d.fails, -1)
		return nil, errors.New("dial refused")
	}
	select {
	case c := <-d.next:
		d.mu.Lock()
		d.conns = append(d.conns, c)
		d.mu.Unlock()
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

// blockingPoller parks every fetch until released, so tests can resolve a
// poll after unsubscription.
type blockingPoller struct {
	release  chan struct{}
	result   []byte
	fetches  int32
	resolved int32
}

// FetchCallState ignores ctx on purpose: the test needs the fetch to resolve
// successfully after the subscription is gone.
func (p *blockingPoller) FetchCallState(ctx context.Context, callID string) ([]byte, error) {
	atomic.AddInt32(&p.fetches, 1)
	<-p.release
	atomic.AddInt32(&p.resolved, 1)
	return p.result, nil
}

type staticPoller struct {
	result []byte
	err    error
	calls  int32
}

func (p *staticPoller) FetchCallState(ctx context.Context, callID string) ([]byte, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func fastOpts() *ManagerOptions {
	return &ManagerOptions{
		PollInterval:     10 * time.Millisecond,
		ReconnectDelay:   10 * time.Millisecond,
		ConnectTimeout:   time.Second,
		ReadStallTimeout: time.Second,
	}
}

func newTestManager(d Dialer, p Poller) (*Manager, *StreamState) {
	state := newTestState()
	adapter := newTestAdapter()
	m := NewManager(d, p, adapter, state, fastOpts(), nil, nil)
	return m, state
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestSubscribeDeliversLiveEvents(t *testing.T) {
	dialer := newFakeDialer()
	dialer.next <- newFakeConn(
		[]byte(`{"type":"transcript.final","callId":"call-1","timestamp":1000,"data":{"speaker":"AI","text":"Hello"}}`),
	)
	poller := &staticPoller{err: errors.New("poll down")}
	m, state := newTestManager(dialer, poller)
	defer m.Close()

	m.Subscribe("call-1")
	waitFor(t, time.Second, func() bool { return len(state.Transcript("call-1")) == 1 })

	if got := m.Status("call-1"); got != SubLive {
		t.Errorf("expected LIVE, got %s", got)
	}
}

func TestSubscribeTwiceIsNoop(t *testing.T) {
	dialer := newFakeDialer()
	dialer.next <- newFakeConn()
	poller := &staticPoller{result: []byte(`{"id":"call-1","status":"ringing"}`)}
	m, _ := newTestManager(dialer, poller)
	defer m.Close()

	m.Subscribe("call-1")
	m.Subscribe("call-1")
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 1 })
	time.Sleep(20 * time.Millisecond)

	if got := dialer.dialCount(); got != 1 {
		t.Errorf("second subscribe must not dial again, got %d dials", got)
	}
}

func TestUnsubscribeIdempotentAndNoReconnect(t *testing.T) {
	dialer := newFakeDialer()
	conn := newFakeConn()
	dialer.next <- conn
	poller := &staticPoller{result: []byte(`{"id":"call-1","status":"ringing"}`)}
	m, _ := newTestManager(dialer, poller)

	m.Subscribe("call-1")
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 1 })

	m.Unsubscribe("call-1")
	m.Unsubscribe("call-1") // must not panic or error

	if got := m.Status("call-1"); got != SubUnsubscribed {
		t.Errorf("expected UNSUBSCRIBED, got %s", got)
	}

	// An explicit close must not trigger the reconnect path.
	time.Sleep(50 * time.Millisecond)
	if got := dialer.dialCount(); got != 1 {
		t.Errorf("explicit unsubscribe reconnected: %d dials", got)
	}
	m.Close()
}

func TestTransportClosureTriggersReconnect(t *testing.T) {
	dialer := newFakeDialer()
	first := newFakeConn()
	second := newFakeConn()
	dialer.next <- first
	dialer.next <- second
	poller := &staticPoller{result: []byte(`{"id":"call-1","status":"ringing"}`)}
	m, _ := newTestManager(dialer, poller)
	defer m.Close()

	m.Subscribe("call-1")
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 1 })

	// Server-side closure, not an explicit unsubscribe.
	first.Close()
	waitFor(t, time.Second, func() bool { return dialer.dialCount() == 2 })

	if !m.Subscribed("call-1") {
		t.Error("subscription must survive a transport closure")
	}
}

func TestDialFailureRetries(t *testing.T) {
	dialer := newFakeDialer()
	atomic.StoreInt32(&dialer.fails, 2)
	dialer.next <- newFakeConn()
	poller := &staticPoller{result: []byte(`{"id":"call-1","status":"ringing"}`)}
	m, _ := newTestManager(dialer, poller)
	defer m.Close()

	m.Subscribe("call-1")
	waitFor(t, 2*time.Second, func() bool { return dialer.dialCount() == 1 })
}

func TestLatePollResultDiscardedAfterUnsubscribe(t *testing.T) {
	dialer := newFakeDialer()
	dialer.next <- newFakeConn()
	poller := &blockingPoller{
		release: make(chan struct{}),
		result: []byte(`{"id":"call-1","status":"in_progress","transcript":[
			{"role":"assistant","content":"resurrected","timestamp":1700000001}]}`),
	}
	m, state := newTestManager(dialer, poller)

	m.Subscribe("call-1")
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&poller.fetches) >= 1 })

	before := state.Transcript("call-1")
	m.Unsubscribe("call-1")

	// Resolve the in-flight poll after unsubscription.
	close(poller.release)
	time.Sleep(50 * time.Millisecond)

	after := state.Transcript("call-1")
	if len(after) != len(before) {
		t.Fatalf("late poll result resurrected state: %d -> %d items", len(before), len(after))
	}
	m.Close()
}

func TestPollFailureDoesNotClearState(t *testing.T) {
	dialer := newFakeDialer()
	dialer.next <- newFakeConn(
		[]byte(`{"type":"transcript.final","callId":"call-1","timestamp":1000,"data":{"speaker":"AI","text":"Hello"}}`),
	)
	poller := &staticPoller{err: errors.New("upstream 500")}
	m, state := newTestManager(dialer, poller)
	defer m.Close()

	m.Subscribe("call-1")
	waitFor(t, time.Second, func() bool { return len(state.Transcript("call-1")) == 1 })
	waitFor(t, time.Second, func() bool { return atomic.LoadInt32(&poller.calls) >= 3 })

	if got := len(state.Transcript("call-1")); got != 1 {
		t.Fatalf("failed polls must not clear transcript, got %d items", got)
	}
}

func TestPollSnapshotFeedsState(t *testing.T) {
	dialer := newFakeDialer()
	dialer.next <- newFakeConn()
	poller := &staticPoller{result: []byte(`{"id":"call-1","status":"in_progress",
		"transcript":[{"role":"user","content":"Hi there","timestamp":1700000002}],
		"extraction":{"caller_name":"John","is_confirmed":false}}`)}
	m, state := newTestManager(dialer, poller)
	defer m.Close()

	m.Subscribe("call-1")
	waitFor(t, time.Second, func() bool { return len(state.Transcript("call-1")) == 1 })

	if _, ok := state.Extraction("call-1"); !ok {
		t.Error("poll snapshot extraction must reach state")
	}
	call, ok := state.CallSnapshot("call-1")
	if !ok || call.Status != "IN_PROGRESS" {
		t.Errorf("poll snapshot call fields must reach state: %+v", call)
	}
}

func TestCloseStopsEverything(t *testing.T) {
	dialer := newFakeDialer()
	dialer.next <- newFakeConn()
	dialer.next <- newFakeConn()
	poller := &staticPoller{result: []byte(`{"id":"x","status":"ringing"}`)}
	m, _ := newTestManager(dialer, poller)

	m.Subscribe("call-1")
	m.Subscribe("call-2")
	done := make(chan struct{})
	go func() {
		m.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	if m.Subscribed("call-1") || m.Subscribed("call-2") {
		t.Error("Close must unsubscribe all calls")
	}
}
