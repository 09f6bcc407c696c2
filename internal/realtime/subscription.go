package realtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zaltech/callops/internal/observability/metrics"
	"github.com/zaltech/callops/pkg/logging"
)

// LiveConn is an open server-push channel scoped to one call.
type LiveConn interface {
	// ReadMessage blocks until the next message or a transport error.
	ReadMessage(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens live connections to the upstream voice-agent platform.
type Dialer interface {
	Dial(ctx context.Context, callID string) (LiveConn, error)
}

// Poller fetches the full current state of a call. Used once at subscription
// start and then on a fixed interval as a resilience fallback for the live
// channel (observed failure mode: connection reports open but stops
// delivering).
type Poller interface {
	FetchCallState(ctx context.Context, callID string) ([]byte, error)
}

// SubState is the lifecycle of one subscription.
type SubState string

const (
	SubUnsubscribed SubState = "UNSUBSCRIBED"
	SubConnecting   SubState = "CONNECTING"
	SubLive         SubState = "LIVE"
)

// ManagerOptions tunes the per-call connection lifecycle.
type ManagerOptions struct {
	PollInterval     time.Duration
	ReconnectDelay   time.Duration
	ConnectTimeout   time.Duration
	ReadStallTimeout time.Duration
}

func (o *ManagerOptions) withDefaults() ManagerOptions {
	opts := ManagerOptions{
		PollInterval:     2 * time.Second,
		ReconnectDelay:   5 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReadStallTimeout: 45 * time.Second,
	}
	if o == nil {
		return opts
	}
	if o.PollInterval > 0 {
		opts.PollInterval = o.PollInterval
	}
	if o.ReconnectDelay > 0 {
		opts.ReconnectDelay = o.ReconnectDelay
	}
	if o.ConnectTimeout > 0 {
		opts.ConnectTimeout = o.ConnectTimeout
	}
	if o.ReadStallTimeout > 0 {
		opts.ReadStallTimeout = o.ReadStallTimeout
	}
	return opts
}

type subscription struct {
	callID string
	cancel context.CancelFunc

	mu       sync.Mutex
	state    SubState
	explicit bool // closed by caller, suppresses reconnect
	conn     LiveConn
}

func (sub *subscription) setState(s SubState) {
	sub.mu.Lock()
	sub.state = s
	sub.mu.Unlock()
}

func (sub *subscription) explicitlyClosed() bool {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.explicit
}

// Manager owns the live connection and poll timer for every observed call.
// The connection map is never exposed; callers interact only through
// Subscribe and Unsubscribe.
type Manager struct {
	dialer  Dialer
	poller  Poller
	adapter *Adapter
	state   *StreamState
	opts    ManagerOptions

	mu   sync.Mutex
	subs map[string]*subscription
	wg   sync.WaitGroup

	logger  *logging.Logger
	metrics *metrics.RealtimeMetrics
}

func NewManager(dialer Dialer, poller Poller, adapter *Adapter, state *StreamState, opts *ManagerOptions, logger *logging.Logger, m *metrics.RealtimeMetrics) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		dialer:  dialer,
		poller:  poller,
		adapter: adapter,
		state:   state,
		opts:    opts.withDefaults(),
		subs:    make(map[string]*subscription),
		logger:  logger.Component("realtime.manager"),
		metrics: m,
	}
}

// Subscribe begins observing a call: dials the live channel and starts the
// poll loop. No-op when already subscribed.
func (m *Manager) Subscribe(callID string) {
	if callID == "" {
		return
	}
	m.mu.Lock()
	if _, ok := m.subs[callID]; ok {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{callID: callID, cancel: cancel, state: SubConnecting}
	m.subs[callID] = sub
	m.metrics.SetActiveSubscriptions(len(m.subs))
	m.mu.Unlock()

	m.logger.Info("subscribed to call", "call_id", callID)

	m.wg.Add(2)
	go m.runLive(ctx, sub)
	go m.runPoll(ctx, sub)
}

// Unsubscribe stops observing a call: closes the live connection, cancels
// the poll timer, and suppresses the reconnect path. Idempotent.
func (m *Manager) Unsubscribe(callID string) {
	m.mu.Lock()
	sub, ok := m.subs[callID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subs, callID)
	m.metrics.SetActiveSubscriptions(len(m.subs))
	m.mu.Unlock()

	sub.mu.Lock()
	sub.explicit = true
	sub.state = SubUnsubscribed
	conn := sub.conn
	sub.conn = nil
	sub.mu.Unlock()

	sub.cancel()
	if conn != nil {
		_ = conn.Close()
	}
	m.logger.Info("unsubscribed from call", "call_id", callID)
}

// Status reports the current subscription state for a call.
func (m *Manager) Status(callID string) SubState {
	m.mu.Lock()
	sub, ok := m.subs[callID]
	m.mu.Unlock()
	if !ok {
		return SubUnsubscribed
	}
	sub.mu.Lock()
	defer sub.mu.Unlock()
	return sub.state
}

// Subscribed reports whether the call is currently observed. Poll results
// arriving after this flips to false must be discarded.
func (m *Manager) Subscribed(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subs[callID]
	return ok
}

// Close unsubscribes everything and waits for the loops to finish.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.subs))
	for id := range m.subs {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Unsubscribe(id)
	}
	m.wg.Wait()
}

// runLive dials the live channel and pumps messages into the adapter,
// reconnecting with a fixed backoff on transport failure until the
// subscription is explicitly closed.
func (m *Manager) runLive(ctx context.Context, sub *subscription) {
	defer m.wg.Done()
	for {
		if ctx.Err() != nil || sub.explicitlyClosed() {
			return
		}

		sub.setState(SubConnecting)
		dialCtx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
		conn, err := m.dialer.Dial(dialCtx, sub.callID)
		cancel()
		if err != nil {
			if ctx.Err() != nil || sub.explicitlyClosed() {
				return
			}
			m.metrics.ObserveReconnect()
			m.logger.Warn("live dial failed, will retry", "call_id", sub.callID, "error", err)
			if !sleepCtx(ctx, m.opts.ReconnectDelay) {
				return
			}
			continue
		}

		sub.mu.Lock()
		sub.conn = conn
		// Optimistic: LIVE once the connection is requested, no handshake ack.
		sub.state = SubLive
		sub.mu.Unlock()
		m.logger.Info("live channel open", "call_id", sub.callID)

		m.pumpLive(ctx, sub, conn)

		sub.mu.Lock()
		if sub.conn == conn {
			sub.conn = nil
		}
		sub.mu.Unlock()
		_ = conn.Close()

		if ctx.Err() != nil || sub.explicitlyClosed() {
			return
		}
		m.metrics.ObserveReconnect()
		m.logger.Warn("live channel closed, reconnecting", "call_id", sub.callID)
		if !sleepCtx(ctx, m.opts.ReconnectDelay) {
			return
		}
	}
}

// pumpLive reads messages until transport error, stall, or cancellation.
func (m *Manager) pumpLive(ctx context.Context, sub *subscription, conn LiveConn) {
	for {
		readCtx, cancel := context.WithTimeout(ctx, m.opts.ReadStallTimeout)
		raw, err := conn.ReadMessage(readCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				m.logger.Warn("live channel stalled", "call_id", sub.callID)
			}
			return
		}
		events, err := m.adapter.Normalize(sub.callID, raw)
		if err != nil {
			// Malformed events are logged and dropped; the subscription
			// stays alive.
			m.logger.Warn("dropping malformed live event", "call_id", sub.callID, "error", err)
			continue
		}
		for _, ev := range events {
			if sub.explicitlyClosed() {
				return
			}
			m.state.ApplyEvent(SourceLive, ev)
		}
	}
}

// runPoll fetches the full call state immediately (initial/historical load)
// and then on a fixed interval. Failures are swallowed per tick; late
// results for an unsubscribed call are discarded.
func (m *Manager) runPoll(ctx context.Context, sub *subscription) {
	defer m.wg.Done()

	m.pollOnce(ctx, sub)

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.pollOnce(ctx, sub)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context, sub *subscription) {
	raw, err := m.poller.FetchCallState(ctx, sub.callID)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// Transient poll failures must not clear accumulated transcript:
		// skip the tick and stay on schedule.
		m.metrics.ObservePollFailure()
		m.logger.Warn("poll fetch failed", "call_id", sub.callID, "error", err)
		return
	}

	// Stale-subscription guard: the fetch may resolve after Unsubscribe.
	if ctx.Err() != nil || sub.explicitlyClosed() || !m.Subscribed(sub.callID) {
		return
	}

	events, err := m.adapter.NormalizeSnapshot(sub.callID, raw)
	if err != nil {
		m.logger.Warn("dropping malformed poll snapshot", "call_id", sub.callID, "error", err)
		return
	}
	for _, ev := range events {
		if sub.explicitlyClosed() {
			return
		}
		m.state.ApplyEvent(SourcePoll, ev)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
