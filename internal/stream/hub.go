// Package stream pushes canonical call events to dashboard websocket
// clients. The first client attached to a call starts the upstream
// subscription; the last one leaving stops it.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/websocket"

	"github.com/zaltech/callops/internal/calls"
	"github.com/zaltech/callops/internal/observability/metrics"
	"github.com/zaltech/callops/internal/realtime"
	"github.com/zaltech/callops/pkg/logging"
)

// Subscriber controls upstream call observation.
type Subscriber interface {
	Subscribe(callID string)
	Unsubscribe(callID string)
}

// StateReader supplies the initial snapshot sent to a freshly attached client.
type StateReader interface {
	Detail(callID string) (calls.CallDetail, bool)
}

const (
	// outboundBuffer bounds how far behind a client may fall before it is
	// dropped. Sized for several seconds of dense transcript traffic.
	outboundBuffer = 64
	// writeTimeout bounds a single frame write, so a half-open connection
	// cannot park the writer goroutine.
	writeTimeout = 10 * time.Second
)

type client struct {
	conn *websocket.Conn
	out  chan any
	done chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{
		conn: conn,
		out:  make(chan any, outboundBuffer),
		done: make(chan struct{}),
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// enqueue hands a frame to the writer goroutine without blocking. A full
// buffer means the peer has stopped reading; the frame is refused so the
// event path never stalls on one client.
func (c *client) enqueue(v any) bool {
	select {
	case c.out <- v:
		return true
	default:
		return false
	}
}

// writeFrames drains the outbound buffer onto the connection. Each write
// carries its own deadline; a timed-out or failed write closes the client.
func (c *client) writeFrames() {
	for {
		select {
		case <-c.done:
			return
		case v := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := websocket.JSON.Send(c.conn, v); err != nil {
				c.close()
				return
			}
		}
	}
}

// Hub fans canonical events out to every dashboard client watching a call.
// It implements realtime.EventSink.
type Hub struct {
	subs    Subscriber
	state   StateReader
	logger  *logging.Logger
	metrics *metrics.RealtimeMetrics

	mu     sync.RWMutex
	byCall map[string]map[*client]struct{}
}

func NewHub(subs Subscriber, state StateReader, logger *logging.Logger, m *metrics.RealtimeMetrics) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		subs:    subs,
		state:   state,
		logger:  logger.Component("stream.hub"),
		metrics: m,
		byCall:  make(map[string]map[*client]struct{}),
	}
}

// snapshotMessage is the first frame a client receives: the state
// accumulated so far, so the dashboard renders without waiting for new
// events.
type snapshotMessage struct {
	Type       string                 `json:"type"`
	CallID     string                 `json:"call_id"`
	Call       calls.Call             `json:"call"`
	Transcript []calls.TranscriptItem `json:"transcript"`
	Extraction *calls.Extraction      `json:"extraction,omitempty"`
}

// inboundMessage is what dashboard clients send. Only pings are meaningful.
type inboundMessage struct {
	Type string `json:"type"`
}

// Publish queues an applied event for every client watching its call. It
// never blocks on a client: one that cannot keep up is dropped so the
// transports feeding the state stay healthy for everyone else.
func (h *Hub) Publish(ev realtime.Event) {
	h.mu.RLock()
	watchers := make([]*client, 0, len(h.byCall[ev.CallID]))
	for c := range h.byCall[ev.CallID] {
		watchers = append(watchers, c)
	}
	h.mu.RUnlock()

	for _, c := range watchers {
		if !c.enqueue(ev) {
			h.logger.Debug("dropping slow client", "call_id", ev.CallID)
			c.close()
		}
	}
}

// HandleCallSocket upgrades GET /ops/ws/calls/{callID} to a websocket.
func (h *Hub) HandleCallSocket(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}
	websocket.Handler(func(conn *websocket.Conn) {
		h.serve(conn, callID)
	}).ServeHTTP(w, r)
}

func (h *Hub) serve(conn *websocket.Conn, callID string) {
	c := newClient(conn)

	h.mu.Lock()
	watchers, ok := h.byCall[callID]
	if !ok {
		watchers = make(map[*client]struct{})
		h.byCall[callID] = watchers
	}
	watchers[c] = struct{}{}
	first := len(watchers) == 1
	h.mu.Unlock()
	h.metrics.AddWSClients(1)

	if first {
		h.subs.Subscribe(callID)
	}
	h.logger.Info("dashboard client attached", "call_id", callID, "first", first)

	go c.writeFrames()

	defer func() {
		h.mu.Lock()
		if set, ok := h.byCall[callID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.byCall, callID)
				h.subs.Unsubscribe(callID)
			}
		}
		h.mu.Unlock()
		h.metrics.AddWSClients(-1)
		c.close()
		h.logger.Info("dashboard client detached", "call_id", callID)
	}()

	// Initial snapshot: whatever state the core has accumulated so far.
	if detail, ok := h.state.Detail(callID); ok {
		c.enqueue(snapshotMessage{
			Type:       "snapshot",
			CallID:     callID,
			Call:       detail.Call,
			Transcript: detail.Transcript,
			Extraction: detail.Extraction,
		})
	}

	for {
		var msg inboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			return
		}
		if msg.Type == "ping" {
			c.enqueue(map[string]string{"type": "pong"})
		}
	}
}

// Watchers reports how many clients are attached to a call.
func (h *Hub) Watchers(callID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byCall[callID])
}
