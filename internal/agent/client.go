// Package agent is the client for the upstream voice-agent platform: a
// websocket channel per call for live events and a REST endpoint for
// full-state polls. It implements realtime.Dialer and realtime.Poller.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/zaltech/callops/internal/realtime"
	"github.com/zaltech/callops/pkg/logging"
)

// Config controls how the agent client behaves.
type Config struct {
	// APIBaseURL is the REST base, e.g. http://agent:8000/api/v1.
	APIBaseURL string
	// WSBaseURL is the websocket base, e.g. ws://agent:8000/api/v1/ws.
	WSBaseURL  string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client talks to the upstream voice-agent platform.
type Client struct {
	apiBaseURL string
	wsBaseURL  string
	apiKey     string
	httpClient *http.Client
	dialer     *websocket.Dialer
	logger     *logging.Logger
}

// New creates a configured Client with sane defaults.
func New(cfg Config) (*Client, error) {
	apiBase := strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/")
	wsBase := strings.TrimRight(strings.TrimSpace(cfg.WSBaseURL), "/")
	if apiBase == "" || wsBase == "" {
		return nil, errors.New("agent: API and WS base URLs are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		apiBaseURL: apiBase,
		wsBaseURL:  wsBase,
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		dialer:     &websocket.Dialer{HandshakeTimeout: timeout},
		logger:     logger.Component("agent"),
	}, nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	if c.apiKey != "" {
		h.Set("Authorization", "Bearer "+c.apiKey)
	}
	return h
}

// wsConn adapts a gorilla connection to realtime.LiveConn.
type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := w.conn.SetReadDeadline(deadline); err != nil {
			return nil, err
		}
	}
	_, msg, err := w.conn.ReadMessage()
	return msg, err
}

func (w *wsConn) Close() error {
	// Best effort: tell the server before dropping the TCP stream.
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}

// Dial opens the live transcript channel for one call.
func (c *Client) Dial(ctx context.Context, callID string) (realtime.LiveConn, error) {
	url := fmt.Sprintf("%s/live-transcript/%s", c.wsBaseURL, callID)
	conn, resp, err := c.dialer.DialContext(ctx, url, c.header())
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("agent: dial %s: %w", url, err)
	}
	return &wsConn{conn: conn}, nil
}

// FetchCallState performs the full-state poll for one call: the current call
// record including its complete transcript and extraction.
func (c *Client) FetchCallState(ctx context.Context, callID string) ([]byte, error) {
	url := fmt.Sprintf("%s/calls/%s", c.apiBaseURL, callID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("agent: build poll request: %w", err)
	}
	req.Header = c.header()
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent: poll %s: %w", callID, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent: poll %s: unexpected status %d", callID, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("agent: read poll body: %w", err)
	}
	return body, nil
}
