// Package eventsub maintains the push channel to Twitch: a websocket that
// delivers stream.online events between poll cycles. The socket is an
// accelerator only; the poller remains the source of truth for the live set,
// so a dead socket degrades latency, never correctness.
package eventsub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Altoar/twitch-livelist/telemetry"
)

// State is the connection lifecycle phase.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Message types on the EventSub websocket.
const (
	msgWelcome      = "session_welcome"
	msgKeepalive    = "session_keepalive"
	msgNotification = "notification"
	msgReconnect    = "session_reconnect"
	msgRevocation   = "revocation"
)

// SubStreamOnline is the only subscription type this client acts on.
const SubStreamOnline = "stream.online"

// OnlineHandler receives a broadcaster that just went live.
type OnlineHandler func(ctx context.Context, broadcasterID, displayName string)

// envelope is the outer frame of every EventSub websocket message.
type envelope struct {
	Metadata struct {
		MessageID        string `json:"message_id"`
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload struct {
		Session struct {
			ID           string `json:"id"`
			ReconnectURL string `json:"reconnect_url"`
		} `json:"session"`
		Subscription struct {
			Type string `json:"type"`
		} `json:"subscription"`
		Event struct {
			BroadcasterUserID   string `json:"broadcaster_user_id"`
			BroadcasterUserName string `json:"broadcaster_user_name"`
		} `json:"event"`
	} `json:"payload"`
}

// conn is the slice of *websocket.Conn the read loop needs.
type conn interface {
	ReadMessage() (int, []byte, error)
	Close() error
}

// Client owns one EventSub websocket with automatic reconnection. Reconnect
// delay grows linearly with the attempt number; after MaxReconnects failed
// attempts the client gives up and stays disconnected until restarted.
type Client struct {
	URL           string
	MaxReconnects int
	OnOnline      OnlineHandler

	// Dial and sleep are replaced in tests.
	Dial  func(ctx context.Context, url string) (conn, error)
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	state     State
	attempts  int
	sessionID string
	cancel    context.CancelFunc
}

func NewClient(url string, maxReconnects int, onOnline OnlineHandler) *Client {
	if maxReconnects <= 0 {
		maxReconnects = 5
	}
	return &Client{
		URL:           url,
		MaxReconnects: maxReconnects,
		OnOnline:      onOnline,
		Dial:          dialWebsocket,
		sleep:         sleepCtx,
	}
}

func dialWebsocket(ctx context.Context, url string) (conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	return c, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Start launches the connect-and-read loop. Calling Start on a running client
// is a no-op; calling it after the client gave up restarts with a fresh
// attempt counter.
func (c *Client) Start(ctx context.Context) {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.attempts = 0
	c.mu.Unlock()

	go c.run(runCtx)
}

// Stop tears the socket down and stops reconnecting.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.setState(StateDisconnected)
}

// State returns the current connection phase.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == "" {
		return StateDisconnected
	}
	return c.state
}

// SessionID returns the welcome-assigned session id, empty when disconnected.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	if s != StateConnected {
		c.sessionID = ""
	}
	c.mu.Unlock()
	telemetry.UpdateEventSubGauge(s == StateConnected)
}

func (c *Client) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		c.cancel = nil
		c.mu.Unlock()
		c.setState(StateDisconnected)
	}()

	url := c.URL
	for {
		c.setState(StateConnecting)
		ws, err := c.Dial(ctx, url)
		if err != nil {
			slog.Warn("eventsub dial failed", slog.Any("err", err), slog.String("url", url))
			if !c.backoff(ctx) {
				return
			}
			url = c.URL // a failed reconnect URL falls back to the primary
			continue
		}

		// ReadMessage only unblocks when the socket closes, so a watcher ties
		// the socket's life to the context.
		readDone := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = ws.Close()
			case <-readDone:
			}
		}()

		reconnectURL := c.readLoop(ctx, ws)
		close(readDone)
		if err := ws.Close(); err != nil {
			slog.Debug("eventsub close failed", slog.Any("err", err))
		}
		if ctx.Err() != nil {
			return
		}
		if reconnectURL != "" {
			// Twitch-directed migration, not a failure.
			slog.Info("eventsub reconnect requested", slog.String("url", reconnectURL))
			url = reconnectURL
			continue
		}
		if !c.backoff(ctx) {
			return
		}
		url = c.URL
	}
}

// backoff sleeps attempt×1s before the next dial. It returns false once the
// attempt budget is exhausted or the context is done.
func (c *Client) backoff(ctx context.Context) bool {
	c.mu.Lock()
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if attempt > c.MaxReconnects {
		slog.Error("eventsub gave up reconnecting", slog.Int("attempts", attempt-1))
		return false
	}
	delay := time.Duration(attempt) * time.Second
	slog.Info("eventsub reconnecting", slog.Int("attempt", attempt), slog.Duration("delay", delay))
	return c.sleep(ctx, delay) == nil
}

// readLoop consumes messages until the socket dies or the server asks us to
// move. It returns the reconnect URL when the server requested a migration,
// empty otherwise.
func (c *Client) readLoop(ctx context.Context, ws conn) string {
	for {
		if ctx.Err() != nil {
			return ""
		}
		_, raw, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("eventsub read failed", slog.Any("err", err))
			}
			return ""
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// Malformed frames are dropped; the socket itself is fine.
			slog.Warn("eventsub malformed message", slog.Any("err", err))
			continue
		}
		msgType := env.Metadata.MessageType
		if telemetry.EventSubMessages != nil {
			telemetry.EventSubMessages.WithLabelValues(msgType).Inc()
		}

		switch msgType {
		case msgWelcome:
			c.mu.Lock()
			c.attempts = 0
			c.state = StateConnected
			c.sessionID = env.Payload.Session.ID
			c.mu.Unlock()
			telemetry.UpdateEventSubGauge(true)
			slog.Info("eventsub connected", slog.String("session", env.Payload.Session.ID))

		case msgKeepalive:
			// Liveness only.

		case msgNotification:
			c.handleNotification(ctx, &env)

		case msgReconnect:
			return env.Payload.Session.ReconnectURL

		case msgRevocation:
			slog.Warn("eventsub subscription revoked", slog.String("type", env.Payload.Subscription.Type))

		default:
			slog.Debug("eventsub unhandled message", slog.String("type", msgType))
		}
	}
}

func (c *Client) handleNotification(ctx context.Context, env *envelope) {
	subType := env.Payload.Subscription.Type
	if subType == "" {
		subType = env.Metadata.SubscriptionType
	}
	if subType != SubStreamOnline {
		slog.Debug("eventsub ignoring notification", slog.String("type", subType))
		return
	}
	ev := env.Payload.Event
	if ev.BroadcasterUserID == "" {
		slog.Warn("eventsub stream.online without broadcaster id")
		return
	}
	name := ev.BroadcasterUserName
	if name == "" {
		name = fmt.Sprintf("channel %s", ev.BroadcasterUserID)
	}
	if c.OnOnline != nil {
		c.OnOnline(ctx, ev.BroadcasterUserID, name)
	}
}
