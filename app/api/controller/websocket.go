package controller

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/websocket"
	"github.com/tiervault/tiervault/app/api/types"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: restrict origins once the dashboard domain is fixed
		return true
	},
}

var wsConnSeq atomic.Uint64

// ClientMessage is what websocket clients send: subscribe/unsubscribe by
// event type ("stake", "tier_changed", ...) or "*" for everything.
type ClientMessage struct {
	Action string `json:"action"`
	Event  string `json:"event"`
}

// ServerMessage is what the server sends back. Type is either an event type
// or one of "subscribed", "unsubscribed", "info", "error".
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type eventSubscriptions struct {
	mu     sync.RWMutex
	events map[string]bool
}

func newEventSubscriptions() *eventSubscriptions {
	return &eventSubscriptions{events: make(map[string]bool)}
}

func (s *eventSubscriptions) subscribe(event string)   { s.mu.Lock(); s.events[event] = true; s.mu.Unlock() }
func (s *eventSubscriptions) unsubscribe(event string) { s.mu.Lock(); delete(s.events, event); s.mu.Unlock() }

func (s *eventSubscriptions) matches(event string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.events["*"] || s.events[event]
}

// HandleWebSocket upgrades the connection and streams engine events published
// through Redis. Events flow on "tiervault:<eventType>" channels; the bridge
// PSUBSCRIBEs to all of them and filters per client subscription.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	id := wsConnSeq.Add(1)
	c.App.WSClients.Store(id, &types.WSClient{RemoteAddr: r.RemoteAddr, ConnectedAt: time.Now()})
	defer c.App.WSClients.Delete(id)
	c.App.Logger.Info("WebSocket client connected", zap.Uint64("conn_id", id), zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newEventSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in websocket goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())))
					cancel()
				}
			}()
			fn()
		}()
	}

	spawn("bridge", func() { c.bridgeEvents(ctx, send, subs) })
	spawn("pinger", func() { c.sendPings(ctx, conn) })
	spawn("writer", func() { c.writeMessages(conn, send) })

	// Blocks until the client disconnects.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	close(send)
	wg.Wait()
	c.App.Logger.Info("WebSocket client disconnected", zap.Uint64("conn_id", id))
}

// bridgeEvents subscribes to the Redis event channels and forwards matching
// events to the send channel, reconnecting with backoff when the
// subscription drops.
func (c *Controller) bridgeEvents(ctx context.Context, send chan<- ServerMessage, subs *eventSubscriptions) {
	const pattern = "tiervault:*"
	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.pumpRedis(ctx, pattern, send, subs)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.App.Logger.Warn("Event subscription dropped, will retry",
				zap.Error(err), zap.Duration("backoff", backoff))
		}

		select {
		case send <- ServerMessage{Type: "error", Payload: map[string]any{
			"message":     "event stream interrupted, reconnecting",
			"retryIn":     backoff.Seconds(),
			"recoverable": true,
		}}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		if backoff = backoff * 2; backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
	}
}

// pumpRedis runs one subscription until it fails or the context ends.
func (c *Controller) pumpRedis(ctx context.Context, pattern string, send chan<- ServerMessage, subs *eventSubscriptions) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, pattern)
	defer func() { _ = pubsub.Close() }()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return err
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eventType := strings.TrimPrefix(msg.Channel, "tiervault:")
			if !subs.matches(eventType) {
				continue
			}
			var payload map[string]any
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse event payload",
					zap.Error(err), zap.String("channel", msg.Channel))
				continue
			}
			select {
			case send <- ServerMessage{Type: eventType, Payload: payload}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// sendPings keeps the connection alive; pongs reset the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Error("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *eventSubscriptions, send chan<- ServerMessage) {
	resetDeadline := func() error { return conn.SetReadDeadline(time.Now().Add(60 * time.Second)) }
	if err := resetDeadline(); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error { return resetDeadline() })

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.App.Logger.Error("WebSocket read error", zap.Error(err))
			}
			cancel()
			return
		}
		if err := resetDeadline(); err != nil {
			return
		}

		switch msg.Action {
		case "subscribe":
			if msg.Event == "" {
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "event is required"}}
				continue
			}
			subs.subscribe(msg.Event)
			send <- ServerMessage{Type: "subscribed", Payload: map[string]string{"event": msg.Event}}
		case "unsubscribe":
			if msg.Event == "" {
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "event is required"}}
				continue
			}
			subs.unsubscribe(msg.Event)
			send <- ServerMessage{Type: "unsubscribed", Payload: map[string]string{"event": msg.Event}}
		default:
			send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
		}
	}
}
