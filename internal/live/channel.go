// Package live maintains the dashboard's push connection. One Channel
// exists per mounted dashboard view: opened on mount, closed on unmount,
// never shared and never pooled.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — ordering, duplicates, and why we don't "fix" them
// ────────────────────────────────────────────────────────────────────
// The view populates itself twice: once from the REST snapshot, and
// continuously from this channel. The two are NOT ordered relative to
// each other — the channel can deliver an event before the snapshot
// request even resolves. There are no sequence numbers, so the merge
// step cannot tell "new event" from "event already in the snapshot".
// The merge functions (prepend/append) are therefore written to be safe
// in either arrival order, and duplicates are allowed through: the
// channel is at-least-once by contract. Deduplicating here would
// silently change observable behavior the rest of the product is built
// around, so we preserve it and keep the merge dumb.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danti/wastewatch/internal/model"
)

// Topic names on the push connection.
const (
	// TopicUpdateData is the global broadcast topic for record updates.
	TopicUpdateData = "update-data"
	// notificationPrefix prefixes the per-user notification topic; the
	// full topic is notificationPrefix + user id.
	notificationPrefix = "notification-"
)

// NotificationTopic returns the per-user topic for userID.
func NotificationTopic(userID string) string {
	return notificationPrefix + userID
}

// Timeouts mirror the server's ping cadence: the server pings inside
// the read window, and each pong resets the deadline.
const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// State is the connection lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// envelope is the wire format: the topic name plus a JSON-encoded string
// payload that needs its own parse step.
type envelope struct {
	Event string `json:"event"`
	Data  string `json:"data"`
}

// Handlers receive parsed events. Both run on the channel's read
// goroutine; the state containers they mutate are mutex-guarded.
type Handlers struct {
	// OnNotification receives events from the per-user topic.
	OnNotification func(model.Notification)
	// OnRecord receives events from the global update-data topic.
	OnRecord func(model.FoodWasteRecord)
}

// Channel is one live push connection. Create with Dial; release with
// Close. Close is idempotent and guaranteed to leave the connection in
// StateClosed regardless of how teardown was reached.
type Channel struct {
	conn      *websocket.Conn
	userTopic string
	handlers  Handlers
	log       *slog.Logger

	state     atomic.Int32
	closeOnce sync.Once
	done      chan struct{} // closed when the read loop exits
}

// Dial opens the push connection and subscribes to the two topics the
// dashboard needs: notification-<userID> and update-data. The topics are
// fixed at dial time; a credential change requires closing this channel
// and dialing a new one.
//
// There is no reconnection and no fallback transport: if the connection
// drops, events stop until the view remounts.
func Dial(ctx context.Context, url, userID string, handlers Handlers, logger *slog.Logger) (*Channel, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ch := &Channel{
		userTopic: NotificationTopic(userID),
		handlers:  handlers,
		log:       logger,
		done:      make(chan struct{}),
	}
	ch.state.Store(int32(StateConnecting))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		ch.state.Store(int32(StateClosed))
		close(ch.done)
		return nil, fmt.Errorf("dial push channel: %w", err)
	}
	ch.conn = conn
	ch.state.Store(int32(StateOpen))

	go ch.readLoop()
	go ch.pingLoop()
	return ch, nil
}

// State returns the current connection state.
func (c *Channel) State() State {
	return State(c.state.Load())
}

// Done is closed when the read loop has exited — in tests it doubles as
// the "no goroutine leaked" signal.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close tears the connection down. Safe to call any number of times and
// from any goroutine; after the first call the channel is StateClosed
// and no handler will fire again once Done is closed.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		// Best-effort close handshake; the hard close below is what
		// guarantees the read loop unblocks.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// readLoop pulls envelopes off the wire until the connection dies or is
// closed. Connection-level errors are not retried and not surfaced —
// the loop just ends. Malformed payloads are logged and dropped; no
// event is ever allowed to take the view down.
func (c *Channel) readLoop() {
	defer close(c.done)
	defer c.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if c.State() != StateClosed &&
				websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("push channel dropped", "err", err)
			}
			return
		}
		c.dispatch(raw)
	}
}

// dispatch routes one raw frame to the matching topic handler.
func (c *Channel) dispatch(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Warn("push channel: malformed envelope dropped", "err", err)
		return
	}

	switch env.Event {
	case c.userTopic:
		var notif model.Notification
		if err := json.Unmarshal([]byte(env.Data), &notif); err != nil {
			c.log.Warn("push channel: malformed notification dropped", "err", err)
			return
		}
		if c.handlers.OnNotification != nil {
			c.handlers.OnNotification(notif)
		}
	case TopicUpdateData:
		var rec model.FoodWasteRecord
		if err := json.Unmarshal([]byte(env.Data), &rec); err != nil {
			c.log.Warn("push channel: malformed record dropped", "err", err)
			return
		}
		if c.handlers.OnRecord != nil {
			c.handlers.OnRecord(rec)
		}
	default:
		// Another user's notification topic, or something newer than
		// this client. Not ours; drop silently.
	}
}

// pingLoop keeps the connection alive from our side. WriteControl is
// safe to use concurrently with the read loop.
func (c *Channel) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
