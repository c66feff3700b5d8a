// Package ws implements the pub/sub transport contract over a websocket
// relay. The relay fans every envelope out to the topic's subscribers
// and owns the presence roster, pushing a full "presence.sync" roster
// whenever it changes.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"chat-client/internal/transport"
	"chat-client/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	eventJoin         = "channel.join"
	eventLeave        = "channel.leave"
	eventTrack        = "presence.track"
	eventPresenceSync = "presence.sync"
)

// envelope is the wire frame exchanged with the relay.
type envelope struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type joinPayload struct {
	PresenceKey string `json:"presence_key,omitempty"`
}

type trackPayload struct {
	MemberID string `json:"member_id"`
}

type presenceSyncPayload struct {
	MemberIDs []string `json:"member_ids"`
}

type Transport struct {
	url string
}

func New(url string) *Transport {
	return &Transport{url: url}
}

func (t *Transport) OpenChannel(ctx context.Context, topic, presenceKey string) (transport.Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial relay %s: %w", t.url, err)
	}

	return &channel{
		conn:        conn,
		topic:       topic,
		presenceKey: presenceKey,
		handlers:    make(map[string]transport.Handler),
		send:        make(chan envelope, 64),
		done:        make(chan struct{}),
	}, nil
}

type channel struct {
	conn        *websocket.Conn
	topic       string
	presenceKey string

	// handlers are registered before Subscribe and read-only afterwards.
	handlers   map[string]transport.Handler
	presenceFn transport.PresenceHandler

	send chan envelope
	done chan struct{}

	mu         sync.RWMutex
	roster     []string
	subscribed bool

	closeOnce sync.Once
}

func (c *channel) On(event string, handler transport.Handler) {
	c.handlers[event] = handler
}

func (c *channel) OnPresenceSync(handler transport.PresenceHandler) {
	c.presenceFn = handler
}

func (c *channel) Subscribe(ctx context.Context) error {
	join, err := json.Marshal(joinPayload{PresenceKey: c.presenceKey})
	if err != nil {
		return err
	}

	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(envelope{Topic: c.topic, Event: eventJoin, Payload: join}); err != nil {
		return fmt.Errorf("failed to join topic %s: %w", c.topic, err)
	}

	c.mu.Lock()
	c.subscribed = true
	c.mu.Unlock()
	go c.writePump()
	go c.readPump()
	return nil
}

func (c *channel) Publish(event string, payload any) error {
	select {
	case <-c.done:
		return transport.ErrChannelClosed
	default:
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	select {
	case c.send <- envelope{Topic: c.topic, Event: event, Payload: data}:
		return nil
	case <-c.done:
		return transport.ErrChannelClosed
	}
}

func (c *channel) TrackPresence(memberID string) error {
	return c.Publish(eventTrack, trackPayload{MemberID: memberID})
}

func (c *channel) PresenceSnapshot() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snapshot := make([]string, len(c.roster))
	copy(snapshot, c.roster)
	return snapshot
}

// Close signals the pumps to stop. The write pump owns the connection,
// so the leave and close frames go out from there; writing them here
// would race an in-flight publish or ping.
func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.RLock()
		subscribed := c.subscribed
		c.mu.RUnlock()
		// Before Subscribe no pump owns the connection yet.
		if !subscribed {
			c.conn.Close()
		}
	})
	return nil
}

func (c *channel) readPump() {
	defer c.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Error("Relay read error on topic %s: %v", c.topic, err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			logger.Error("Dropping malformed relay frame on topic %s: %v", c.topic, err)
			continue
		}
		if env.Topic != c.topic {
			continue
		}

		if env.Event == eventPresenceSync {
			var sync presenceSyncPayload
			if err := json.Unmarshal(env.Payload, &sync); err != nil {
				logger.Error("Dropping malformed presence sync on topic %s: %v", c.topic, err)
				continue
			}
			c.mu.Lock()
			c.roster = sync.MemberIDs
			c.mu.Unlock()
			if c.presenceFn != nil {
				c.presenceFn(sync.MemberIDs)
			}
			continue
		}

		if handler, ok := c.handlers[env.Event]; ok {
			handler(env.Payload)
		}
	}
}

func (c *channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.Close()
	}()

	for {
		select {
		case env := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(env); err != nil {
				logger.Error("Relay write error on topic %s: %v", c.topic, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			// Best-effort leave so the relay drops us from the roster
			// promptly instead of waiting for the read timeout.
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteJSON(envelope{Topic: c.topic, Event: eventLeave})
			c.conn.WriteMessage(websocket.CloseMessage, nil)
			return
		}
	}
}
