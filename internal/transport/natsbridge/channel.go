// Package natsbridge implements the pub/sub transport contract on NATS
// core subjects. Broadcast events travel on {prefix}.evt.{event};
// presence is derived from join/leave/heartbeat announces on
// {prefix}.presence.*, with members expiring when heartbeats stop.
package natsbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"chat-client/internal/transport"
	"chat-client/pkg/logger"

	"github.com/nats-io/nats.go"
)

type announce struct {
	MemberID string `json:"member_id"`
}

// natsConn is the slice of *nats.Conn the channel uses. Tests substitute
// an in-process fake; everything else passes the real connection.
type natsConn interface {
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

type Transport struct {
	nc        natsConn
	heartbeat time.Duration
}

func Dial(url string, heartbeat time.Duration) (*Transport, error) {
	nc, err := nats.Connect(url, nats.Name("chat-client"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info("Connected to NATS at %s", url)
	return &Transport{nc: nc, heartbeat: heartbeat}, nil
}

func (t *Transport) Close() {
	t.nc.Close()
}

func (t *Transport) OpenChannel(ctx context.Context, topic, presenceKey string) (transport.Channel, error) {
	// Topic separators are not valid subject characters.
	prefix := strings.ReplaceAll(topic, ":", ".")

	return &channel{
		nc:          t.nc,
		prefix:      prefix,
		presenceKey: presenceKey,
		heartbeat:   t.heartbeat,
		handlers:    make(map[string]transport.Handler),
		roster:      newRoster(),
		done:        make(chan struct{}),
	}, nil
}

type channel struct {
	nc          natsConn
	prefix      string
	presenceKey string
	heartbeat   time.Duration

	// handlers are registered before Subscribe and read-only afterwards.
	handlers   map[string]transport.Handler
	presenceFn transport.PresenceHandler

	roster *roster
	subs   []*nats.Subscription

	mu      sync.Mutex
	tracked string

	done      chan struct{}
	closeOnce sync.Once
}

func (c *channel) On(event string, handler transport.Handler) {
	c.handlers[event] = handler
}

func (c *channel) OnPresenceSync(handler transport.PresenceHandler) {
	c.presenceFn = handler
}

func (c *channel) Subscribe(ctx context.Context) error {
	eventPrefix := c.prefix + ".evt."
	eventSub, err := c.nc.Subscribe(eventPrefix+">", func(m *nats.Msg) {
		event := strings.TrimPrefix(m.Subject, eventPrefix)
		if handler, ok := c.handlers[event]; ok {
			handler(m.Data)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", eventPrefix+">", err)
	}
	c.subs = append(c.subs, eventSub)

	arriveSub, err := c.nc.Subscribe(c.prefix+".presence.announce", func(m *nats.Msg) {
		var a announce
		if err := json.Unmarshal(m.Data, &a); err != nil || a.MemberID == "" {
			return
		}
		if c.roster.mark(a.MemberID, time.Now()) {
			c.syncPresence()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to presence announces: %w", err)
	}
	c.subs = append(c.subs, arriveSub)

	leaveSub, err := c.nc.Subscribe(c.prefix+".presence.leave", func(m *nats.Msg) {
		var a announce
		if err := json.Unmarshal(m.Data, &a); err != nil || a.MemberID == "" {
			return
		}
		if c.roster.drop(a.MemberID) {
			c.syncPresence()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to presence leaves: %w", err)
	}
	c.subs = append(c.subs, leaveSub)

	// Make sure the server has processed the subscriptions before any
	// announce goes out, so our own echo is not lost.
	if err := c.nc.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("failed to flush subscriptions: %w", err)
	}

	go c.sweepLoop()
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
	return c.nc.Publish(c.prefix+".evt."+event, data)
}

func (c *channel) TrackPresence(memberID string) error {
	c.mu.Lock()
	alreadyTracking := c.tracked != ""
	c.tracked = memberID
	c.mu.Unlock()

	if err := c.publishAnnounce(c.prefix+".presence.announce", memberID); err != nil {
		return err
	}
	if !alreadyTracking {
		go c.heartbeatLoop(memberID)
	}
	return nil
}

func (c *channel) PresenceSnapshot() []string {
	return c.roster.ids()
}

func (c *channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		tracked := c.tracked
		c.mu.Unlock()
		if tracked != "" {
			c.publishAnnounce(c.prefix+".presence.leave", tracked)
		}

		// Stop delivery before signalling done so late callbacks do
		// not race the owning session's teardown.
		for _, sub := range c.subs {
			sub.Unsubscribe()
		}
		close(c.done)
	})
	return nil
}

func (c *channel) publishAnnounce(subject, memberID string) error {
	data, err := json.Marshal(announce{MemberID: memberID})
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, data)
}

// heartbeatLoop renews our presence announce until the channel closes.
func (c *channel) heartbeatLoop(memberID string) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.publishAnnounce(c.prefix+".presence.announce", memberID); err != nil {
				logger.Error("Presence heartbeat failed on %s: %v", c.prefix, err)
			}
		case <-c.done:
			return
		}
	}
}

// sweepLoop expires members whose heartbeats stopped without a leave
// announce, e.g. after a crash or network drop.
func (c *channel) sweepLoop() {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if c.roster.expire(time.Now(), 3*c.heartbeat) {
				c.syncPresence()
			}
		case <-c.done:
			return
		}
	}
}

func (c *channel) syncPresence() {
	if c.presenceFn != nil {
		c.presenceFn(c.roster.ids())
	}
}
