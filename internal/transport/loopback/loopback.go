// Package loopback is an in-process pub/sub broker implementing the
// transport contract: every publish is fanned out synchronously to all
// channels subscribed to the topic, including the publisher (matching
// the echo behavior of the real transports). The broker owns the
// presence roster and pushes a sync to the topic whenever it changes.
// Used by tests and local development.
package loopback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chat-client/internal/transport"
)

type Broker struct {
	mu     sync.Mutex
	topics map[string][]*channel
}

func New() *Broker {
	return &Broker{topics: make(map[string][]*channel)}
}

func (b *Broker) OpenChannel(ctx context.Context, topic, presenceKey string) (transport.Channel, error) {
	return &channel{
		broker:      b,
		topic:       topic,
		presenceKey: presenceKey,
		handlers:    make(map[string]transport.Handler),
	}, nil
}

func (b *Broker) publish(topic, event string, payload []byte) {
	b.mu.Lock()
	subscribers := make([]*channel, len(b.topics[topic]))
	copy(subscribers, b.topics[topic])
	b.mu.Unlock()

	for _, ch := range subscribers {
		if handler, ok := ch.handlers[event]; ok {
			handler(payload)
		}
	}
}

func (b *Broker) attach(ch *channel) {
	b.mu.Lock()
	b.topics[ch.topic] = append(b.topics[ch.topic], ch)
	b.mu.Unlock()
}

func (b *Broker) detach(ch *channel) {
	b.mu.Lock()
	subscribers := b.topics[ch.topic]
	for i, sub := range subscribers {
		if sub == ch {
			b.topics[ch.topic] = append(subscribers[:i], subscribers[i+1:]...)
			break
		}
	}
	b.mu.Unlock()
	b.syncPresence(ch.topic)
}

// syncPresence pushes the current roster to every channel on the topic.
func (b *Broker) syncPresence(topic string) {
	b.mu.Lock()
	var roster []string
	subscribers := make([]*channel, 0, len(b.topics[topic]))
	for _, ch := range b.topics[topic] {
		subscribers = append(subscribers, ch)
		ch.mu.Lock()
		if ch.tracked != "" {
			roster = append(roster, ch.tracked)
		}
		ch.mu.Unlock()
	}
	b.mu.Unlock()

	for _, ch := range subscribers {
		ch.mu.Lock()
		ch.roster = roster
		ch.mu.Unlock()
		if ch.presenceFn != nil {
			ch.presenceFn(roster)
		}
	}
}

type channel struct {
	broker      *Broker
	topic       string
	presenceKey string

	handlers   map[string]transport.Handler
	presenceFn transport.PresenceHandler

	mu         sync.Mutex
	tracked    string
	roster     []string
	subscribed bool
	closed     bool
}

func (c *channel) On(event string, handler transport.Handler) {
	c.handlers[event] = handler
}

func (c *channel) OnPresenceSync(handler transport.PresenceHandler) {
	c.presenceFn = handler
}

func (c *channel) Subscribe(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrChannelClosed
	}
	c.subscribed = true
	c.mu.Unlock()
	c.broker.attach(c)
	return nil
}

func (c *channel) Publish(event string, payload any) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrChannelClosed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	c.broker.publish(c.topic, event, data)
	return nil
}

func (c *channel) TrackPresence(memberID string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return transport.ErrChannelClosed
	}
	c.tracked = memberID
	c.mu.Unlock()
	c.broker.syncPresence(c.topic)
	return nil
}

func (c *channel) PresenceSnapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	snapshot := make([]string, len(c.roster))
	copy(snapshot, c.roster)
	return snapshot
}

func (c *channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	subscribed := c.subscribed
	c.mu.Unlock()
	if subscribed {
		c.broker.detach(c)
	}
	return nil
}
