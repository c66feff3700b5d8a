// Package transport defines the pub/sub contract the chat client
// consumes: a topic-scoped channel with named broadcast events and a
// transport-maintained presence roster. Delivery is at-most-once and
// best-effort to currently subscribed members only; nothing is replayed
// across a disconnect.
package transport

import (
	"context"
	"errors"
)

// ErrChannelClosed is returned by operations on a channel that has been
// closed or whose underlying connection dropped.
var ErrChannelClosed = errors.New("channel closed")

// Handler receives the raw payload of one named broadcast event.
// Handlers run on a transport-owned goroutine.
type Handler func(payload []byte)

// PresenceHandler receives the full roster of tracked member ids each
// time the transport signals a presence sync. The roster replaces any
// previous one wholesale.
type PresenceHandler func(memberIDs []string)

type Transport interface {
	// OpenChannel creates an inactive channel for the topic. Event
	// handlers must be registered before Subscribe is called.
	OpenChannel(ctx context.Context, topic, presenceKey string) (Channel, error)
}

type Channel interface {
	On(event string, handler Handler)
	OnPresenceSync(handler PresenceHandler)

	// Subscribe attaches the channel to the transport and starts event
	// and presence delivery.
	Subscribe(ctx context.Context) error

	Publish(event string, payload any) error

	// TrackPresence announces the member on the channel's presence
	// roster; the transport keeps the entry alive until Close.
	TrackPresence(memberID string) error

	// PresenceSnapshot returns the roster from the last presence sync.
	PresenceSnapshot() []string

	// Close tears the subscription down and stops presence tracking.
	// Safe to call more than once and on a channel that never
	// subscribed.
	Close() error
}
