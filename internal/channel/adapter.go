// Package channel bridges one room's pub/sub subscription and the
// synchronization store: inbound broadcasts become store mutations,
// outbound intents become broadcasts. Broadcasts carry only confirmed
// records; the optimistic local path never touches the wire.
package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"chat-client/internal/models"
	"chat-client/internal/state"
	"chat-client/internal/transport"
	"chat-client/pkg/logger"
)

type Adapter struct {
	ch        transport.Channel
	store     *state.Store
	roomID    string
	closeOnce sync.Once
}

// Activate opens the room's channel, wires the inbound events to the
// store, subscribes, and announces the member on the presence roster.
// The store must already be hydrated: activation is the point after
// which broadcast-sourced mutations start arriving.
func Activate(ctx context.Context, tr transport.Transport, store *state.Store, roomID, memberID string) (*Adapter, error) {
	ch, err := tr.OpenChannel(ctx, "chat:"+roomID, memberID)
	if err != nil {
		return nil, fmt.Errorf("failed to open channel for room %s: %w", roomID, err)
	}

	a := &Adapter{ch: ch, store: store, roomID: roomID}
	ch.On(models.WireMessage, a.onMessage)
	ch.On(models.WireReactionAdd, a.onReactionAdd)
	ch.On(models.WireReactionRemove, a.onReactionRemove)
	ch.OnPresenceSync(a.onPresenceSync)

	if err := ch.Subscribe(ctx); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to subscribe to room %s: %w", roomID, err)
	}
	if err := ch.TrackPresence(memberID); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to track presence in room %s: %w", roomID, err)
	}

	logger.Info("Live channel active for room %s", roomID)
	return a, nil
}

// Deactivate closes the subscription and stops presence tracking. Safe
// to call repeatedly and after a partially failed activation.
func (a *Adapter) Deactivate() {
	a.closeOnce.Do(func() {
		if err := a.ch.Close(); err != nil {
			logger.Error("Error closing channel for room %s: %v", a.roomID, err)
		}
	})
}

// PublishMessage broadcasts a storage-confirmed message to the room.
func (a *Adapter) PublishMessage(msg *models.Message) error {
	if msg.Provisional() {
		return fmt.Errorf("refusing to broadcast unconfirmed message")
	}
	return a.ch.Publish(models.WireMessage, msg)
}

// PublishReactionAdd broadcasts a storage-confirmed reaction.
func (a *Adapter) PublishReactionAdd(reaction *models.Reaction) error {
	return a.ch.Publish(models.WireReactionAdd, reaction)
}

// PublishReactionRemove broadcasts a confirmed reaction removal.
func (a *Adapter) PublishReactionRemove(messageID, memberID, emoji string) error {
	return a.ch.Publish(models.WireReactionRemove, models.ReactionRemove{
		MessageID: messageID,
		MemberID:  memberID,
		Emoji:     emoji,
	})
}

func (a *Adapter) onMessage(payload []byte) {
	var msg models.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		logger.Error("Dropping malformed message broadcast in room %s: %v", a.roomID, err)
		return
	}
	a.dispatch(models.Event{Kind: models.EventMessage, Message: &msg})
}

func (a *Adapter) onReactionAdd(payload []byte) {
	var reaction models.Reaction
	if err := json.Unmarshal(payload, &reaction); err != nil {
		logger.Error("Dropping malformed reaction broadcast in room %s: %v", a.roomID, err)
		return
	}
	a.dispatch(models.Event{Kind: models.EventReactionAdd, Reaction: &reaction})
}

func (a *Adapter) onReactionRemove(payload []byte) {
	var removal models.ReactionRemove
	if err := json.Unmarshal(payload, &removal); err != nil {
		logger.Error("Dropping malformed reaction removal in room %s: %v", a.roomID, err)
		return
	}
	a.dispatch(models.Event{Kind: models.EventReactionRemove, ReactionRemove: &removal})
}

func (a *Adapter) onPresenceSync(memberIDs []string) {
	a.dispatch(models.Event{Kind: models.EventPresenceSync, Presence: memberIDs})
}

// dispatch is the single entry point for broadcast-sourced mutations.
// The store's idempotence absorbs duplicate delivery and our own echo.
func (a *Adapter) dispatch(ev models.Event) {
	switch ev.Kind {
	case models.EventMessage:
		a.store.AppendMessage(ev.Message)
	case models.EventReactionAdd:
		if !a.store.AddReaction(ev.Reaction.MessageID, *ev.Reaction) {
			// Either a duplicate or a reaction for a message we have
			// not seen; at-most-once delivery makes both droppable.
			logger.Debug("Dropped reaction %s on message %s", ev.Reaction.Emoji, ev.Reaction.MessageID)
		}
	case models.EventReactionRemove:
		a.store.RemoveReaction(ev.ReactionRemove.MessageID, ev.ReactionRemove.MemberID, ev.ReactionRemove.Emoji)
	case models.EventPresenceSync:
		a.store.SetPresence(ev.Presence)
	default:
		logger.Error("Unhandled event kind %v in room %s", ev.Kind, a.roomID)
	}
}
