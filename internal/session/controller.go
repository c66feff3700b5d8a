// Package session orchestrates room entry and exit and exposes the only
// operations the presentation layer calls: send, toggle reaction, read
// state, subscribe to changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"chat-client/internal/channel"
	"chat-client/internal/database"
	"chat-client/internal/identity"
	"chat-client/internal/models"
	"chat-client/internal/services"
	"chat-client/internal/state"
	"chat-client/internal/transport"
	"chat-client/pkg/logger"

	"github.com/google/uuid"
)

var (
	// ErrSendFailed means the durable write for a message failed; the
	// optimistic entry has been rolled back and the caller may retry.
	ErrSendFailed = errors.New("message send failed")

	// ErrReactionFailed means the durable write for a reaction toggle
	// failed; local state is untouched and the caller may retry.
	ErrReactionFailed = errors.New("reaction toggle failed")

	// ErrSessionClosed is returned by operations on a left session.
	ErrSessionClosed = errors.New("session closed")
)

type Controller struct {
	rooms         *services.RoomService
	history       *services.HistoryService
	db            database.Store
	tr            transport.Transport
	ident         *identity.Identity
	maxMessageLen int

	mu     sync.Mutex
	active *Session
}

func NewController(db database.Store, tr transport.Transport, ident *identity.Identity, maxMessageLen int) *Controller {
	return &Controller{
		rooms:         services.NewRoomService(db),
		history:       services.NewHistoryService(db),
		db:            db,
		tr:            tr,
		ident:         ident,
		maxMessageLen: maxMessageLen,
	}
}

// Enter resolves the league's room, loads its history, hydrates a fresh
// store and then activates the live channel, strictly in that order, so
// no broadcast can race the hydration snapshot. Resolution or load
// failure aborts entry; a channel failure degrades the session to
// local-only instead (no presence, no remote updates) until a fresh
// Enter.
//
// At most one session is active per controller; entering again leaves
// the previous session first.
func (c *Controller) Enter(ctx context.Context, leagueID string) (*Session, error) {
	c.mu.Lock()
	previous := c.active
	c.mu.Unlock()
	if previous != nil {
		previous.Leave()
	}

	roomID, err := c.rooms.Resolve(ctx, leagueID)
	if err != nil {
		return nil, err
	}

	member := c.ident.Member()
	hist, err := c.history.Load(ctx, roomID, member)
	if err != nil {
		return nil, err
	}

	store := state.New(roomID)
	store.Hydrate(hist.Messages, hist.Members)

	adapter, err := channel.Activate(ctx, c.tr, store, roomID, member.ID)
	if err != nil {
		logger.Error("Entering room %s in local-only mode: %v", roomID, err)
		adapter = nil
	}

	sess := &Session{
		roomID:  roomID,
		member:  member,
		store:   store,
		adapter: adapter,
		db:      c.db,
		maxLen:  c.maxMessageLen,
	}

	c.mu.Lock()
	c.active = sess
	c.mu.Unlock()
	return sess, nil
}

// Session scopes one (room, member) pair. Its store and channel are
// exclusively owned and die on Leave.
type Session struct {
	roomID  string
	member  *models.Member
	store   *state.Store
	adapter *channel.Adapter
	db      database.Store
	maxLen  int

	mu     sync.Mutex
	closed bool
}

func (s *Session) RoomID() string { return s.roomID }

// Degraded reports whether the session runs without a live channel.
func (s *Session) Degraded() bool { return s.adapter == nil }

// CurrentState returns a copy of the room state for rendering.
func (s *Session) CurrentState() models.Snapshot {
	return s.store.Snapshot()
}

// Subscribe registers a state-change notification; the returned func
// cancels it.
func (s *Session) Subscribe(fn func()) func() {
	return s.store.Subscribe(fn)
}

// Send applies an optimistic local entry, performs the durable write,
// reconciles the provisional entry with the confirmed record by its
// correlation token, and only then broadcasts. A failed write rolls the
// optimistic entry back. Whitespace-only input is a no-op; overlong
// input is truncated to the configured maximum.
func (s *Session) Send(ctx context.Context, text string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if utf8.RuneCountInString(text) > s.maxLen {
		text = string([]rune(text)[:s.maxLen])
	}

	token := uuid.NewString()
	provisional := &models.Message{
		RoomID:      s.roomID,
		AuthorID:    s.member.ID,
		AuthorName:  s.member.DisplayName,
		AvatarURL:   s.member.AvatarURL,
		Body:        text,
		CreatedAt:   time.Now().UTC(),
		ClientToken: token,
	}
	s.store.AppendMessage(provisional)

	confirmed, err := s.db.InsertMessage(ctx, provisional)
	if err != nil {
		s.store.DropMessage(token)
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	s.store.ConfirmMessage(token, confirmed)

	if s.adapter != nil {
		// Broadcast is best-effort; the durable write already succeeded.
		if err := s.adapter.PublishMessage(confirmed); err != nil {
			logger.Error("Broadcast of message %s failed: %v", confirmed.ID, err)
		}
	}
	return nil
}

// ToggleReaction adds the (member, emoji) reaction if the local state
// has none on the message, otherwise removes it. Unlike Send there is
// no optimistic phase: the local mutation happens only after the
// durable write succeeds, so a failure leaves state untouched.
func (s *Session) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	if err := s.guard(); err != nil {
		return err
	}
	if !s.store.HasMessage(messageID) {
		return fmt.Errorf("%w: unknown message %s", ErrReactionFailed, messageID)
	}

	if s.store.HasReaction(messageID, s.member.ID, emoji) {
		if err := s.db.DeleteReaction(ctx, messageID, s.member.ID, emoji); err != nil {
			return fmt.Errorf("%w: %v", ErrReactionFailed, err)
		}
		s.store.RemoveReaction(messageID, s.member.ID, emoji)
		if s.adapter != nil {
			if err := s.adapter.PublishReactionRemove(messageID, s.member.ID, emoji); err != nil {
				logger.Error("Broadcast of reaction removal on %s failed: %v", messageID, err)
			}
		}
		return nil
	}

	stored, err := s.db.InsertReaction(ctx, &models.Reaction{
		MessageID: messageID,
		MemberID:  s.member.ID,
		Emoji:     emoji,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReactionFailed, err)
	}
	s.store.AddReaction(messageID, *stored)
	if s.adapter != nil {
		if err := s.adapter.PublishReactionAdd(stored); err != nil {
			logger.Error("Broadcast of reaction on %s failed: %v", messageID, err)
		}
	}
	return nil
}

// Leave deactivates the channel before the store is abandoned, so no
// late broadcast callback mutates a discarded session. Idempotent.
func (s *Session) Leave() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if s.adapter != nil {
		s.adapter.Deactivate()
	}
	logger.Info("Left room %s", s.roomID)
}

func (s *Session) guard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return nil
}
