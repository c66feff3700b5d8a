package state

import (
	"slices"
	"sync"

	"chat-client/internal/models"
)

// Store is the in-process view of one room: message list, per-message
// reaction sets, online roster and member directory. It is the only
// place room state is mutated, and every mutation is idempotent with
// respect to duplicate or out-of-order delivery, because the same
// logical event can arrive both from the local optimistic path and from
// the broadcast echo of that same action.
//
// One Store belongs to exactly one session and dies with it.
type Store struct {
	mu       sync.RWMutex
	roomID   string
	messages []*models.Message
	online   map[string]struct{}
	members  []*models.Member

	subMu   sync.Mutex
	subs    map[int]func()
	nextSub int
}

func New(roomID string) *Store {
	return &Store{
		roomID: roomID,
		online: make(map[string]struct{}),
		subs:   make(map[int]func()),
	}
}

// Subscribe registers a state-change notification and returns its
// cancel function. Callbacks run after the mutation settles and must not
// call back into the Store's mutation methods.
func (s *Store) Subscribe(fn func()) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *Store) notify() {
	s.subMu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Hydrate replaces the message list and member directory with the
// loader's point-in-time snapshot. Called once per session, strictly
// before the live channel activates.
func (s *Store) Hydrate(messages []*models.Message, members []*models.Member) {
	s.mu.Lock()
	s.messages = slices.Clone(messages)
	s.members = slices.Clone(members)
	s.mu.Unlock()
	s.notify()
}

// AppendMessage inserts a message unless one with the same id (or, for a
// provisional entry, the same client token) is already present.
// Confirmed messages land at their storage-assigned position; the
// provisional entry sits at the tail until it is confirmed or dropped.
func (s *Store) AppendMessage(msg *models.Message) bool {
	s.mu.Lock()
	var inserted bool
	if msg.Provisional() {
		if s.indexByToken(msg.ClientToken) < 0 {
			s.messages = append(s.messages, msg)
			inserted = true
		}
	} else if s.indexByID(msg.ID) < 0 {
		s.insertConfirmed(msg)
		inserted = true
	}
	s.mu.Unlock()
	if inserted {
		s.notify()
	}
	return inserted
}

// ConfirmMessage replaces the provisional entry matching the client
// token with its storage-confirmed record. Matching is by token only,
// never by content, so two identical messages from the same author are
// never falsely merged.
func (s *Store) ConfirmMessage(clientToken string, confirmed *models.Message) bool {
	s.mu.Lock()
	changed := false
	if i := s.indexByToken(clientToken); i >= 0 {
		s.messages = slices.Delete(s.messages, i, i+1)
		changed = true
	}
	if s.indexByID(confirmed.ID) < 0 {
		s.insertConfirmed(confirmed)
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
	return changed
}

// DropMessage rolls back a provisional entry after a failed durable
// write.
func (s *Store) DropMessage(clientToken string) bool {
	s.mu.Lock()
	i := s.indexByToken(clientToken)
	if i >= 0 {
		s.messages = slices.Delete(s.messages, i, i+1)
	}
	s.mu.Unlock()
	if i >= 0 {
		s.notify()
	}
	return i >= 0
}

// AddReaction attaches a reaction unless the (member, emoji) tuple is
// already present on the message. Reactions for messages not yet known
// locally are dropped; the caller decides whether that is worth logging.
func (s *Store) AddReaction(messageID string, reaction models.Reaction) bool {
	s.mu.Lock()
	added := false
	if i := s.indexByID(messageID); i >= 0 {
		msg := s.messages[i]
		if !hasReaction(msg, reaction.MemberID, reaction.Emoji) {
			msg.Reactions = append(msg.Reactions, reaction)
			added = true
		}
	}
	s.mu.Unlock()
	if added {
		s.notify()
	}
	return added
}

// RemoveReaction removes the (member, emoji) tuple from the message's
// reaction set; no-op if absent.
func (s *Store) RemoveReaction(messageID, memberID, emoji string) bool {
	s.mu.Lock()
	removed := false
	if i := s.indexByID(messageID); i >= 0 {
		msg := s.messages[i]
		kept := msg.Reactions[:0]
		for _, r := range msg.Reactions {
			if r.MemberID == memberID && r.Emoji == emoji {
				removed = true
				continue
			}
			kept = append(kept, r)
		}
		msg.Reactions = kept
	}
	s.mu.Unlock()
	if removed {
		s.notify()
	}
	return removed
}

// SetPresence replaces the online roster wholesale with the transport's
// latest sync signal. The roster is never merged locally.
func (s *Store) SetPresence(memberIDs []string) {
	s.mu.Lock()
	s.online = make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		s.online[id] = struct{}{}
	}
	s.mu.Unlock()
	s.notify()
}

// SetMemberDirectory replaces the member directory used for mention
// lookups.
func (s *Store) SetMemberDirectory(members []*models.Member) {
	s.mu.Lock()
	s.members = slices.Clone(members)
	s.mu.Unlock()
	s.notify()
}

// HasMessage reports whether a confirmed message with the id is present.
func (s *Store) HasMessage(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexByID(messageID) >= 0
}

// HasReaction reports whether the (member, emoji) tuple is present on
// the message.
func (s *Store) HasReaction(messageID, memberID, emoji string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexByID(messageID); i >= 0 {
		return hasReaction(s.messages[i], memberID, emoji)
	}
	return false
}

// Snapshot returns a copy of the current state for the presentation
// layer. The copy shares nothing mutable with the live state.
func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := models.Snapshot{
		RoomID:   s.roomID,
		Messages: make([]models.Message, 0, len(s.messages)),
		Online:   make([]string, 0, len(s.online)),
		Members:  make([]models.Member, 0, len(s.members)),
	}
	for _, msg := range s.messages {
		copied := *msg
		copied.Reactions = slices.Clone(msg.Reactions)
		snap.Messages = append(snap.Messages, copied)
	}
	for id := range s.online {
		snap.Online = append(snap.Online, id)
	}
	slices.Sort(snap.Online)
	for _, member := range s.members {
		snap.Members = append(snap.Members, *member)
	}
	return snap
}

// insertConfirmed places a confirmed message at its storage order
// position: ascending creation time, ties broken by storage sequence.
// Provisional entries always stay at the tail. Caller holds the lock.
func (s *Store) insertConfirmed(msg *models.Message) {
	i := 0
	for i < len(s.messages) {
		m := s.messages[i]
		if m.Provisional() {
			break
		}
		if m.CreatedAt.After(msg.CreatedAt) ||
			(m.CreatedAt.Equal(msg.CreatedAt) && m.Seq > msg.Seq) {
			break
		}
		i++
	}
	s.messages = slices.Insert(s.messages, i, msg)
}

func (s *Store) indexByID(id string) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.messages, func(m *models.Message) bool {
		return !m.Provisional() && m.ID == id
	})
}

func (s *Store) indexByToken(token string) int {
	return slices.IndexFunc(s.messages, func(m *models.Message) bool {
		return m.ClientToken == token && token != ""
	})
}

func hasReaction(msg *models.Message, memberID, emoji string) bool {
	for _, r := range msg.Reactions {
		if r.MemberID == memberID && r.Emoji == emoji {
			return true
		}
	}
	return false
}
