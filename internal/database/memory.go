package database

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"chat-client/internal/models"

	"github.com/google/uuid"
)

// MemoryDB is an in-memory Store with the same semantics as the
// Postgres implementation: assigned ids, timestamps and sequence
// numbers, duplicate-room conflicts, idempotent membership upserts and
// unique (message, member, emoji) reactions. Used by tests and local
// development.
type MemoryDB struct {
	mu        sync.Mutex
	rooms     map[string]*models.Room              // league id -> room
	members   map[string]map[string]*models.Member // room id -> member id -> member
	messages  []*models.Message
	reactions map[string][]*models.Reaction // message id -> reactions
	seq       int64
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		rooms:     make(map[string]*models.Room),
		members:   make(map[string]map[string]*models.Member),
		reactions: make(map[string][]*models.Reaction),
	}
}

func (db *MemoryDB) Close() error { return nil }

func (db *MemoryDB) FindRoomByLeague(ctx context.Context, leagueID string) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	room, ok := db.rooms[leagueID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *room
	return &copied, nil
}

func (db *MemoryDB) CreateRoom(ctx context.Context, leagueID string) (*models.Room, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.rooms[leagueID]; ok {
		return nil, ErrDuplicateRoom
	}
	room := &models.Room{ID: uuid.NewString(), LeagueID: leagueID, CreatedAt: time.Now().UTC()}
	db.rooms[leagueID] = room
	copied := *room
	return &copied, nil
}

func (db *MemoryDB) EnsureMembership(ctx context.Context, roomID string, member *models.Member) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.members[roomID] == nil {
		db.members[roomID] = make(map[string]*models.Member)
	}
	if _, ok := db.members[roomID][member.ID]; !ok {
		copied := *member
		db.members[roomID][member.ID] = &copied
	}
	return nil
}

func (db *MemoryDB) ListMembers(ctx context.Context, roomID string) ([]*models.Member, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var members []*models.Member
	for _, member := range db.members[roomID] {
		copied := *member
		members = append(members, &copied)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].DisplayName < members[j].DisplayName
	})
	return members, nil
}

func (db *MemoryDB) InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.seq++
	stored := &models.Message{
		ID:         uuid.NewString(),
		RoomID:     msg.RoomID,
		AuthorID:   msg.AuthorID,
		AuthorName: msg.AuthorName,
		AvatarURL:  msg.AvatarURL,
		Body:       msg.Body,
		CreatedAt:  time.Now().UTC(),
		Seq:        db.seq,
	}
	db.messages = append(db.messages, stored)
	copied := *stored
	return &copied, nil
}

func (db *MemoryDB) ListMessages(ctx context.Context, roomID string) ([]*models.Message, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var messages []*models.Message
	for _, msg := range db.messages {
		if msg.RoomID != roomID {
			continue
		}
		copied := *msg
		for _, r := range db.reactions[msg.ID] {
			copied.Reactions = append(copied.Reactions, *r)
		}
		messages = append(messages, &copied)
	}
	sort.Slice(messages, func(i, j int) bool {
		if !messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].CreatedAt.Before(messages[j].CreatedAt)
		}
		return messages[i].Seq < messages[j].Seq
	})
	return messages, nil
}

func (db *MemoryDB) InsertReaction(ctx context.Context, reaction *models.Reaction) (*models.Reaction, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, existing := range db.reactions[reaction.MessageID] {
		if existing.MemberID == reaction.MemberID && existing.Emoji == reaction.Emoji {
			copied := *existing
			return &copied, nil
		}
	}
	stored := &models.Reaction{
		ID:        uuid.NewString(),
		MessageID: reaction.MessageID,
		MemberID:  reaction.MemberID,
		Emoji:     reaction.Emoji,
		CreatedAt: time.Now().UTC(),
	}
	db.reactions[reaction.MessageID] = append(db.reactions[reaction.MessageID], stored)
	copied := *stored
	return &copied, nil
}

func (db *MemoryDB) DeleteReaction(ctx context.Context, messageID, memberID, emoji string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.reactions[messageID] = slices.DeleteFunc(db.reactions[messageID], func(r *models.Reaction) bool {
		return r.MemberID == memberID && r.Emoji == emoji
	})
	return nil
}
