package database

import (
	"context"
	"errors"

	"chat-client/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicateRoom is returned when room creation loses the race to
// another client creating the same logical room.
var ErrDuplicateRoom = errors.New("room already exists")

type RoomRepository interface {
	FindRoomByLeague(ctx context.Context, leagueID string) (*models.Room, error)
	CreateRoom(ctx context.Context, leagueID string) (*models.Room, error)
}

type MembershipRepository interface {
	// EnsureMembership upserts the (room, member) row; re-running is a no-op.
	EnsureMembership(ctx context.Context, roomID string, member *models.Member) error
	ListMembers(ctx context.Context, roomID string) ([]*models.Member, error)
}

type MessageRepository interface {
	// InsertMessage persists the message and returns the stored record
	// with its assigned id, creation timestamp and sequence.
	InsertMessage(ctx context.Context, msg *models.Message) (*models.Message, error)
	// ListMessages returns the room's full history in creation order with
	// reaction sets already attached.
	ListMessages(ctx context.Context, roomID string) ([]*models.Message, error)
}

type ReactionRepository interface {
	InsertReaction(ctx context.Context, reaction *models.Reaction) (*models.Reaction, error)
	DeleteReaction(ctx context.Context, messageID, memberID, emoji string) error
}

type Store interface {
	RoomRepository
	MembershipRepository
	MessageRepository
	ReactionRepository
	Close() error
}
