package services

import (
	"context"
	"errors"
	"fmt"

	"chat-client/internal/database"
	"chat-client/internal/models"
	"chat-client/pkg/logger"
)

// ErrLoadFailed means the history snapshot could not be fetched. Fatal to
// room entry; partial histories are never returned.
var ErrLoadFailed = errors.New("history load failed")

type HistoryService struct {
	db database.Store
}

func NewHistoryService(db database.Store) *HistoryService {
	return &HistoryService{db: db}
}

// Load ensures the member's room membership, then fetches the full
// message history (reactions attached) and the member directory as one
// point-in-time snapshot.
func (s *HistoryService) Load(ctx context.Context, roomID string, member *models.Member) (*models.History, error) {
	if err := s.db.EnsureMembership(ctx, roomID, member); err != nil {
		return nil, fmt.Errorf("%w: ensuring membership in room %s: %v", ErrLoadFailed, roomID, err)
	}

	messages, err := s.db.ListMessages(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing messages for room %s: %v", ErrLoadFailed, roomID, err)
	}

	members, err := s.db.ListMembers(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%w: listing members for room %s: %v", ErrLoadFailed, roomID, err)
	}

	logger.Debug("Loaded %d messages and %d members for room %s", len(messages), len(members), roomID)
	return &models.History{Messages: messages, Members: members}, nil
}
