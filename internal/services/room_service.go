package services

import (
	"context"
	"errors"
	"fmt"

	"chat-client/internal/database"
	"chat-client/pkg/logger"
)

// ErrStoreUnavailable means the durable store could not be reached while
// entering a room. Fatal to room entry; not retried here.
var ErrStoreUnavailable = errors.New("chat store unavailable")

type RoomService struct {
	db database.RoomRepository
}

func NewRoomService(db database.RoomRepository) *RoomService {
	return &RoomService{db: db}
}

// Resolve looks up the room for a logical league key, creating it on
// first use. Two clients may race the creation; the loser's duplicate
// insert is benign and resolved by re-fetching the winner's row.
func (s *RoomService) Resolve(ctx context.Context, leagueID string) (string, error) {
	if leagueID == "" {
		return "", fmt.Errorf("league id is required")
	}

	room, err := s.db.FindRoomByLeague(ctx, leagueID)
	if err == nil {
		return room.ID, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return "", fmt.Errorf("%w: finding room for league %q: %v", ErrStoreUnavailable, leagueID, err)
	}

	room, err = s.db.CreateRoom(ctx, leagueID)
	if errors.Is(err, database.ErrDuplicateRoom) {
		// Another client created it first; their row wins.
		logger.Debug("Room for league %s already created elsewhere, re-fetching", leagueID)
		room, err = s.db.FindRoomByLeague(ctx, leagueID)
		if err != nil {
			return "", fmt.Errorf("%w: re-fetching room for league %q: %v", ErrStoreUnavailable, leagueID, err)
		}
		return room.ID, nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: creating room for league %q: %v", ErrStoreUnavailable, leagueID, err)
	}

	logger.Info("Created room %s for league %s", room.ID, leagueID)
	return room.ID, nil
}
