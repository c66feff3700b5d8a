package services

import (
	"context"
	"testing"

	"chat-client/internal/database"
	"chat-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadReturnsMessagesWithReactions(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemoryDB()
	room, err := db.CreateRoom(ctx, "league-1")
	require.NoError(t, err)

	first, err := db.InsertMessage(ctx, &models.Message{RoomID: room.ID, AuthorID: "member-a", Body: "first"})
	require.NoError(t, err)
	_, err = db.InsertMessage(ctx, &models.Message{RoomID: room.ID, AuthorID: "member-b", Body: "second"})
	require.NoError(t, err)
	_, err = db.InsertReaction(ctx, &models.Reaction{MessageID: first.ID, MemberID: "member-b", Emoji: "👍"})
	require.NoError(t, err)

	svc := NewHistoryService(db)
	hist, err := svc.Load(ctx, room.ID, &models.Member{ID: "member-a", DisplayName: "Alice"})
	require.NoError(t, err)

	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "first", hist.Messages[0].Body)
	require.Len(t, hist.Messages[0].Reactions, 1)
	assert.Equal(t, "👍", hist.Messages[0].Reactions[0].Emoji)
	assert.Empty(t, hist.Messages[1].Reactions)
}

func TestLoadEnsuresMembership(t *testing.T) {
	ctx := context.Background()
	db := database.NewMemoryDB()
	room, err := db.CreateRoom(ctx, "league-1")
	require.NoError(t, err)

	svc := NewHistoryService(db)
	member := &models.Member{ID: "member-a", DisplayName: "Alice"}

	hist, err := svc.Load(ctx, room.ID, member)
	require.NoError(t, err)
	require.Len(t, hist.Members, 1)
	assert.Equal(t, "Alice", hist.Members[0].DisplayName)

	// Re-running the load is an idempotent upsert.
	hist, err = svc.Load(ctx, room.ID, member)
	require.NoError(t, err)
	assert.Len(t, hist.Members, 1)
}
