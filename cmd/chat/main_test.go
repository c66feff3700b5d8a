package main

import (
	"testing"
	"time"

	"chat-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWith(messages ...models.Message) models.Snapshot {
	return models.Snapshot{RoomID: "room-1", Messages: messages}
}

func TestLatestConfirmed(t *testing.T) {
	confirmed := models.Message{ID: "m1", AuthorName: "Alice", Body: "hi", CreatedAt: time.Now(), Seq: 1}
	pending := models.Message{ClientToken: "tok-1", Body: "in flight"}
	reacted := confirmed
	reacted.Reactions = []models.Reaction{{ID: "r1", MessageID: "m1", MemberID: "member-b", Emoji: "👍"}}

	tests := []struct {
		name      string
		snap      models.Snapshot
		printedID string
		want      string
		ok        bool
	}{
		{"empty room", snapshotWith(), "", "", false},
		{"new confirmed message", snapshotWith(confirmed), "", "m1", true},
		{"already printed", snapshotWith(confirmed), "m1", "", false},
		{"provisional tail skipped", snapshotWith(confirmed, pending), "m1", "", false},
		{"reaction change on printed message", snapshotWith(reacted), "m1", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := latestConfirmed(tt.snap, tt.printedID)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, msg.ID)
			}
		})
	}
}

func TestLatestConfirmedAcrossSendLifecycle(t *testing.T) {
	pending := models.Message{ClientToken: "tok-1", Body: "hello"}
	confirmed := models.Message{ID: "m1", AuthorName: "Alice", Body: "hello", CreatedAt: time.Now(), Seq: 1}

	printedID := ""

	// Optimistic append notifies first; nothing prints yet.
	_, ok := latestConfirmed(snapshotWith(pending), printedID)
	assert.False(t, ok)

	// Confirmation prints the message exactly once.
	msg, ok := latestConfirmed(snapshotWith(confirmed), printedID)
	require.True(t, ok)
	printedID = msg.ID

	// The broadcast echo and later presence syncs stay quiet.
	_, ok = latestConfirmed(snapshotWith(confirmed), printedID)
	assert.False(t, ok)
}
