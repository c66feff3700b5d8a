package state

import (
	"math/rand"
	"testing"
	"time"

	"chat-client/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmedMessage(id string, at time.Time, seq int64) *models.Message {
	return &models.Message{
		ID:        id,
		RoomID:    "room-1",
		AuthorID:  "member-a",
		Body:      "body of " + id,
		CreatedAt: at,
		Seq:       seq,
	}
}

func messageIDs(s *Store) []string {
	snap := s.Snapshot()
	ids := make([]string, 0, len(snap.Messages))
	for _, m := range snap.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestAppendMessageIdempotent(t *testing.T) {
	s := New("room-1")
	msg := confirmedMessage("m1", time.Now(), 1)

	assert.True(t, s.AppendMessage(msg))
	assert.False(t, s.AppendMessage(msg))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "m1", snap.Messages[0].ID)
}

func TestAppendMessageOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	originals := make([]*models.Message, 0, 8)
	for i := 0; i < 8; i++ {
		originals = append(originals, confirmedMessage(
			string(rune('a'+i)), base.Add(time.Duration(i/2)*time.Second), int64(i),
		))
	}

	// Arbitrary interleaving with duplicates must converge on storage
	// order.
	feed := append(append([]*models.Message{}, originals...), originals...)
	rand.New(rand.NewSource(42)).Shuffle(len(feed), func(i, j int) {
		feed[i], feed[j] = feed[j], feed[i]
	})

	s := New("room-1")
	for _, msg := range feed {
		s.AppendMessage(msg)
	}

	assert.Equal(t, []string{"a", "b", "c", "d", "e", "f", "g", "h"}, messageIDs(s))
}

func TestAppendProvisionalStaysAtTail(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := New("room-1")
	s.AppendMessage(confirmedMessage("m1", base, 1))
	s.AppendMessage(&models.Message{ClientToken: "tok-1", Body: "pending", CreatedAt: base.Add(time.Second)})

	// A confirmed message older than the provisional entry still lands
	// before it.
	s.AppendMessage(confirmedMessage("m2", base.Add(500*time.Millisecond), 2))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "m1", snap.Messages[0].ID)
	assert.Equal(t, "m2", snap.Messages[1].ID)
	assert.Equal(t, "pending", snap.Messages[2].Body)
}

func TestConfirmMessageReplacesProvisional(t *testing.T) {
	s := New("room-1")
	s.AppendMessage(&models.Message{ClientToken: "tok-1", Body: "hello", CreatedAt: time.Now()})

	confirmed := confirmedMessage("m1", time.Now(), 1)
	confirmed.Body = "hello"
	assert.True(t, s.ConfirmMessage("tok-1", confirmed))

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "m1", snap.Messages[0].ID)
	assert.False(t, snap.Messages[0].Provisional())

	// The broadcast echo of the same message is a no-op.
	assert.False(t, s.AppendMessage(confirmed))
	assert.Len(t, s.Snapshot().Messages, 1)
}

func TestConfirmDoesNotMatchByContent(t *testing.T) {
	s := New("room-1")
	// Two identical texts from the same author, only one in flight.
	s.AppendMessage(&models.Message{ClientToken: "tok-1", Body: "same", CreatedAt: time.Now()})
	s.AppendMessage(&models.Message{ClientToken: "tok-2", Body: "same", CreatedAt: time.Now()})

	confirmed := confirmedMessage("m1", time.Now(), 1)
	confirmed.Body = "same"
	s.ConfirmMessage("tok-1", confirmed)

	snap := s.Snapshot()
	require.Len(t, snap.Messages, 2)
	// tok-2's entry must survive untouched.
	assert.Equal(t, "tok-2", snap.Messages[1].ClientToken)
}

func TestDropMessageRollsBack(t *testing.T) {
	s := New("room-1")
	s.AppendMessage(confirmedMessage("m1", time.Now(), 1))
	before := s.Snapshot()

	s.AppendMessage(&models.Message{ClientToken: "tok-1", Body: "doomed", CreatedAt: time.Now()})
	assert.True(t, s.DropMessage("tok-1"))
	assert.False(t, s.DropMessage("tok-1"))

	assert.Equal(t, before.Messages, s.Snapshot().Messages)
}

func TestAddReactionSetSemantics(t *testing.T) {
	s := New("room-1")
	s.AppendMessage(confirmedMessage("m1", time.Now(), 1))

	r := models.Reaction{ID: "r1", MessageID: "m1", MemberID: "member-a", Emoji: "👍"}
	assert.True(t, s.AddReaction("m1", r))
	// Same tuple again, even with a different storage id, is a no-op.
	dup := r
	dup.ID = "r2"
	assert.False(t, s.AddReaction("m1", dup))

	require.Len(t, s.Snapshot().Messages[0].Reactions, 1)

	other := models.Reaction{ID: "r3", MessageID: "m1", MemberID: "member-b", Emoji: "👍"}
	assert.True(t, s.AddReaction("m1", other))
	assert.Len(t, s.Snapshot().Messages[0].Reactions, 2)
}

func TestAddReactionUnknownMessageDropped(t *testing.T) {
	s := New("room-1")
	r := models.Reaction{ID: "r1", MessageID: "missing", MemberID: "member-a", Emoji: "👍"}
	assert.False(t, s.AddReaction("missing", r))
	assert.Empty(t, s.Snapshot().Messages)
}

func TestRemoveReactionIsInverse(t *testing.T) {
	s := New("room-1")
	s.AppendMessage(confirmedMessage("m1", time.Now(), 1))
	before := s.Snapshot()

	s.AddReaction("m1", models.Reaction{ID: "r1", MessageID: "m1", MemberID: "member-a", Emoji: "🔥"})
	assert.True(t, s.RemoveReaction("m1", "member-a", "🔥"))
	assert.False(t, s.RemoveReaction("m1", "member-a", "🔥"))

	assert.Equal(t, before.Messages, s.Snapshot().Messages)
}

func TestSetPresenceReplacesWholesale(t *testing.T) {
	s := New("room-1")
	s.SetPresence([]string{"a", "b"})
	s.SetPresence([]string{"b", "c"})

	assert.Equal(t, []string{"b", "c"}, s.Snapshot().Online)
}

func TestHydrateReplacesState(t *testing.T) {
	s := New("room-1")
	msgs := []*models.Message{
		confirmedMessage("m1", time.Now(), 1),
		confirmedMessage("m2", time.Now().Add(time.Second), 2),
	}
	members := []*models.Member{{ID: "member-a", DisplayName: "Alice"}}
	s.Hydrate(msgs, members)

	snap := s.Snapshot()
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(s))
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "Alice", snap.Members[0].DisplayName)
}

func TestSubscribeNotifiesOnChangeOnly(t *testing.T) {
	s := New("room-1")
	notified := 0
	cancel := s.Subscribe(func() { notified++ })

	msg := confirmedMessage("m1", time.Now(), 1)
	s.AppendMessage(msg)
	s.AppendMessage(msg) // duplicate, no notification
	assert.Equal(t, 1, notified)

	cancel()
	s.AppendMessage(confirmedMessage("m2", time.Now(), 2))
	assert.Equal(t, 1, notified)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New("room-1")
	s.AppendMessage(confirmedMessage("m1", time.Now(), 1))
	s.AddReaction("m1", models.Reaction{ID: "r1", MessageID: "m1", MemberID: "member-a", Emoji: "👍"})

	snap := s.Snapshot()
	snap.Messages[0].Body = "tampered"
	snap.Messages[0].Reactions[0].Emoji = "💀"

	fresh := s.Snapshot()
	assert.Equal(t, "body of m1", fresh.Messages[0].Body)
	assert.Equal(t, "👍", fresh.Messages[0].Reactions[0].Emoji)
}
