package models

import "time"

// Room is a persistent chat scope keyed by a logical league id. It is
// resolved or created once per session and immutable afterwards.
type Room struct {
	ID        string    `json:"id"`
	LeagueID  string    `json:"league_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Message is append-only: there is no edit or delete path. Confirmed
// messages carry a storage-assigned ID, CreatedAt and Seq; a provisional
// message carries only a ClientToken until the durable write confirms it.
type Message struct {
	ID         string     `json:"id"`
	RoomID     string     `json:"room_id"`
	AuthorID   string     `json:"author_id"`
	AuthorName string     `json:"author_name"`
	AvatarURL  string     `json:"avatar_url,omitempty"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
	Seq        int64      `json:"seq"`
	Reactions  []Reaction `json:"reactions,omitempty"`

	// ClientToken is set only on the local optimistic entry and is the
	// reconciliation key for the confirmed record. Never sent on the wire.
	ClientToken string `json:"-"`
}

// Provisional reports whether the message is an optimistic local entry
// that has not been confirmed by storage yet.
func (m *Message) Provisional() bool {
	return m.ClientToken != ""
}

// Reaction is a single emoji attached to a message by a member. At most
// one reaction exists per (message, member, emoji) tuple.
type Reaction struct {
	ID        string    `json:"id"`
	MessageID string    `json:"message_id"`
	MemberID  string    `json:"member_id"`
	Emoji     string    `json:"emoji"`
	CreatedAt time.Time `json:"created_at"`
}

// History is the point-in-time snapshot returned by the history loader:
// the room's ordered messages (reactions joined in) and member directory.
type History struct {
	Messages []*Message
	Members  []*Member
}

// Snapshot is a copy of the current in-memory room state handed to the
// presentation layer. Mutating it has no effect on the live state.
type Snapshot struct {
	RoomID   string
	Messages []Message
	Online   []string
	Members  []Member
}
