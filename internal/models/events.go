package models

// Wire event names carried by the pub/sub transport. Presence sync is the
// transport's native signal and has no payload shape of its own here.
const (
	WireMessage        = "message"
	WireReactionAdd    = "reaction.add"
	WireReactionRemove = "reaction.remove"
)

type EventKind int

const (
	EventMessage EventKind = iota + 1
	EventReactionAdd
	EventReactionRemove
	EventPresenceSync
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return WireMessage
	case EventReactionAdd:
		return WireReactionAdd
	case EventReactionRemove:
		return WireReactionRemove
	case EventPresenceSync:
		return "presence.sync"
	}
	return "unknown"
}

// ReactionRemove is the wire payload for a reaction removal. Removal is
// keyed by tuple, not by reaction id, so late or re-ordered delivery
// stays a no-op once the tuple is gone.
type ReactionRemove struct {
	MessageID string `json:"message_id"`
	MemberID  string `json:"member_id"`
	Emoji     string `json:"emoji"`
}

// Event is the typed union delivered to the sync store's single dispatch
// point. Exactly one payload field is set, selected by Kind.
type Event struct {
	Kind           EventKind
	Message        *Message
	Reaction       *Reaction
	ReactionRemove *ReactionRemove
	Presence       []string
}
