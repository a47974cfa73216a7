package conversation

import (
	"slices"
	"strings"
	"time"
)

// Status is the delivery state of an outgoing message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// validTransitions defines allowed status transitions. Sent is terminal;
// Failed may return to Pending through an explicit retry.
var validTransitions = map[Status][]Status{
	StatusPending: {StatusSent, StatusFailed},
	StatusFailed:  {StatusPending},
	StatusSent:    {},
}

// CanTransition reports whether s may move to the given status.
func (s Status) CanTransition(to Status) bool {
	return slices.Contains(validTransitions[s], to)
}

// Type tags the message payload. The delivery engine treats it as opaque;
// only chat text is produced by the send path.
type Type string

const (
	TypeText        Type = "text"
	TypeAction      Type = "action"
	TypeGroupInvite Type = "group_invite"
)

// Key identifies a conversation: a contact fingerprint for 1:1 chats or a
// group identifier for group chats.
type Key struct {
	ID    string
	Group bool
}

// DirectKey returns the conversation key for a 1:1 chat.
func DirectKey(fingerprint string) Key {
	return Key{ID: fingerprint}
}

// GroupKey returns the conversation key for a group chat.
func GroupKey(id string) Key {
	return Key{ID: id, Group: true}
}

func (k Key) String() string {
	if k.Group {
		return "group:" + k.ID
	}
	return k.ID
}

// ParseKey is the inverse of Key.String, used where keys travel as plain
// strings (archive rows, API paths).
func ParseKey(s string) Key {
	if id, ok := strings.CutPrefix(s, "group:"); ok {
		return GroupKey(id)
	}
	return DirectKey(s)
}

// Message is one entry in a conversation's ordered sequence. Ref is assigned
// by the store on append and identifies the message for later status updates.
type Message struct {
	Ref       uint64
	Sender    string
	Content   string
	Timestamp string
	Outgoing  bool
	Status    Status
	Type      Type
}

// Stamp formats a wall-clock time as the display timestamp carried on a
// message. The engine never parses it back.
func Stamp(t time.Time) string {
	return t.Format("15:04")
}

// Preview truncates message content for conversation list summaries.
func Preview(content string) string {
	const max = 80
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max])
}
