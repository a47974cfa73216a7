package outbox

import (
	"github.com/google/uuid"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
)

// Job is an immutable snapshot of one send, taken at enqueue time. Workers
// receive owned copies, never references into UI-held state, so a job's
// lifetime is independent of the conversation it came from.
type Job struct {
	ID           string
	Conversation conversation.Key
	Ref          uint64
	Recipients   []string // single fingerprint for 1:1 sends
	GroupID      string   // set instead for group sends
	Content      string
}

// newJob builds a job for the message at (key, ref).
func newJob(key conversation.Key, ref uint64, content string) Job {
	j := Job{
		ID:           uuid.NewString(),
		Conversation: key,
		Ref:          ref,
		Content:      content,
	}
	if key.Group {
		j.GroupID = key.ID
	} else {
		j.Recipients = []string{key.ID}
	}
	return j
}
