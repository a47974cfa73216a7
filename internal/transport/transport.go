package transport

import "context"

// Transport is the send surface of the messenger network layer. The delivery
// engine only ever talks to the network through it.
type Transport interface {
	// Send delivers content to each recipient contact fingerprint. An error
	// means at least one delivery was not accepted by the network layer.
	Send(ctx context.Context, recipients []string, content string) error
	// SendGroup delivers content to a group conversation.
	SendGroup(ctx context.Context, groupID string, content string) error
	// Ready reports whether a live session exists. Send paths short-circuit
	// with a not-connected rejection while it returns false.
	Ready() bool
}

// Inbound is a message received from the network, published on the bus for
// the ingest engine.
type Inbound struct {
	Conversation string // sender fingerprint, or group id for group chats
	Group        bool
	Sender       string // display name, falling back to the fingerprint
	Content      string
	Action       bool // "/me" style action message
}
