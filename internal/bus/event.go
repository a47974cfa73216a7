package bus

import "time"

// Event kinds published by the engine. Subscribers filter by namespace
// prefix, so "message." matches every message lifecycle event.
const (
	// KindMessageQueued fires when a send job is accepted by the outbox.
	KindMessageQueued = "message.queued"
	// KindMessageSent fires when the transport accepted an outgoing message.
	KindMessageSent = "message.sent"
	// KindMessageFailed fires when the transport rejected an outgoing message.
	KindMessageFailed = "message.failed"
	// KindMessageReceived fires when an inbound message was ingested.
	KindMessageReceived = "message.received"
	// KindMessageRetrying fires when a failed message was flipped back to
	// pending and requeued.
	KindMessageRetrying = "message.retrying"

	// KindOutboxRejected fires when a send or retry was rejected before a
	// job was created (queue full, no session). Frontends surface these as
	// user-visible notices.
	KindOutboxRejected = "outbox.rejected"

	// KindConversationCleared fires when a conversation's messages were
	// dropped by user action.
	KindConversationCleared = "conversation.cleared"

	// KindConnStatusChanged fires on engine connection state transitions.
	KindConnStatusChanged = "conn.status_changed"

	// KindTransportMessage carries a raw inbound transport message for the
	// ingest engine.
	KindTransportMessage = "transport.message"
	// KindTransportStatus carries transport-level connectivity changes.
	KindTransportStatus = "transport.status"
)

// Event is a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef is the payload for message lifecycle events: enough for a
// frontend to re-snapshot the affected conversation. Tagged for the API
// event stream.
type MessageRef struct {
	Conversation string `json:"conversation"`
	Group        bool   `json:"group,omitempty"`
	Ref          uint64 `json:"ref"`
}

// Rejection is the payload for outbox.rejected events.
type Rejection struct {
	Conversation string `json:"conversation"`
	Group        bool   `json:"group,omitempty"`
	Reason       string `json:"reason"`
}
