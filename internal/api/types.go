package api

import (
	"fmt"
	"time"
)

// StatusResponse is the engine status surface returned by GET /v1/status.
type StatusResponse struct {
	Profile       string      `json:"profile"`
	State         string      `json:"state"`
	Address       string      `json:"address,omitempty"`
	UptimeSeconds int64       `json:"uptime_seconds"`
	Queue         QueueStatus `json:"queue"`
	Conversations int64       `json:"conversations"`
	Messages      int64       `json:"messages"`
	Subscribers   int         `json:"subscribers"`
}

// QueueStatus reports send queue occupancy.
type QueueStatus struct {
	InFlight int `json:"in_flight"`
	Capacity int `json:"capacity"`
}

// ConversationSummary is one row of the conversation list.
type ConversationSummary struct {
	Key           string `json:"key"`
	Group         bool   `json:"group"`
	Name          string `json:"name,omitempty"`
	Preview       string `json:"preview,omitempty"`
	LastMessageAt int64  `json:"last_message_at"`
}

// MessageView is a message as frontends see it: the live in-memory state,
// including pending deliveries.
type MessageView struct {
	Ref       uint64 `json:"ref"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	Outgoing  bool   `json:"outgoing"`
	Status    string `json:"status"`
	Type      string `json:"type"`
}

// SearchHit is one full-text search result.
type SearchHit struct {
	Conversation string `json:"conversation"`
	Ref          uint64 `json:"ref"`
	Sender       string `json:"sender"`
	Snippet      string `json:"snippet"`
	Body         string `json:"body"`
	Stamp        string `json:"stamp"`
}

type sendRequest struct {
	Conversation string `json:"conversation"`
	Group        bool   `json:"group,omitempty"`
	Content      string `json:"content"`
}

type retryRequest struct {
	Conversation string `json:"conversation"`
	Group        bool   `json:"group,omitempty"`
	Ref          uint64 `json:"ref"`
}

type sendResponse struct {
	Conversation string `json:"conversation"`
	Group        bool   `json:"group,omitempty"`
	Ref          uint64 `json:"ref"`
}

type conversationsResponse struct {
	Conversations []ConversationSummary `json:"conversations"`
	Count         int                   `json:"count"`
}

type messagesResponse struct {
	Messages []MessageView `json:"messages"`
	Count    int           `json:"count"`
}

type searchResponse struct {
	Results []SearchHit `json:"results"`
	Count   int         `json:"count"`
}

type statusBody struct {
	Status string `json:"status"`
}

// streamEvent is the JSON shape of one server-sent event.
type streamEvent struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"ts"`
	Payload   any       `json:"payload,omitempty"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error is an engine error decoded from an API response.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
