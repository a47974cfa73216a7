package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/nocdem/dna-messenger-sub010/internal/bus"
	"github.com/nocdem/dna-messenger-sub010/internal/conn"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/outbox"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"go.uber.org/zap"
)

// AddressProvider reports the engine's own network address, shown in status
// output so users can share it.
type AddressProvider interface {
	SelfAddress() string
}

// Deps bundles everything the API surface reads or drives.
type Deps struct {
	Profile       string
	Conversations *conversation.Store
	Outbox        *outbox.Service
	Queue         *outbox.Queue
	Archive       *store.DB
	Machine       *conn.Machine
	Bus           *bus.Bus
	Address       AddressProvider
	Logger        *zap.Logger
}

// Handler serves the engine's local HTTP API. It is the only surface
// frontends talk to; all send, retry and clear traffic funnels through it
// into the outbox service.
type Handler struct {
	deps    Deps
	started time.Time
}

// NewHandler creates the API handler.
func NewHandler(d Deps) *Handler {
	return &Handler{deps: d, started: time.Now()}
}

// Router builds the route table.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/status", h.Status).Methods("GET")
	v1.HandleFunc("/send", h.Send).Methods("POST")
	v1.HandleFunc("/retry", h.Retry).Methods("POST")
	v1.HandleFunc("/conversations", h.ListConversations).Methods("GET")
	v1.HandleFunc("/conversations/{key}/messages", h.ListMessages).Methods("GET")
	v1.HandleFunc("/conversations/{key}/messages", h.ClearMessages).Methods("DELETE")
	v1.HandleFunc("/search", h.Search).Methods("GET")
	v1.HandleFunc("/events", h.Events).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	return r
}

// Status reports connection state, queue occupancy and archive counts.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	convCount, msgCount, err := h.deps.Archive.Counts()
	if err != nil {
		h.internalError(w, "archive counts", err)
		return
	}
	resp := StatusResponse{
		Profile:       h.deps.Profile,
		State:         string(h.deps.Machine.Current()),
		UptimeSeconds: int64(time.Since(h.started).Seconds()),
		Queue: QueueStatus{
			InFlight: h.deps.Queue.InFlight(),
			Capacity: outbox.Capacity,
		},
		Conversations: convCount,
		Messages:      msgCount,
		Subscribers:   h.deps.Bus.SubscriberCount(),
	}
	if h.deps.Address != nil {
		resp.Address = h.deps.Address.SelfAddress()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send accepts an outgoing message for asynchronous delivery. A 202 means
// the message was appended as pending and a job holds a queue slot; it does
// not mean the message reached the peer.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Conversation == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "conversation is required")
		return
	}
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "content is empty")
		return
	}

	key := conversation.DirectKey(req.Conversation)
	if req.Group {
		key = conversation.GroupKey(req.Conversation)
	}
	ref, err := h.deps.Outbox.Send(key, req.Content)
	if err != nil {
		h.outboxError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sendResponse{
		Conversation: key.ID,
		Group:        key.Group,
		Ref:          ref,
	})
}

// Retry requeues a failed message.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if req.Conversation == "" || req.Ref == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "conversation and ref are required")
		return
	}

	key := conversation.DirectKey(req.Conversation)
	if req.Group {
		key = conversation.GroupKey(req.Conversation)
	}
	if err := h.deps.Outbox.Retry(key, req.Ref); err != nil {
		h.outboxError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sendResponse{
		Conversation: key.ID,
		Group:        key.Group,
		Ref:          req.Ref,
	})
}

// ListConversations returns the archived conversation list, most recently
// active first.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)
	rows, err := h.deps.Archive.ListConversations(limit, offset)
	if err != nil {
		h.internalError(w, "list conversations", err)
		return
	}
	out := make([]ConversationSummary, 0, len(rows))
	for _, c := range rows {
		out = append(out, ConversationSummary{
			Key:           c.Key,
			Group:         c.IsGroup,
			Name:          c.Name,
			Preview:       c.LastMessagePreview,
			LastMessageAt: c.LastMessageAt,
		})
	}
	writeJSON(w, http.StatusOK, conversationsResponse{Conversations: out, Count: len(out)})
}

// ListMessages returns the live in-memory view of one conversation,
// pending messages included. Unknown conversations yield an empty list.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	key := conversation.ParseKey(mux.Vars(r)["key"])
	msgs := h.deps.Conversations.Snapshot(key)
	if limit := queryInt(r, "limit", 0); limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MessageView{
			Ref:       m.Ref,
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Outgoing:  m.Outgoing,
			Status:    string(m.Status),
			Type:      string(m.Type),
		})
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: out, Count: len(out)})
}

// ClearMessages empties a conversation in memory and in the archive.
func (h *Handler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	key := conversation.ParseKey(mux.Vars(r)["key"])
	if err := h.deps.Outbox.Clear(key); err != nil {
		h.internalError(w, "clear conversation", err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "cleared"})
}

// Search runs a full-text query over the archive, optionally scoped to one
// conversation.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "q is required")
		return
	}
	convKey := r.URL.Query().Get("conversation")
	limit := queryInt(r, "limit", 25)

	results, err := h.deps.Archive.SearchMessages(query, convKey, limit)
	if err != nil {
		h.internalError(w, "search", err)
		return
	}
	out := make([]SearchHit, 0, len(results))
	for _, res := range results {
		out = append(out, SearchHit{
			Conversation: res.Message.ConvKey,
			Ref:          res.Message.Ref,
			Sender:       res.Message.Sender,
			Snippet:      res.Snippet,
			Body:         res.Message.Body,
			Stamp:        res.Message.Stamp,
		})
	}
	writeJSON(w, http.StatusOK, searchResponse{Results: out, Count: len(out)})
}

// Health answers liveness probes, checking the archive connection.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Archive.Ping(); err != nil {
		writeError(w, http.StatusServiceUnavailable, "unhealthy", "archive unavailable")
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: "ok"})
}

// outboxError maps outbox rejections onto HTTP status codes. The code field
// is stable; clients dispatch on it, not on the message text.
func (h *Handler) outboxError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, outbox.ErrQueueFull):
		writeError(w, http.StatusTooManyRequests, "queue_full", err.Error())
	case errors.Is(err, outbox.ErrNotConnected):
		writeError(w, http.StatusServiceUnavailable, "not_connected", err.Error())
	case errors.Is(err, outbox.ErrInvalidTarget):
		writeError(w, http.StatusNotFound, "invalid_target", err.Error())
	case errors.Is(err, outbox.ErrNotRetryable):
		writeError(w, http.StatusConflict, "not_retryable", err.Error())
	default:
		h.internalError(w, "outbox", err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.deps.Logger.Error("api request failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
