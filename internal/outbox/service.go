package outbox

import (
	"time"

	"github.com/nocdem/dna-messenger-sub010/internal/bus"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"github.com/nocdem/dna-messenger-sub010/internal/transport"
	"go.uber.org/zap"
)

// Service is the send entry point exposed to frontends. A fresh send and a
// retry share the same pre-flight checks and queue; retry additionally
// validates the failed-state entry condition.
type Service struct {
	conversations *conversation.Store
	queue         *Queue
	transport     transport.Transport
	archive       *store.DB
	bus           *bus.Bus
	logger        *zap.Logger
	self          string
}

// NewService creates the send/retry service. self is the display identity
// stamped on outgoing messages.
func NewService(conversations *conversation.Store, queue *Queue, tr transport.Transport, archive *store.DB, b *bus.Bus, logger *zap.Logger, self string) *Service {
	return &Service{
		conversations: conversations,
		queue:         queue,
		transport:     tr,
		archive:       archive,
		bus:           b,
		logger:        logger,
		self:          self,
	}
}

// Send optimistically appends a pending message to the conversation and
// enqueues a job for it. Returns the new message's ref. On ErrQueueFull or
// ErrNotConnected nothing is appended; the caller sees the rejection
// synchronously.
func (s *Service) Send(key conversation.Key, content string) (uint64, error) {
	if err := s.preflight(key); err != nil {
		return 0, err
	}

	now := time.Now()
	msg := conversation.Message{
		Sender:    s.self,
		Content:   content,
		Timestamp: conversation.Stamp(now),
		Outgoing:  true,
		Status:    conversation.StatusPending,
		Type:      conversation.TypeText,
	}
	ref := s.conversations.Append(key, msg)
	s.persistAppend(key, ref, msg, now)

	job := newJob(key, ref, content)
	if err := s.archive.InsertSendLog(job.ID, key.String(), ref); err != nil {
		s.logger.Warn("send log insert failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	// The queued announcement rides the acceptance hook so it is published
	// before the worker can post a completion event.
	err := s.queue.Enqueue(job, func() {
		s.logger.Info("message queued",
			zap.String("conversation", key.String()),
			zap.Uint64("ref", ref),
			zap.String("job_id", job.ID))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageQueued,
			Timestamp: now,
			Payload:   bus.MessageRef{Conversation: key.ID, Group: key.Group, Ref: ref},
		})
	})
	if err != nil {
		// Lost the capacity race after the pre-flight check. Roll the
		// optimistic append back so the rejection leaves no trace.
		s.conversations.Discard(key, ref)
		if derr := s.archive.DeleteMessage(key.String(), ref); derr != nil {
			s.logger.Warn("rollback delete failed", zap.Error(derr), zap.Uint64("ref", ref))
		}
		_ = s.archive.FinishSendLog(job.ID, "rejected", "queue full")
		s.reject(key, "queue_full")
		return 0, ErrQueueFull
	}
	return ref, nil
}

// Retry transitions a failed message back to pending and enqueues a fresh
// job for it. Rejection reasons are checked in priority order: invalid
// target, queue full, not connected, not retryable.
func (s *Service) Retry(key conversation.Key, ref uint64) error {
	if _, ok := s.conversations.Lookup(key, ref); !ok {
		// Stale UI state, not an error worth surfacing.
		s.logger.Warn("retry for unknown message",
			zap.String("conversation", key.String()),
			zap.Uint64("ref", ref))
		return ErrInvalidTarget
	}
	if err := s.preflight(key); err != nil {
		return err
	}

	msg, ok := s.conversations.MarkRetrying(key, ref)
	if !ok {
		s.logger.Warn("retry for non-failed message",
			zap.String("conversation", key.String()),
			zap.Uint64("ref", ref))
		return ErrNotRetryable
	}
	if err := s.archive.UpdateMessageStatus(key.String(), ref, string(conversation.StatusPending)); err != nil {
		s.logger.Warn("archive status write failed", zap.Error(err), zap.Uint64("ref", ref))
	}
	return s.dispatchRetry(key, msg)
}

// dispatchRetry enqueues the rebuilt job for a message already flipped back
// to pending. If the queue filled between the capacity check and this
// enqueue, the flip is reverted to failed; a pending message with no job to
// service it would be stuck forever.
func (s *Service) dispatchRetry(key conversation.Key, msg conversation.Message) error {
	job := newJob(key, msg.Ref, msg.Content)
	if err := s.archive.InsertSendLog(job.ID, key.String(), msg.Ref); err != nil {
		s.logger.Warn("send log insert failed", zap.Error(err), zap.String("job_id", job.ID))
	}
	err := s.queue.Enqueue(job, func() {
		s.logger.Info("message retry queued",
			zap.String("conversation", key.String()),
			zap.Uint64("ref", msg.Ref),
			zap.String("job_id", job.ID))
		s.bus.Publish(bus.Event{
			Kind:      bus.KindMessageRetrying,
			Timestamp: time.Now(),
			Payload:   bus.MessageRef{Conversation: key.ID, Group: key.Group, Ref: msg.Ref},
		})
	})
	if err != nil {
		s.conversations.UpdateStatus(key, msg.Ref, conversation.StatusFailed)
		_ = s.archive.UpdateMessageStatus(key.String(), msg.Ref, string(conversation.StatusFailed))
		_ = s.archive.FinishSendLog(job.ID, "rejected", "queue full")
		s.reject(key, "queue_full")
		return ErrQueueFull
	}
	return nil
}

// Clear empties the conversation in memory and in the archive. Jobs already
// in flight for it complete as no-ops.
func (s *Service) Clear(key conversation.Key) error {
	s.conversations.Clear(key)
	if err := s.archive.ClearMessages(key.String()); err != nil {
		return err
	}
	s.logger.Info("conversation cleared", zap.String("conversation", key.String()))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindConversationCleared,
		Timestamp: time.Now(),
		Payload:   key.String(),
	})
	return nil
}

// preflight runs the checks shared by fresh sends and retries: queue
// capacity first, then the live transport session. Both reject before any
// state mutation.
func (s *Service) preflight(key conversation.Key) error {
	if s.queue.InFlight() >= Capacity {
		s.reject(key, "queue_full")
		return ErrQueueFull
	}
	if !s.transport.Ready() {
		s.reject(key, "not_connected")
		return ErrNotConnected
	}
	return nil
}

// reject surfaces a queue-full or not-connected rejection as a log line and
// a bus notice for frontends.
func (s *Service) reject(key conversation.Key, reason string) {
	s.logger.Warn("send rejected",
		zap.String("conversation", key.String()),
		zap.String("reason", reason))
	s.bus.Publish(bus.Event{
		Kind:      bus.KindOutboxRejected,
		Timestamp: time.Now(),
		Payload:   bus.Rejection{Conversation: key.ID, Group: key.Group, Reason: reason},
	})
}

// persistAppend mirrors the optimistic append into the archive so the
// message survives a restart even if the process dies mid-flight.
func (s *Service) persistAppend(key conversation.Key, ref uint64, msg conversation.Message, now time.Time) {
	convKey := key.String()
	if err := s.archive.UpsertMessage(&store.Message{
		ConvKey:     convKey,
		Ref:         ref,
		Sender:      msg.Sender,
		Body:        msg.Content,
		MessageType: string(msg.Type),
		Outgoing:    true,
		Status:      string(msg.Status),
		Stamp:       msg.Timestamp,
		CreatedAt:   now.UnixMilli(),
	}); err != nil {
		s.logger.Warn("archive append failed", zap.Error(err), zap.Uint64("ref", ref))
	}
	if err := s.archive.UpsertConversation(&store.Conversation{
		Key:                convKey,
		IsGroup:            key.Group,
		LastMessageAt:      now.UnixMilli(),
		LastMessagePreview: conversation.Preview(msg.Content),
	}); err != nil {
		s.logger.Warn("archive conversation upsert failed", zap.Error(err))
	}
}
