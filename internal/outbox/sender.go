package outbox

import (
	"context"
	"time"

	"github.com/nocdem/dna-messenger-sub010/internal/bus"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"github.com/nocdem/dna-messenger-sub010/internal/transport"
	"go.uber.org/zap"
)

// Sender executes one accepted job against the transport and writes the
// resulting status back into the conversation store and the archive. It
// never retries on its own; retry is always an explicit user action.
type Sender struct {
	conversations *conversation.Store
	transport     transport.Transport
	archive       *store.DB
	bus           *bus.Bus
	logger        *zap.Logger
}

// NewSender creates a sender writing outcomes back through the given stores.
func NewSender(conversations *conversation.Store, tr transport.Transport, archive *store.DB, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		conversations: conversations,
		transport:     tr,
		archive:       archive,
		bus:           b,
		logger:        logger,
	}
}

// Process runs the job's transport call and posts the completion status.
// The transport call may block; Process always runs off the caller thread.
func (s *Sender) Process(ctx context.Context, job Job) {
	var err error
	if job.GroupID != "" {
		err = s.transport.SendGroup(ctx, job.GroupID, job.Content)
	} else {
		err = s.transport.Send(ctx, job.Recipients, job.Content)
	}

	if err != nil {
		s.complete(job, conversation.StatusFailed, err)
		return
	}
	s.complete(job, conversation.StatusSent, nil)
}

// complete writes the final status for a job. A transport success is
// network-layer acceptance, not an end-to-end delivery receipt.
func (s *Sender) complete(job Job, status conversation.Status, sendErr error) {
	updated := s.conversations.UpdateStatus(job.Conversation, job.Ref, status)

	convKey := job.Conversation.String()
	if err := s.archive.UpdateMessageStatus(convKey, job.Ref, string(status)); err != nil {
		s.logger.Warn("archive status write failed", zap.Error(err), zap.String("job_id", job.ID))
	}

	outcome := "sent"
	errMsg := ""
	if sendErr != nil {
		outcome = "failed"
		errMsg = sendErr.Error()
	}
	if err := s.archive.FinishSendLog(job.ID, outcome, errMsg); err != nil {
		s.logger.Warn("send log write failed", zap.Error(err), zap.String("job_id", job.ID))
	}

	if !updated {
		// Conversation was cleared while the job was in flight. The update
		// is a benign no-op; nobody is looking at this message anymore.
		s.logger.Info("completion for vanished message",
			zap.String("conversation", convKey),
			zap.Uint64("ref", job.Ref),
			zap.String("outcome", outcome))
		return
	}

	ref := bus.MessageRef{
		Conversation: job.Conversation.ID,
		Group:        job.Conversation.Group,
		Ref:          job.Ref,
	}
	if sendErr != nil {
		s.logger.Error("message send failed",
			zap.Error(sendErr),
			zap.String("conversation", convKey),
			zap.Uint64("ref", job.Ref),
			zap.String("job_id", job.ID))
		s.bus.Publish(bus.Event{Kind: bus.KindMessageFailed, Timestamp: time.Now(), Payload: ref})
		return
	}

	s.logger.Info("message sent",
		zap.String("conversation", convKey),
		zap.Uint64("ref", job.Ref),
		zap.String("job_id", job.ID))
	s.bus.Publish(bus.Event{Kind: bus.KindMessageSent, Timestamp: time.Now(), Payload: ref})
}
