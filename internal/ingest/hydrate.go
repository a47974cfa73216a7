package ingest

import (
	"fmt"

	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"go.uber.org/zap"
)

// hydrateLimit caps how many messages per conversation are loaded back into
// memory at startup. Older history stays reachable through the archive.
const hydrateLimit = 500

// Hydrate loads archived conversations into the in-memory store. Outgoing
// messages still marked pending belong to jobs that died with the previous
// process, so they are failed first; the retry path picks them up from
// there.
func Hydrate(conversations *conversation.Store, archive *store.DB, logger *zap.Logger) error {
	stale, err := archive.FailStalePending()
	if err != nil {
		return fmt.Errorf("failing stale pending messages: %w", err)
	}
	if stale > 0 {
		logger.Info("marked stale pending messages as failed", zap.Int64("count", stale))
	}

	keys, err := archive.ConversationKeys()
	if err != nil {
		return fmt.Errorf("listing conversations: %w", err)
	}
	for _, raw := range keys {
		rows, err := archive.ListMessages(raw, hydrateLimit)
		if err != nil {
			return fmt.Errorf("loading %s: %w", raw, err)
		}
		msgs := make([]conversation.Message, 0, len(rows))
		for _, r := range rows {
			msgs = append(msgs, conversation.Message{
				Ref:       r.Ref,
				Sender:    r.Sender,
				Content:   r.Body,
				Timestamp: r.Stamp,
				Outgoing:  r.Outgoing,
				Status:    conversation.Status(r.Status),
				Type:      conversation.Type(r.MessageType),
			})
		}
		conversations.Seed(conversation.ParseKey(raw), msgs)
	}

	logger.Info("conversations hydrated", zap.Int("count", len(keys)))
	return nil
}
