package ingest

import (
	"time"

	"github.com/nocdem/dna-messenger-sub010/internal/bus"
	"github.com/nocdem/dna-messenger-sub010/internal/conversation"
	"github.com/nocdem/dna-messenger-sub010/internal/store"
	"github.com/nocdem/dna-messenger-sub010/internal/transport"
	"go.uber.org/zap"
)

// Engine consumes raw transport events and turns them into conversation
// entries: append to the in-memory store, mirror into the archive, then
// publish message.received so frontends re-snapshot.
type Engine struct {
	conversations *conversation.Store
	archive       *store.DB
	bus           *bus.Bus
	logger        *zap.Logger

	events   <-chan bus.Event
	unsub    func()
	done     chan struct{}
	loopDone chan struct{}
}

// NewEngine creates an ingest engine. Call Start to begin consuming.
func NewEngine(conversations *conversation.Store, archive *store.DB, b *bus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		conversations: conversations,
		archive:       archive,
		bus:           b,
		logger:        logger,
		done:          make(chan struct{}),
		loopDone:      make(chan struct{}),
	}
}

// Start subscribes to the transport namespace and launches the consume loop.
func (e *Engine) Start() {
	e.events, e.unsub = e.bus.Subscribe("transport.", 256)
	go e.loop()
}

// Stop unsubscribes and waits for the loop to drain.
func (e *Engine) Stop() {
	e.unsub()
	close(e.done)
	<-e.loopDone
}

func (e *Engine) loop() {
	defer close(e.loopDone)
	for {
		select {
		case evt := <-e.events:
			if evt.Kind != bus.KindTransportMessage {
				continue
			}
			in, ok := evt.Payload.(transport.Inbound)
			if !ok {
				e.logger.Warn("transport message with unexpected payload",
					zap.String("kind", evt.Kind))
				continue
			}
			e.handleInbound(in)
		case <-e.done:
			return
		}
	}
}

// handleInbound records one received message. Inbound messages arrive
// already delivered, so they enter the store at sent directly.
func (e *Engine) handleInbound(in transport.Inbound) {
	key := conversation.DirectKey(in.Conversation)
	if in.Group {
		key = conversation.GroupKey(in.Conversation)
	}
	typ := conversation.TypeText
	if in.Action {
		typ = conversation.TypeAction
	}

	now := time.Now()
	msg := conversation.Message{
		Sender:    in.Sender,
		Content:   in.Content,
		Timestamp: conversation.Stamp(now),
		Outgoing:  false,
		Status:    conversation.StatusSent,
		Type:      typ,
	}
	ref := e.conversations.Append(key, msg)

	convKey := key.String()
	if err := e.archive.UpsertMessage(&store.Message{
		ConvKey:     convKey,
		Ref:         ref,
		Sender:      in.Sender,
		Body:        in.Content,
		MessageType: string(typ),
		Outgoing:    false,
		Status:      string(conversation.StatusSent),
		Stamp:       msg.Timestamp,
		CreatedAt:   now.UnixMilli(),
	}); err != nil {
		e.logger.Warn("archive inbound append failed", zap.Error(err), zap.Uint64("ref", ref))
	}
	name := ""
	if !in.Group {
		// Direct conversations take the peer's display name; group names
		// are managed elsewhere.
		name = in.Sender
	}
	if err := e.archive.UpsertConversation(&store.Conversation{
		Key:                convKey,
		IsGroup:            in.Group,
		Name:               name,
		LastMessageAt:      now.UnixMilli(),
		LastMessagePreview: conversation.Preview(in.Content),
	}); err != nil {
		e.logger.Warn("archive conversation upsert failed", zap.Error(err))
	}

	e.logger.Info("message received",
		zap.String("conversation", convKey),
		zap.Uint64("ref", ref),
		zap.String("sender", in.Sender))
	e.bus.Publish(bus.Event{
		Kind:      bus.KindMessageReceived,
		Timestamp: now,
		Payload:   bus.MessageRef{Conversation: key.ID, Group: key.Group, Ref: ref},
	})
}
