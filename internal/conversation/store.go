package conversation

import (
	"sort"
	"sync"
)

// Store holds the in-memory message sequences for every conversation, keyed
// by contact fingerprint or group id. One lock guards the whole store; every
// mutation site goes through it. The rendering side only ever observes state
// through Snapshot, which copies under the lock and releases it before the
// caller draws.
type Store struct {
	mu      sync.Mutex
	threads map[Key]*thread
}

// thread is one conversation's state. nextRef survives Clear so that refs
// held by in-flight jobs can never collide with messages appended later.
type thread struct {
	messages []Message
	nextRef  uint64
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{threads: make(map[Key]*thread)}
}

// getOrCreate returns the thread for key, creating it lazily. Caller must
// hold s.mu.
func (s *Store) getOrCreate(key Key) *thread {
	th, ok := s.threads[key]
	if !ok {
		th = &thread{nextRef: 1}
		s.threads[key] = th
	}
	return th
}

// Append appends msg to the conversation, assigning and returning its ref.
// The conversation is created implicitly if this is its first message.
func (s *Store) Append(key Key, msg Message) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.getOrCreate(key)
	msg.Ref = th.nextRef
	th.nextRef++
	th.messages = append(th.messages, msg)
	return msg.Ref
}

// UpdateStatus sets the status of the referenced message. Returns false
// without mutating when the message no longer exists (conversation cleared
// or contact removed while the job was in flight) or when the transition is
// not legal for the message's current status. Both cases are benign no-ops
// for callers.
func (s *Store) UpdateStatus(key Key, ref uint64, to Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.getOrCreate(key)
	for i := range th.messages {
		if th.messages[i].Ref != ref {
			continue
		}
		if !th.messages[i].Status.CanTransition(to) {
			return false
		}
		th.messages[i].Status = to
		return true
	}
	return false
}

// Lookup returns a copy of the referenced message.
func (s *Store) Lookup(key Key, ref uint64) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[key]
	if !ok {
		return Message{}, false
	}
	for i := range th.messages {
		if th.messages[i].Ref == ref {
			return th.messages[i], true
		}
	}
	return Message{}, false
}

// Snapshot returns a point-in-time copy of the conversation's messages.
// The returned slice is owned by the caller.
func (s *Store) Snapshot(key Key) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[key]
	if !ok {
		return nil
	}
	out := make([]Message, len(th.messages))
	copy(out, th.messages)
	return out
}

// Clear empties the conversation's message sequence. The ref counter is
// preserved, so status updates from jobs dispatched before the clear miss
// their ref and no-op instead of hitting a reused one. Clearing a
// conversation that does not exist is a no-op.
func (s *Store) Clear(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[key]
	if !ok {
		return
	}
	th.messages = nil
}

// MarkRetrying atomically checks that the referenced message is Failed and
// flips it to Pending, returning a copy of the flipped message for building
// the new send job. Returns false without mutating when the message is
// missing or not in Failed state.
func (s *Store) MarkRetrying(key Key, ref uint64) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[key]
	if !ok {
		return Message{}, false
	}
	for i := range th.messages {
		if th.messages[i].Ref != ref {
			continue
		}
		if th.messages[i].Status != StatusFailed {
			return Message{}, false
		}
		th.messages[i].Status = StatusPending
		return th.messages[i], true
	}
	return Message{}, false
}

// Discard removes the referenced message if it is still Pending. Used to
// roll back an optimistic append when the enqueue that followed it lost the
// capacity race. Returns whether a message was removed.
func (s *Store) Discard(key Key, ref uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[key]
	if !ok {
		return false
	}
	for i := range th.messages {
		if th.messages[i].Ref != ref {
			continue
		}
		if th.messages[i].Status != StatusPending {
			return false
		}
		th.messages = append(th.messages[:i], th.messages[i+1:]...)
		return true
	}
	return false
}

// Seed replaces the conversation's messages with a restored sequence, used
// when hydrating from the archive at boot. The ref counter resumes past the
// highest restored ref. Must be called before workers start.
func (s *Store) Seed(key Key, msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.getOrCreate(key)
	th.messages = make([]Message, len(msgs))
	copy(th.messages, msgs)
	for _, m := range msgs {
		if m.Ref >= th.nextRef {
			th.nextRef = m.Ref + 1
		}
	}
}

// Conversations returns the known conversation keys in stable order.
func (s *Store) Conversations() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]Key, 0, len(s.threads))
	for k := range s.threads {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return !keys[i].Group
		}
		return keys[i].ID < keys[j].ID
	})
	return keys
}
