package outbox

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Capacity is the maximum number of concurrently in-flight send jobs. A job
// holds its slot from acceptance until its completion status write.
const Capacity = 20

// Queue is the bounded send queue. Enqueue is an atomic check-and-insert
// that never blocks the caller; accepted jobs run on their own goroutine.
// Acceptance order is FIFO, completion order is unconstrained.
type Queue struct {
	sender *Sender
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight int
}

// NewQueue creates a queue dispatching into the given sender.
func NewQueue(sender *Sender, logger *zap.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		sender: sender,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Enqueue accepts the job or rejects it with ErrQueueFull. The capacity
// check and the slot insert are one atomic step, so concurrent enqueues can
// never over-admit. onAccept, if set, runs after the slot is taken and
// before the worker starts; anything announced there is ordered before the
// job's completion events.
func (q *Queue) Enqueue(job Job, onAccept func()) error {
	q.mu.Lock()
	if q.inflight >= Capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.inflight++
	q.mu.Unlock()

	if onAccept != nil {
		onAccept()
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		// The completion status write happens inside Process; only then is
		// the slot given back.
		q.sender.Process(q.ctx, job)
		q.release()
	}()
	return nil
}

// InFlight returns the number of jobs currently holding a capacity slot.
func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inflight
}

// Stop cancels the worker context and waits for in-flight jobs to post
// their completion status.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
	q.logger.Info("send queue drained")
}

func (q *Queue) release() {
	q.mu.Lock()
	q.inflight--
	q.mu.Unlock()
}
