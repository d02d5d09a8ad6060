package sample

import (
	"context"
	"sync"
)

// DefaultCapacity is the depth of the shared sample queue.
const DefaultCapacity = 64

// Queue is a bounded FIFO of tagged samples shared by one producer and
// several consumers.
//
// The producer side (TrySend) never waits for space and is safe to call from
// conversion-complete handlers. The consumer side (Peek, Receive) blocks until
// the queue is non-empty. Every enqueue and dequeue bumps a version counter so
// a consumer that is not interested in the current head can sleep until the
// queue changes instead of spinning (see WaitChange).
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buf     []Sample
	head    int
	count   int
	version uint64
}

// NewQueue creates a queue holding at most capacity samples.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{buf: make([]Sample, capacity)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Cap returns the fixed capacity of the queue.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Len returns the number of queued samples.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// TrySend appends s to the tail. It returns false without waiting when the
// queue is full; the sample is then lost.
func (q *Queue) TrySend(s Sample) bool {
	q.mu.Lock()
	if q.count == len(q.buf) {
		q.mu.Unlock()
		return false
	}
	q.buf[(q.head+q.count)%len(q.buf)] = s
	q.count++
	q.version++
	q.mu.Unlock()

	// Wake every waiter: consumers of either tag may be parked on the queue.
	q.cond.Broadcast()
	return true
}

// Peek returns the head without removing it, waiting until the queue is
// non-empty. The returned version identifies the queue state the head was
// observed in and can be passed to WaitChange.
func (q *Queue) Peek(ctx context.Context) (Sample, uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.waitLocked(ctx, func() bool { return q.count > 0 }); err != nil {
		return Sample{}, 0, err
	}
	return q.buf[q.head], q.version, nil
}

// Receive removes and returns the head, waiting until the queue is non-empty.
func (q *Queue) Receive(ctx context.Context) (Sample, error) {
	q.mu.Lock()
	if err := q.waitLocked(ctx, func() bool { return q.count > 0 }); err != nil {
		q.mu.Unlock()
		return Sample{}, err
	}
	s := q.buf[q.head]
	q.buf[q.head] = Sample{}
	q.head = (q.head + 1) % len(q.buf)
	q.count--
	q.version++
	q.mu.Unlock()

	q.cond.Broadcast()
	return s, nil
}

// WaitChange blocks until the queue version differs from version.
func (q *Queue) WaitChange(ctx context.Context, version uint64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waitLocked(ctx, func() bool { return q.version != version })
}

// waitLocked waits on the condition variable until ready reports true or ctx
// is done. Must be called with q.mu held.
func (q *Queue) waitLocked(ctx context.Context, ready func() bool) error {
	if ready() {
		return nil
	}

	// Lock before broadcasting so the wakeup cannot slip in between the
	// ctx.Err check and cond.Wait below.
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for !ready() {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	return nil
}
