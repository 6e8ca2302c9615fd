package queue

import (
	"context"
	"sort"
	"sync"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

// ChannelQueue is a bounded FIFO with drop-on-full, priority, and delayed
// visibility (§4.3). Priority is honored by scanning candidates rather than
// a heap — acceptable per the spec for the scale this core targets.
type ChannelQueue struct {
	mu      sync.Mutex
	notFull *sync.Cond
	opts    Options
	clock   config.TimeSource
	entries []*Entry
	closed  bool
}

func NewChannelQueue(opts Options, clock config.TimeSource) *ChannelQueue {
	q := &ChannelQueue{opts: opts, clock: clock}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds msg to the queue. When the queue is at MaxQueueLength and
// DropWhenFull is false, Enqueue blocks until space frees or ctx is
// cancelled; a cancelled enqueue leaves the queue unchanged. When
// DropWhenFull is true, the oldest entry is discarded to make room.
func (q *ChannelQueue) Enqueue(ctx context.Context, msg message.Message, opts EnqueueOptions) (*Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, message.ErrQueueClosed
	}

	if q.opts.MaxQueueLength > 0 && len(q.entries) >= q.opts.MaxQueueLength {
		if q.opts.DropWhenFull {
			q.dropOldestLocked()
		} else {
			if err := q.waitForSpaceLocked(ctx); err != nil {
				return nil, err
			}
		}
	}

	now := q.clock.Now()
	entry := &Entry{
		ID:         newEntryID(),
		Message:    msg,
		EnqueuedAt: now,
		VisibleAt:  now.Add(opts.Delay),
		Priority:   opts.Priority,
	}
	q.entries = append(q.entries, entry)
	q.notFull.Broadcast()
	return entry, nil
}

// waitForSpaceLocked blocks until the queue has room or ctx is done. Must be
// called with q.mu held; re-acquires it before returning.
func (q *ChannelQueue) waitForSpaceLocked(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.notFull.Broadcast()
			q.mu.Unlock()
		case <-stopWatch:
		}
	}()
	defer close(stopWatch)

	for !q.closed && q.opts.MaxQueueLength > 0 && len(q.entries) >= q.opts.MaxQueueLength {
		if err := ctx.Err(); err != nil {
			return message.NewError(message.ErrorKindCancelled, "queue.enqueue", "enqueue cancelled while waiting for space", err)
		}
		q.notFull.Wait()
	}
	if q.closed {
		return message.ErrQueueClosed
	}
	return nil
}

func (q *ChannelQueue) dropOldestLocked() {
	if len(q.entries) == 0 {
		return
	}
	oldest := 0
	for i, e := range q.entries {
		if e.EnqueuedAt.Before(q.entries[oldest].EnqueuedAt) {
			oldest = i
		}
	}
	q.entries = append(q.entries[:oldest], q.entries[oldest+1:]...)
}

// Dequeue returns the visible, not-yet-exhausted entry with the highest
// priority (lowest Priority value), breaking ties FIFO by EnqueuedAt.
// Increments DequeueCount and extends VisibleAt.
func (q *ChannelQueue) Dequeue() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	idx := -1
	for i, e := range q.entries {
		if e.VisibleAt.After(now) {
			continue
		}
		if q.opts.MaxDequeueCount > 0 && e.DequeueCount >= q.opts.MaxDequeueCount {
			continue
		}
		if idx == -1 {
			idx = i
			continue
		}
		if q.entries[i].Priority < q.entries[idx].Priority {
			idx = i
		} else if q.entries[i].Priority == q.entries[idx].Priority && q.entries[i].EnqueuedAt.Before(q.entries[idx].EnqueuedAt) {
			idx = i
		}
	}
	if idx == -1 {
		return Entry{}, false
	}
	e := q.entries[idx]
	e.DequeueCount++
	e.VisibleAt = now.Add(q.opts.VisibilityTimeout)
	q.notFull.Broadcast()
	return *e, true
}

// Peek returns up to count currently-visible entries without mutating
// state, ordered by (priority ASC, EnqueuedAt ASC).
func (q *ChannelQueue) Peek(count int) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	visible := make([]Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if !e.VisibleAt.After(now) {
			visible = append(visible, *e)
		}
	}
	sort.Slice(visible, func(i, j int) bool {
		if visible[i].Priority != visible[j].Priority {
			return visible[i].Priority < visible[j].Priority
		}
		return visible[i].EnqueuedAt.Before(visible[j].EnqueuedAt)
	})
	if count >= 0 && count < len(visible) {
		visible = visible[:count]
	}
	return visible
}

// Ack removes the entry identified by id. Returns false if unknown.
func (q *ChannelQueue) Ack(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.notFull.Broadcast()
			return true
		}
	}
	return false
}

// Reject releases the entry identified by id back for redelivery (requeue)
// or deletes it outright. Returns false if unknown.
func (q *ChannelQueue) Reject(id string, requeue bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, e := range q.entries {
		if e.ID != id {
			continue
		}
		if requeue {
			e.DequeueCount = 0
			e.VisibleAt = q.clock.Now()
		} else {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
		}
		q.notFull.Broadcast()
		return true
	}
	return false
}

// Depth returns the number of currently-visible entries.
func (q *ChannelQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	n := 0
	for _, e := range q.entries {
		if !e.VisibleAt.After(now) {
			n++
		}
	}
	return n
}

// Close marks the queue closed and wakes every blocked Enqueue, which then
// returns ErrQueueClosed.
func (q *ChannelQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.notFull.Broadcast()
	q.mu.Unlock()
}
