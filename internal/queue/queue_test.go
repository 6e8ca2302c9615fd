package queue

import (
	"context"
	"testing"
	"time"

	"go.heromessaging.dev/internal/config"
	"go.heromessaging.dev/internal/message"
)

func TestChannelQueueFIFOWithPriority(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	q := NewChannelQueue(Options{MaxQueueLength: 10, MaxDequeueCount: 5, VisibilityTimeout: time.Minute}, clock)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, message.NewCommand("a", nil), EnqueueOptions{Priority: 10}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, message.NewCommand("b", nil), EnqueueOptions{Priority: 1}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, message.NewCommand("c", nil), EnqueueOptions{Priority: 5}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, ok := q.Dequeue()
	if !ok || first.Priority != 1 {
		t.Fatalf("expected priority-1 message first, got %+v (ok=%v)", first, ok)
	}
	second, ok := q.Dequeue()
	if !ok || second.Priority != 5 {
		t.Fatalf("expected priority-5 message second, got %+v (ok=%v)", second, ok)
	}
	third, ok := q.Dequeue()
	if !ok || third.Priority != 10 {
		t.Fatalf("expected priority-10 message third, got %+v (ok=%v)", third, ok)
	}
}

func TestVisibilityTimeoutRequeue(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	q := NewChannelQueue(Options{MaxQueueLength: 10, MaxDequeueCount: 2, VisibilityTimeout: 5 * time.Minute}, clock)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, message.NewCommand("a", nil), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected first dequeue to succeed")
	}
	if depth := q.Depth(); depth != 0 {
		t.Fatalf("expected depth 0 immediately after dequeue, got %d", depth)
	}

	clock.Advance(6 * time.Minute)
	if depth := q.Depth(); depth != 1 {
		t.Fatalf("expected depth 1 after visibility timeout elapses, got %d", depth)
	}

	if _, ok := q.Dequeue(); !ok {
		t.Fatal("expected second dequeue to succeed")
	}
	clock.Advance(6 * time.Minute)
	if _, ok := q.Dequeue(); ok {
		t.Fatal("expected third dequeue to fail: MaxDequeueCount exhausted")
	}
}

func TestEnqueueDropWhenFull(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	q := NewChannelQueue(Options{MaxQueueLength: 2, DropWhenFull: true, VisibilityTimeout: time.Minute, MaxDequeueCount: 5}, clock)
	ctx := context.Background()

	first, _ := q.Enqueue(ctx, message.NewCommand("a", nil), EnqueueOptions{})
	clock.Advance(time.Second)
	q.Enqueue(ctx, message.NewCommand("b", nil), EnqueueOptions{})
	clock.Advance(time.Second)
	q.Enqueue(ctx, message.NewCommand("c", nil), EnqueueOptions{})

	if q.Depth() != 2 {
		t.Fatalf("expected depth capped at 2, got %d", q.Depth())
	}
	entries := q.Peek(10)
	for _, e := range entries {
		if e.ID == first.ID {
			t.Fatal("expected oldest entry to be dropped when full")
		}
	}
}

func TestEnqueueCancelledLeavesQueueUnchanged(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	q := NewChannelQueue(Options{MaxQueueLength: 1, DropWhenFull: false, VisibilityTimeout: time.Minute, MaxDequeueCount: 5}, clock)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, message.NewCommand("a", nil), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()

	before := q.Depth()
	_, err := q.Enqueue(cancelCtx, message.NewCommand("b", nil), EnqueueOptions{})
	if message.KindOf(err) != message.ErrorKindCancelled {
		t.Fatalf("expected cancelled error, got %v", err)
	}
	if q.Depth() != before {
		t.Fatalf("expected queue depth unchanged after cancelled enqueue, got %d want %d", q.Depth(), before)
	}
}

func TestAckAndReject(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	q := NewChannelQueue(Options{MaxQueueLength: 10, VisibilityTimeout: time.Minute, MaxDequeueCount: 5}, clock)
	ctx := context.Background()

	entry, _ := q.Enqueue(ctx, message.NewCommand("a", nil), EnqueueOptions{})
	got, ok := q.Dequeue()
	if !ok || got.ID != entry.ID {
		t.Fatalf("expected to dequeue the enqueued entry")
	}

	if !q.Reject(entry.ID, true) {
		t.Fatal("expected reject-requeue to succeed")
	}
	if q.Depth() != 1 {
		t.Fatalf("expected requeued entry to become visible again, depth=%d", q.Depth())
	}

	got2, ok := q.Dequeue()
	if !ok || got2.ID != entry.ID {
		t.Fatal("expected to re-dequeue the requeued entry")
	}
	if !q.Ack(entry.ID) {
		t.Fatal("expected ack to succeed")
	}
	if q.Ack(entry.ID) {
		t.Fatal("expected second ack of the same id to fail")
	}
}

func TestStorageUnknownQueueBehavior(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	s := NewInMemoryStorage(clock)

	if _, ok := s.Dequeue("missing"); ok {
		t.Fatal("expected Dequeue on unknown queue to report false, not panic")
	}
	if peeked := s.Peek("missing", 10); peeked != nil {
		t.Fatalf("expected nil Peek result on unknown queue, got %v", peeked)
	}
	if depth := s.GetQueueDepth("missing"); depth != 0 {
		t.Fatalf("expected depth 0 on unknown queue, got %d", depth)
	}
	if s.Ack("missing", "id") {
		t.Fatal("expected Ack on unknown queue to report false")
	}
	if s.Reject("missing", "id", true) {
		t.Fatal("expected Reject on unknown queue to report false")
	}
}

func TestStorageEnqueueAutoCreates(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	s := NewInMemoryStorage(clock)

	if s.QueueExists("orders") {
		t.Fatal("queue should not exist before first use")
	}
	if _, err := s.Enqueue(context.Background(), "orders", message.NewCommand("a", nil), EnqueueOptions{}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !s.QueueExists("orders") {
		t.Fatal("expected auto-created queue to exist")
	}
}

func TestCreateQueueDuplicate(t *testing.T) {
	clock := config.NewFixedClock(time.Unix(0, 0))
	s := NewInMemoryStorage(clock)

	if !s.CreateQueue("orders", DefaultOptions()) {
		t.Fatal("expected first CreateQueue to succeed")
	}
	if s.CreateQueue("orders", DefaultOptions()) {
		t.Fatal("expected duplicate CreateQueue to fail")
	}
}
