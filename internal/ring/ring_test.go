package ring

import (
	"sync"
	"testing"
	"time"
)

func newTestBuffer(t *testing.T, size int64, producer ProducerType) *RingBuffer[int] {
	t.Helper()
	rb, err := NewRingBuffer(size, func() int { return 0 }, producer, NewBusySpinWaitStrategy())
	if err != nil {
		t.Fatalf("NewRingBuffer: %v", err)
	}
	return rb
}

func TestNewRingBufferRejectsNonPowerOfTwo(t *testing.T) {
	_, err := NewRingBuffer(int64(100), func() int { return 0 }, ProducerSingle, NewBusySpinWaitStrategy())
	if err == nil {
		t.Fatal("expected error for non-power-of-two buffer size")
	}
}

func TestSingleProducerSequentialClaim(t *testing.T) {
	rb := newTestBuffer(t, 1024, ProducerSingle)
	for i := int64(0); i < 100; i++ {
		seq, err := rb.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if seq != i {
			t.Fatalf("expected sequence %d, got %d", i, seq)
		}
		rb.Publish(seq)
	}
	if rb.GetCursor() != 99 {
		t.Fatalf("expected cursor 99, got %d", rb.GetCursor())
	}
}

func TestMultiProducerUniqueClaims(t *testing.T) {
	rb := newTestBuffer(t, 4096, ProducerMulti)
	const producers, perProducer = 10, 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	claimed := make(map[int64]bool)

	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				seq, err := rb.Next()
				if err != nil {
					t.Errorf("Next: %v", err)
					return
				}
				mu.Lock()
				if claimed[seq] {
					t.Errorf("duplicate sequence claimed: %d", seq)
				}
				claimed[seq] = true
				mu.Unlock()
				rb.Publish(seq)
			}
		}()
	}
	wg.Wait()

	if len(claimed) != producers*perProducer {
		t.Fatalf("expected %d unique sequences, got %d", producers*perProducer, len(claimed))
	}
}

func TestMultiProducerGapDetection(t *testing.T) {
	rb := newTestBuffer(t, 16, ProducerMulti)

	s1, _ := rb.Next()
	s2, _ := rb.Next()
	s3, _ := rb.Next()

	// Publish s1 and s3 but not s2: the consumer must see the gap at s2.
	rb.sequencer.Publish(s1)
	rb.sequencer.Publish(s3)

	highest := rb.sequencer.GetHighestPublishedSequence(s1, s3)
	if highest != s1 {
		t.Fatalf("expected highest contiguous published sequence %d, got %d", s1, highest)
	}

	rb.sequencer.Publish(s2)
	highest = rb.sequencer.GetHighestPublishedSequence(s1, s3)
	if highest != s3 {
		t.Fatalf("expected highest contiguous published sequence %d after gap fill, got %d", s3, highest)
	}
}

func TestMultiProducerCursorAndBarrier(t *testing.T) {
	rb := newTestBuffer(t, 4096, ProducerMulti)
	barrier := rb.NewBarrier()
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				seq, err := rb.Next()
				if err != nil {
					t.Errorf("Next: %v", err)
					return
				}
				rb.Publish(seq)
			}
		}()
	}
	wg.Wait()

	want := int64(producers*perProducer - 1)

	done := make(chan int64, 1)
	go func() { done <- barrier.WaitFor(want) }()

	select {
	case got := <-done:
		if got != want {
			t.Fatalf("expected barrier to report sequence %d available, got %d", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("barrier.WaitFor never returned for a multi-producer ring buffer: cursor is not advancing")
	}

	if cursor := rb.GetCursor(); cursor != want {
		t.Fatalf("expected cursor %d after all publishes, got %d", want, cursor)
	}
}

func TestSequencerInvalidBatch(t *testing.T) {
	rb := newTestBuffer(t, 16, ProducerSingle)
	if _, err := rb.NextN(0); err == nil {
		t.Fatal("expected error for batch count 0")
	}
	if _, err := rb.NextN(17); err == nil {
		t.Fatal("expected error for batch count exceeding buffer size")
	}
}

func TestBarrierWaitForAvailable(t *testing.T) {
	rb := newTestBuffer(t, 16, ProducerSingle)
	barrier := rb.NewBarrier()

	seq, _ := rb.Next()
	rb.Publish(seq)

	got := barrier.WaitFor(seq)
	if got < seq {
		t.Fatalf("expected barrier to report sequence %d available, got %d", seq, got)
	}
}

func TestGetRemainingCapacity(t *testing.T) {
	rb := newTestBuffer(t, 16, ProducerSingle)
	if rb.GetRemainingCapacity() != 16 {
		t.Fatalf("expected full capacity 16 on fresh buffer, got %d", rb.GetRemainingCapacity())
	}
	consumerSeq := NewSequence(InitialSequenceValue)
	rb.AddGatingSequences(consumerSeq)

	seq, _ := rb.Next()
	rb.Publish(seq)

	if got := rb.GetRemainingCapacity(); got != 15 {
		t.Fatalf("expected remaining capacity 15 after one unconsumed publish, got %d", got)
	}
	consumerSeq.Set(seq)
	if got := rb.GetRemainingCapacity(); got != 16 {
		t.Fatalf("expected remaining capacity 16 after consumer catches up, got %d", got)
	}
}
