package ring

import (
	"go.heromessaging.dev/internal/message"
)

// ProducerType selects which Sequencer variant backs a RingBuffer.
type ProducerType int

const (
	ProducerSingle ProducerType = iota
	ProducerMulti
)

// EventFactory pre-fills every ring buffer slot at construction, eliminating
// per-publish allocation (§4.2).
type EventFactory[T any] func() T

// RingBuffer is the pre-allocated, power-of-two slot array at the center of
// the high-throughput queue engine (§4.2), grounded on the disruptor
// example's cache-aligned slot design generalized to a generic event type so
// callers can ring-buffer any payload, not just order requests.
type RingBuffer[T any] struct {
	bufferSize int64
	indexMask  int64
	slots      []T
	sequencer  Sequencer
	wait       WaitStrategy
	gating     []*Sequence
}

// NewRingBuffer constructs a RingBuffer. bufferSize must be a power of two.
func NewRingBuffer[T any](bufferSize int64, factory EventFactory[T], producer ProducerType, wait WaitStrategy) (*RingBuffer[T], error) {
	if bufferSize <= 0 || (bufferSize&(bufferSize-1)) != 0 {
		return nil, message.NewError(message.ErrorKindInvalidArgument, "ring.new", "buffer size must be a power of two", nil)
	}
	slots := make([]T, bufferSize)
	for i := range slots {
		slots[i] = factory()
	}
	rb := &RingBuffer[T]{
		bufferSize: bufferSize,
		indexMask:  bufferSize - 1,
		slots:      slots,
		wait:       wait,
	}
	switch producer {
	case ProducerMulti:
		rb.sequencer = NewMultiProducerSequencer(bufferSize, wait)
	default:
		rb.sequencer = NewSingleProducerSequencer(bufferSize, wait)
	}
	return rb, nil
}

// AddGatingSequences registers consumer sequences the sequencer must not
// overrun; call once per consumer before the buffer starts taking writes.
func (rb *RingBuffer[T]) AddGatingSequences(sequences ...*Sequence) {
	rb.gating = append(rb.gating, sequences...)
	switch s := rb.sequencer.(type) {
	case *SingleProducerSequencer:
		s.SetGatingSequences(rb.gating)
	case *MultiProducerSequencer:
		s.SetGatingSequences(rb.gating)
	}
}

func (rb *RingBuffer[T]) Next() (int64, error) { return rb.sequencer.Next() }

func (rb *RingBuffer[T]) NextN(n int64) (int64, error) { return rb.sequencer.NextN(n) }

// Get returns the pre-allocated slot at seq mod bufferSize for the caller
// to mutate in place before publishing.
func (rb *RingBuffer[T]) Get(seq int64) *T {
	return &rb.slots[seq&rb.indexMask]
}

func (rb *RingBuffer[T]) Publish(seq int64) {
	rb.sequencer.Publish(seq)
	rb.wait.SignalAllWhenBlocking()
}

func (rb *RingBuffer[T]) PublishRange(lo, hi int64) {
	rb.sequencer.PublishRange(lo, hi)
	rb.wait.SignalAllWhenBlocking()
}

// NewBarrier returns an object consumers use to wait for sequences, gated
// by any upstream consumer sequences they must not overtake.
func (rb *RingBuffer[T]) NewBarrier(dependents ...*Sequence) *SequenceBarrier {
	return newSequenceBarrier(rb.sequencer, rb.wait, dependents)
}

// GetCursor returns the highest published sequence, or -1 if none.
func (rb *RingBuffer[T]) GetCursor() int64 { return rb.sequencer.Cursor().Get() }

// GetRemainingCapacity returns BufferSize - (cursor - min(consumer_sequences)).
func (rb *RingBuffer[T]) GetRemainingCapacity() int64 {
	consumed := MinSequence(rb.gating, rb.sequencer.Cursor().Get())
	return rb.bufferSize - (rb.sequencer.Cursor().Get() - consumed)
}

func (rb *RingBuffer[T]) BufferSize() int64 { return rb.bufferSize }
