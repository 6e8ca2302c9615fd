package ring

import (
	"runtime"
	"sync/atomic"

	"go.heromessaging.dev/internal/message"
)

// Sequencer coordinates claiming and publishing sequences against a fixed-
// size ring buffer (§4.1). SingleProducerSequencer and MultiProducerSequencer
// are the two variants the spec requires.
type Sequencer interface {
	Next() (int64, error)
	NextN(n int64) (int64, error)
	Publish(seq int64)
	PublishRange(lo, hi int64)
	IsAvailable(seq int64) bool
	GetHighestPublishedSequence(lo, hi int64) int64
	Cursor() *Sequence
}

func invalidBatch(op string, n, bufferSize int64) error {
	return message.NewError(message.ErrorKindInvalidArgument, op, "batch count must be > 0 and <= buffer size", nil)
}

// SingleProducerSequencer claims sequences with a plain increment — safe
// only when exactly one goroutine ever calls Next/NextN.
type SingleProducerSequencer struct {
	bufferSize int64
	wait       WaitStrategy
	cursor     *Sequence
	gating     []*Sequence
	nextValue  int64
	cached     int64
}

func NewSingleProducerSequencer(bufferSize int64, wait WaitStrategy) *SingleProducerSequencer {
	return &SingleProducerSequencer{
		bufferSize: bufferSize,
		wait:       wait,
		cursor:     NewSequence(InitialSequenceValue),
		nextValue:  InitialSequenceValue,
		cached:     InitialSequenceValue,
	}
}

// SetGatingSequences registers the consumer sequences producers must not
// overrun; called once during ring buffer wiring.
func (s *SingleProducerSequencer) SetGatingSequences(gating []*Sequence) { s.gating = gating }

func (s *SingleProducerSequencer) Cursor() *Sequence { return s.cursor }

func (s *SingleProducerSequencer) Next() (int64, error) { return s.NextN(1) }

func (s *SingleProducerSequencer) NextN(n int64) (int64, error) {
	if n <= 0 || n > s.bufferSize {
		return 0, invalidBatch("ring.sequencer.next", n, s.bufferSize)
	}
	nextValue := s.nextValue + n
	wrapPoint := nextValue - s.bufferSize
	cachedGating := s.cached

	if wrapPoint > cachedGating || cachedGating > s.nextValue {
		for wrapPoint > MinSequence(s.gating, s.nextValue) {
			runtime.Gosched()
		}
		s.cached = MinSequence(s.gating, s.nextValue)
	}
	s.nextValue = nextValue
	return nextValue, nil
}

func (s *SingleProducerSequencer) Publish(seq int64) { s.cursor.Set(seq) }

func (s *SingleProducerSequencer) PublishRange(lo, hi int64) { s.cursor.Set(hi) }

// IsAvailable reports seq <= cursor for single-producer: the cursor only
// ever advances to fully-written sequences.
func (s *SingleProducerSequencer) IsAvailable(seq int64) bool { return seq <= s.cursor.Get() }

func (s *SingleProducerSequencer) GetHighestPublishedSequence(lo, hi int64) int64 {
	if hi <= s.cursor.Get() {
		return hi
	}
	return s.cursor.Get()
}

// MultiProducerSequencer claims sequences with an atomic fetch-and-add and
// publishes via a per-slot availability marker so readers can detect gaps
// left by a producer that claimed but hasn't yet published (grounded on the
// disruptor example's CAS-loop sequencer).
type MultiProducerSequencer struct {
	bufferSize  int64
	indexMask   int64
	indexShift  uint
	wait        WaitStrategy
	cursor      *Sequence
	gating      []*Sequence
	available   []int32 // stores the wrap "round" each slot was published for
	claimCursor int64    // highest claimed (not necessarily published) sequence
}

func NewMultiProducerSequencer(bufferSize int64, wait WaitStrategy) *MultiProducerSequencer {
	shift := uint(0)
	for (int64(1) << shift) < bufferSize {
		shift++
	}
	available := make([]int32, bufferSize)
	for i := range available {
		available[i] = -1
	}
	return &MultiProducerSequencer{
		bufferSize:  bufferSize,
		indexMask:   bufferSize - 1,
		indexShift:  shift,
		wait:        wait,
		cursor:      NewSequence(InitialSequenceValue),
		available:   available,
		claimCursor: InitialSequenceValue,
	}
}

func (s *MultiProducerSequencer) SetGatingSequences(gating []*Sequence) { s.gating = gating }

func (s *MultiProducerSequencer) Cursor() *Sequence { return s.cursor }

func (s *MultiProducerSequencer) Next() (int64, error) { return s.NextN(1) }

func (s *MultiProducerSequencer) NextN(n int64) (int64, error) {
	if n <= 0 || n > s.bufferSize {
		return 0, invalidBatch("ring.sequencer.next", n, s.bufferSize)
	}
	for {
		current := atomic.LoadInt64(&s.claimCursor)
		next := current + n
		wrapPoint := next - s.bufferSize
		gatingSeq := MinSequence(s.gating, current)
		if wrapPoint > gatingSeq {
			runtime.Gosched()
			continue
		}
		if atomic.CompareAndSwapInt64(&s.claimCursor, current, next) {
			return next, nil
		}
	}
}

func (s *MultiProducerSequencer) round(seq int64) int32 {
	return int32(seq >> s.indexShift)
}

func (s *MultiProducerSequencer) index(seq int64) int64 {
	return seq & s.indexMask
}

func (s *MultiProducerSequencer) Publish(seq int64) {
	atomic.StoreInt32(&s.available[s.index(seq)], s.round(seq))
	s.advanceCursor(seq)
	s.wait.SignalAllWhenBlocking()
}

func (s *MultiProducerSequencer) PublishRange(lo, hi int64) {
	for seq := lo; seq <= hi; seq++ {
		atomic.StoreInt32(&s.available[s.index(seq)], s.round(seq))
	}
	s.advanceCursor(hi)
	s.wait.SignalAllWhenBlocking()
}

// advanceCursor moves the cursor up to the highest sequence contiguously
// published since its current value, so a reader's WaitFor (which gates on
// Cursor, not on available directly) observes the same readability
// GetHighestPublishedSequence would report. A CAS loop is needed because
// concurrent publishers may race to advance past each other's slots.
func (s *MultiProducerSequencer) advanceCursor(hi int64) {
	for {
		current := s.cursor.Get()
		if hi <= current {
			return
		}
		highest := s.GetHighestPublishedSequence(current+1, atomic.LoadInt64(&s.claimCursor))
		if highest < current+1 {
			return
		}
		if s.cursor.CompareAndSwap(current, highest) {
			return
		}
	}
}

func (s *MultiProducerSequencer) IsAvailable(seq int64) bool {
	return atomic.LoadInt32(&s.available[s.index(seq)]) == s.round(seq)
}

// GetHighestPublishedSequence scans from lo upward and returns the greatest
// contiguous published sequence up to hi, stopping at the first gap.
func (s *MultiProducerSequencer) GetHighestPublishedSequence(lo, hi int64) int64 {
	for seq := lo; seq <= hi; seq++ {
		if !s.IsAvailable(seq) {
			return seq - 1
		}
	}
	return hi
}
