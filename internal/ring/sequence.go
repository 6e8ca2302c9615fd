// Package ring implements the LMAX-disruptor-style sequencer and ring
// buffer used by the high-throughput queue engine (§4.1/§4.2): a
// pre-allocated slot array with single- or multi-producer sequence claiming
// and pluggable consumer wait strategies.
package ring

import (
	"sync/atomic"
)

// InitialSequenceValue is the sequence a fresh Sequence starts at: "nothing
// published yet".
const InitialSequenceValue int64 = -1

// Sequence is a monotonic 64-bit counter with atomic access, shared between
// producers, the ring buffer cursor, and consumer positions.
type Sequence struct {
	value int64
	_     [56]byte // pad to a cache line; avoids false sharing between sequences
}

// NewSequence returns a Sequence initialized to initial.
func NewSequence(initial int64) *Sequence {
	return &Sequence{value: initial}
}

func (s *Sequence) Get() int64 { return atomic.LoadInt64(&s.value) }

func (s *Sequence) Set(v int64) { atomic.StoreInt64(&s.value, v) }

func (s *Sequence) CompareAndSwap(old, new int64) bool {
	return atomic.CompareAndSwapInt64(&s.value, old, new)
}

func (s *Sequence) IncrementAndGet() int64 {
	return atomic.AddInt64(&s.value, 1)
}

func (s *Sequence) AddAndGet(n int64) int64 {
	return atomic.AddInt64(&s.value, n)
}

// MinSequence returns the smallest Get() across sequences, or fallback if
// sequences is empty.
func MinSequence(sequences []*Sequence, fallback int64) int64 {
	min := fallback
	for _, s := range sequences {
		if v := s.Get(); v < min {
			min = v
		}
	}
	return min
}
