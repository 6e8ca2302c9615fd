package ring

import (
	"runtime"
	"sync"
	"time"
)

// WaitStrategy abstracts how a consumer waits for a sequence to become
// available (§4.1). Each variant is a monomorphic struct implementing this
// one interface — Go has no zero-cost generic specialization that would
// erase the call, so this interface dispatch is the single unavoidable
// indirection per poll (see DESIGN.md).
type WaitStrategy interface {
	// WaitFor blocks until cursor (and every dependent) has advanced to at
	// least seq, then returns the highest available sequence.
	WaitFor(seq int64, cursor *Sequence, dependents []*Sequence) int64
	// SignalAllWhenBlocking wakes any waiters parked on a condition
	// variable; a no-op for spinning strategies.
	SignalAllWhenBlocking()
}

func highestAvailable(cursor *Sequence, dependents []*Sequence) int64 {
	if len(dependents) == 0 {
		return cursor.Get()
	}
	return MinSequence(dependents, cursor.Get())
}

// BlockingWaitStrategy parks the consumer on a mutex/condition variable
// until signaled, trading latency for zero CPU burn while idle.
type BlockingWaitStrategy struct {
	mu   sync.Mutex
	cond *sync.Cond
}

func NewBlockingWaitStrategy() *BlockingWaitStrategy {
	w := &BlockingWaitStrategy{}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *BlockingWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence) int64 {
	available := highestAvailable(cursor, dependents)
	if available >= seq {
		return available
	}
	w.mu.Lock()
	for {
		available = highestAvailable(cursor, dependents)
		if available >= seq {
			w.mu.Unlock()
			return available
		}
		w.cond.Wait()
	}
}

func (w *BlockingWaitStrategy) SignalAllWhenBlocking() {
	w.mu.Lock()
	w.cond.Broadcast()
	w.mu.Unlock()
}

// YieldingWaitStrategy spins a fixed number of times, then yields the
// goroutine's time slice each iteration thereafter. Lower latency than
// Blocking at the cost of burning CPU while idle.
type YieldingWaitStrategy struct {
	SpinTries int
}

func NewYieldingWaitStrategy() *YieldingWaitStrategy {
	return &YieldingWaitStrategy{SpinTries: 100}
}

func (w *YieldingWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence) int64 {
	counter := w.SpinTries
	for {
		available := highestAvailable(cursor, dependents)
		if available >= seq {
			return available
		}
		if counter > 0 {
			counter--
		} else {
			runtime.Gosched()
		}
	}
}

func (w *YieldingWaitStrategy) SignalAllWhenBlocking() {}

// SleepingWaitStrategy spins, then yields, then sleeps with increasing
// backoff — the lowest CPU cost of the non-blocking strategies.
type SleepingWaitStrategy struct {
	SpinTries  int
	YieldTries int
	SleepFor   time.Duration
}

func NewSleepingWaitStrategy() *SleepingWaitStrategy {
	return &SleepingWaitStrategy{SpinTries: 100, YieldTries: 100, SleepFor: time.Microsecond}
}

func (w *SleepingWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence) int64 {
	spins, yields := w.SpinTries, w.YieldTries
	for {
		available := highestAvailable(cursor, dependents)
		if available >= seq {
			return available
		}
		switch {
		case spins > 0:
			spins--
		case yields > 0:
			yields--
			runtime.Gosched()
		default:
			time.Sleep(w.SleepFor)
		}
	}
}

func (w *SleepingWaitStrategy) SignalAllWhenBlocking() {}

// BusySpinWaitStrategy never yields; lowest latency, highest CPU cost.
// Intended for pinned cores with spare capacity to burn.
type BusySpinWaitStrategy struct{}

func NewBusySpinWaitStrategy() *BusySpinWaitStrategy { return &BusySpinWaitStrategy{} }

func (w *BusySpinWaitStrategy) WaitFor(seq int64, cursor *Sequence, dependents []*Sequence) int64 {
	for {
		if available := highestAvailable(cursor, dependents); available >= seq {
			return available
		}
	}
}

func (w *BusySpinWaitStrategy) SignalAllWhenBlocking() {}
