package ring

// SequenceBarrier lets a consumer wait for a sequence to become available,
// subject to the sequencer's publication rules and any upstream consumer
// sequences it must not overtake (§4.2 NewBarrier).
type SequenceBarrier struct {
	sequencer  Sequencer
	wait       WaitStrategy
	dependents []*Sequence
}

func newSequenceBarrier(sequencer Sequencer, wait WaitStrategy, dependents []*Sequence) *SequenceBarrier {
	return &SequenceBarrier{sequencer: sequencer, wait: wait, dependents: dependents}
}

// WaitFor blocks until seq is available to read and returns the highest
// sequence currently safe to consume (which may be greater than seq).
func (b *SequenceBarrier) WaitFor(seq int64) int64 {
	available := b.wait.WaitFor(seq, b.sequencer.Cursor(), b.dependents)
	if available < seq {
		return available
	}
	return b.sequencer.GetHighestPublishedSequence(seq, available)
}
