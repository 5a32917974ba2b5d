package collab

// Sequencer assigns per-session chat sequence numbers. Numbers are gapless
// and strictly increasing for the session's lifetime. Only the owning hub
// calls Next, so no atomicity beyond the hub's serialized execution is
// needed.
type Sequencer struct {
	last uint64
}

// NewSequencer starts a sequencer after the highest previously committed
// number, typically recovered from persisted history.
func NewSequencer(last uint64) *Sequencer {
	return &Sequencer{last: last}
}

// Next commits and returns the next sequence number.
func (s *Sequencer) Next() uint64 {
	s.last++
	return s.last
}

// Last returns the most recently assigned number, zero if none.
func (s *Sequencer) Last() uint64 {
	return s.last
}
