package sequence

import "sync/atomic"

// Sequencer numbers execution reports. The engine worker is the only caller
// of Next; Current may be read from any goroutine.
type Sequencer struct {
	last atomic.Uint64
}

// New resumes after the highest number the outbox has persisted (0 on a
// fresh install): the first Next returns last+1.
func New(last uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(last)
	return s
}

func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
