package queue

import "sync/atomic"

// Sequencer numbers shipment notices in commit order, starting at 1.
type Sequencer struct{ n atomic.Uint64 }

// Next returns the next sequence number.
func (s *Sequencer) Next() uint64 { return s.n.Add(1) }

// Last returns the most recently issued number, 0 before the first.
func (s *Sequencer) Last() uint64 { return s.n.Load() }
