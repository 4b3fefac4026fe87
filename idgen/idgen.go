// Package idgen provides a concurrency-safe monotonic ID sequence. It is used
// to stamp connection instances so that work queued for a torn-down connection
// can be told apart from work for its replacement.
package idgen

import "sync/atomic"

// Sequence generates monotonically increasing uint64 IDs. The zero value is
// ready to use; the first Next returns 1. Safe for concurrent use.
type Sequence struct {
	n atomic.Uint64
}

// Next returns the next ID in the sequence.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Current returns the most recently issued ID, or 0 if none has been issued.
func (s *Sequence) Current() uint64 {
	return s.n.Load()
}
