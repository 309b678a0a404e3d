// Package rr picks client slots in round-robin order without locking.
package rr

import "sync/atomic"

type RR struct{ n atomic.Uint64 }

// Next returns the next slot in [0, mod). A set of one (or less) always
// yields slot 0 and leaves the counter untouched.
func (r *RR) Next(mod int) int {
	if mod <= 1 {
		return 0
	}
	x := r.n.Add(1)
	return int((x - 1) % uint64(mod))
}
