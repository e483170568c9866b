// Package state provides the single-word values shared between the
// support domain and the application domain.
//
// Every shared value has exactly one writer domain. Readers on the
// other domain only ever observe whole values, never composites, so no
// lock is needed and no read can block.
package state

import (
	"sync/atomic"
	"time"
)

// Flag is an idempotent boolean. Raising a raised flag is a no-op, so
// at most one pending event is represented between Raise and Take.
type Flag struct {
	v atomic.Bool
}

// Raise sets the flag and reports whether it was previously clear.
func (f *Flag) Raise() bool {
	return f.v.CompareAndSwap(false, true)
}

// Take clears the flag and reports whether it was set. Of any number
// of concurrent callers, exactly one observes true per Raise.
func (f *Flag) Take() bool {
	return f.v.CompareAndSwap(true, false)
}

// Set stores the value unconditionally. Only the owning writer uses it.
func (f *Flag) Set(on bool) {
	f.v.Store(on)
}

// IsSet reads the flag.
func (f *Flag) IsSet() bool {
	return f.v.Load()
}

// Stamp is a point in time shared as a single word.
type Stamp struct {
	nanos atomic.Int64
}

// Mark records t.
func (s *Stamp) Mark(t time.Time) {
	s.nanos.Store(t.UnixNano())
}

// Time returns the last recorded time, zero if never marked.
func (s *Stamp) Time() time.Time {
	n := s.nanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
