package syncer

import "time"

// Clock abstracts time for the engine so backoff waits can be driven by
// a virtual clock in tests instead of real sleeps.
type Clock interface {
	Now() time.Time
	// After behaves like time.After.
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// NewClock returns a Clock backed by the system clock.
func NewClock() Clock {
	return realClock{}
}
