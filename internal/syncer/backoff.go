package syncer

import (
	"math/rand"
	"time"
)

// backoffDelay computes the wait before retry number attempts (1-based):
// base * 2^(attempts-1), capped, with up to 25% random jitter added so
// simultaneously-failing clients do not retry in lockstep.
func (e *Engine) backoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := e.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= e.cfg.BackoffCap {
			d = e.cfg.BackoffCap
			break
		}
	}
	if d > e.cfg.BackoffCap {
		d = e.cfg.BackoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}
