// Package netmon watches backend reachability and reports transitions.
//
// Reachability means the backend's health endpoint answers, not merely
// that an interface is up; a machine on wifi behind a captive portal is
// offline as far as syncing is concerned. Subscribers are notified only
// on transitions, never on steady state.
package netmon

import (
	"context"
	"log"
	"os"
	"sync"
	"time"
)

// Prober checks whether the backend is reachable right now.
type Prober func(ctx context.Context) error

// Monitor polls a Prober and fans out online/offline transitions.
type Monitor struct {
	probe    Prober
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	mu     sync.Mutex
	online bool
	known  bool
	subs   []chan bool
}

// New creates a monitor polling probe every interval. Each probe is
// bounded by timeout. If logger is nil a default stderr logger is used.
func New(probe Prober, interval, timeout time.Duration, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New(os.Stderr, "[netmon] ", log.LstdFlags)
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Online reports the last observed state. Before the first probe
// completes the monitor assumes offline.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe returns a channel receiving the new state on every
// transition. The channel is buffered; a slow consumer drops
// intermediate transitions but always observes the latest one.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 4)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

// Run probes until ctx is canceled. The first probe happens
// immediately, then on each interval tick.
func (m *Monitor) Run(ctx context.Context) {
	m.check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

// Check runs one probe immediately and returns the resulting state.
// Used by one-shot commands that cannot wait for the poll loop.
func (m *Monitor) Check(ctx context.Context) bool {
	m.check(ctx)
	return m.Online()
}

func (m *Monitor) check(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	err := m.probe(probeCtx)
	cancel()
	m.set(err == nil)
}

// set records the observed state and notifies subscribers if it changed.
func (m *Monitor) set(online bool) {
	m.mu.Lock()
	if m.known && m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	m.known = true
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if online {
		m.logger.Printf("Backend reachable")
	} else {
		m.logger.Printf("Backend unreachable")
	}
	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// Drain the stale value so the latest state always lands.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}
