package netmon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// flakyProbe fails or succeeds according to a switchable flag.
type flakyProbe struct {
	mu sync.Mutex
	up bool
}

func (p *flakyProbe) set(up bool) {
	p.mu.Lock()
	p.up = up
	p.mu.Unlock()
}

func (p *flakyProbe) probe(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.up {
		return nil
	}
	return errors.New("unreachable")
}

func TestMonitor_StartsOffline(t *testing.T) {
	m := New(func(ctx context.Context) error { return nil }, time.Minute, time.Second, nil)
	if m.Online() {
		t.Error("Online() = true before any probe")
	}
}

func TestCheck_ReportsReachability(t *testing.T) {
	p := &flakyProbe{up: true}
	m := New(p.probe, time.Minute, time.Second, nil)

	if !m.Check(context.Background()) {
		t.Error("Check() = false with healthy probe")
	}
	p.set(false)
	if m.Check(context.Background()) {
		t.Error("Check() = true with failing probe")
	}
}

// TestSubscribe_TransitionsOnly verifies that steady state produces no
// notifications, only changes do.
func TestSubscribe_TransitionsOnly(t *testing.T) {
	p := &flakyProbe{up: true}
	m := New(p.probe, time.Minute, time.Second, nil)
	ch := m.Subscribe()

	ctx := context.Background()
	m.Check(ctx) // offline -> online
	m.Check(ctx) // steady
	m.Check(ctx) // steady
	p.set(false)
	m.Check(ctx) // online -> offline

	var got []bool
	for {
		select {
		case v := <-ch:
			got = append(got, v)
			continue
		default:
		}
		break
	}
	if len(got) != 2 || !got[0] || got[1] {
		t.Errorf("transitions = %v, want [true false]", got)
	}
}

// TestSubscribe_SlowConsumerSeesLatest verifies that an unread channel
// keeps the most recent state rather than blocking the monitor.
func TestSubscribe_SlowConsumerSeesLatest(t *testing.T) {
	p := &flakyProbe{up: true}
	m := New(p.probe, time.Minute, time.Second, nil)
	ch := m.Subscribe()

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		p.set(i%2 == 0)
		m.Check(ctx)
	}

	var last bool
	drained := false
	for {
		select {
		case v := <-ch:
			last = v
			drained = true
			continue
		default:
		}
		break
	}
	if !drained {
		t.Fatal("no notifications delivered")
	}
	if last != m.Online() {
		t.Errorf("latest notification = %v, monitor state = %v", last, m.Online())
	}
}

func TestCheck_HonorsProbeTimeout(t *testing.T) {
	m := New(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, time.Minute, 10*time.Millisecond, nil)

	start := time.Now()
	if m.Check(context.Background()) {
		t.Error("Check() = true for a hanging probe")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("probe not bounded by timeout: took %s", elapsed)
	}
}
