// Package netmon tracks connectivity for the upload pipeline. Something
// external (the CLI wires a dial prober) feeds state in through SetState;
// consumers ask whether it is safe to talk, wait for connectivity, and defer
// risky writes during the stabilization window that follows a transport
// switch — a connection that just hopped from wifi to cellular tends to flap.
package netmon

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Transport is the link kind currently carrying traffic.
type Transport string

const (
	TransportNone     Transport = "none"
	TransportWiFi     Transport = "wifi"
	TransportCellular Transport = "cellular"
)

// State is the current connectivity classification.
type State struct {
	Connected bool
	Transport Transport
}

// ErrConnectivityTimeout reports that AwaitConnectivity gave up waiting.
// It is a retryable transport condition, never an abuse signal.
var ErrConnectivityTimeout = errors.New("connectivity timeout")

// DefaultConnectivityTimeout bounds AwaitConnectivity when the caller passes
// no explicit timeout.
const DefaultConnectivityTimeout = 30 * time.Second

// Monitor is the connectivity observer. Safe for concurrent use.
type Monitor struct {
	mu              sync.Mutex
	state           State
	stabilizedUntil time.Time
	stabilization   time.Duration
	changed         chan struct{}

	now func() time.Time
}

// New returns a Monitor that opens a stabilization window of the given
// length after every transport change.
func New(stabilization time.Duration) *Monitor {
	return &Monitor{
		stabilization: stabilization,
		changed:       make(chan struct{}),
		now:           time.Now,
	}
}

// SetState records a connectivity observation and wakes all waiters.
// A transport change while still connected opens the stabilization window.
func (m *Monitor) SetState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s

	if s.Connected && prev.Connected && prev.Transport != s.Transport {
		m.stabilizedUntil = m.now().Add(m.stabilization)
	}

	close(m.changed)
	m.changed = make(chan struct{})
	m.mu.Unlock()
}

// CurrentState returns the last observed state.
func (m *Monitor) CurrentState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsStabilizing reports whether the post-transport-change window is open.
func (m *Monitor) IsStabilizing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now().Before(m.stabilizedUntil)
}

// AwaitConnectivity blocks until the monitor observes a connected state,
// the timeout elapses (ErrConnectivityTimeout), or ctx is done. A zero
// timeout means DefaultConnectivityTimeout.
func (m *Monitor) AwaitConnectivity(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultConnectivityTimeout
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		m.mu.Lock()
		connected := m.state.Connected
		wait := m.changed
		m.mu.Unlock()

		if connected {
			return nil
		}

		select {
		case <-wait:
		case <-deadline.C:
			return ErrConnectivityTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// AwaitStability blocks until the stabilization window (if any) has passed.
// It does not wait for connectivity; combine with AwaitConnectivity when both
// are needed.
func (m *Monitor) AwaitStability(ctx context.Context) error {
	for {
		m.mu.Lock()
		remaining := m.stabilizedUntil.Sub(m.now())
		m.mu.Unlock()

		if remaining <= 0 {
			return nil
		}

		t := time.NewTimer(remaining)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}
}
