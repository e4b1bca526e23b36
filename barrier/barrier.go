// Package barrier implements the N-way rendezvous the CBLA engines share
// (spec §4.7, §5, §9 "Barrier action on last arrival"): a write barrier and
// a read barrier, each executing a single "last arrival" action exactly
// once per cycle before releasing every waiting goroutine.
//
// Go has no built-in reusable N-way barrier with a callback (unlike e.g.
// Python's threading.Barrier(action=...)). No library in the example pack
// (channerics, errgroup, golang.org/x/time) exposes one either, so Barrier
// hand-rolls the leader-election-then-release design spec.md §9 prescribes
// as the fallback: the goroutine that completes the Nth arrival runs the
// action and closes a release channel; this is the one primitive in this
// module not sourced from a pack library (see DESIGN.md).
package barrier

import (
	"sync"
	"time"

	"cbla/errs"
)

// Barrier is a cyclic N-way rendezvous. Wait blocks until N goroutines have
// called it; the Nth caller (the "leader") runs action and every caller,
// including the leader, receives action's return value. A cycle that
// doesn't reach N arrivals within timeout returns ErrTransportTimeout to
// every goroutine still waiting, matching spec §5's bounded-timeout
// cancellation requirement.
type Barrier struct {
	n       int
	timeout time.Duration
	action  func() error

	mu      sync.Mutex
	count   int
	release chan struct{}
	err     error
}

// New returns a Barrier for n participants with the given per-cycle
// action and timeout.
func New(n int, timeout time.Duration, action func() error) *Barrier {
	return &Barrier{
		n:       n,
		timeout: timeout,
		action:  action,
		release: make(chan struct{}),
	}
}

// Wait blocks until the barrier's cycle completes (n arrivals) or timeout
// elapses. All N participants observe the same action error.
func (b *Barrier) Wait() error {
	b.mu.Lock()
	rel := b.release
	b.count++
	if b.count == b.n {
		err := b.action()
		b.err = err
		b.count = 0
		b.release = make(chan struct{})
		b.mu.Unlock()
		close(rel)
		return err
	}
	b.mu.Unlock()

	select {
	case <-rel:
		b.mu.Lock()
		err := b.err
		b.mu.Unlock()
		return err
	case <-time.After(b.timeout):
		return errs.ErrTransportTimeout
	}
}
