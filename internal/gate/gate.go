// Package gate bounds how many requests may be in flight at once.
//
// A [Gate] is a counting semaphore with FIFO waiters. Callers block in
// [Gate.Acquire] while the gate is saturated and are admitted in arrival order
// as slots are released. [Gate.Drain] blocks until every held slot has been
// released, which lets a scheduler wait for detached work without polling.
package gate

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Gate is a bounded admission gate. The zero value is not usable; call New.
type Gate struct {
	sem     *semaphore.Weighted
	max     int64
	holders atomic.Int64
	peak    atomic.Int64
}

// New returns a gate admitting at most max concurrent holders.
// Values below 1 are treated as 1.
func New(max int) *Gate {
	if max < 1 {
		max = 1
	}
	return &Gate{
		sem: semaphore.NewWeighted(int64(max)),
		max: int64(max),
	}
}

// Acquire takes a slot, blocking in FIFO order while the gate is saturated.
// The only error is the context's, returned when ctx ends before a slot is granted;
// in that case no slot is held.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	n := g.holders.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	return nil
}

// Release returns a slot. The semaphore hands it to the head waiter, if any,
// before that waiter resumes. Releasing more slots than were acquired panics.
func (g *Gate) Release() {
	g.holders.Add(-1)
	g.sem.Release(1)
}

// Drain blocks until no slots are held. It must only be called once no new
// Acquire calls can arrive; a concurrent acquirer would queue behind it.
func (g *Gate) Drain(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, g.max); err != nil {
		return err
	}
	g.sem.Release(g.max)
	return nil
}

// InFlight reports the number of slots currently held.
func (g *Gate) InFlight() int {
	return int(g.holders.Load())
}

// Peak reports the highest number of simultaneously held slots observed.
func (g *Gate) Peak() int {
	return int(g.peak.Load())
}

// Max reports the gate's capacity.
func (g *Gate) Max() int {
	return int(g.max)
}
