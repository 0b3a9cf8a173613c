// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"sync/atomic"

	"github.com/kianostad/ebr/internal/monitoring/metrics"
)

// Guard represents a live pin plus its bag of pending cleanup actions.
//
// A guard is created by Collector.Pin and bounds the validity window of
// every reference loaded while it is held. The epoch recorded at pin time
// never changes. A guard belongs to the goroutine that pinned it and is
// not safe for concurrent use; Active and Epoch are the only methods other
// goroutines may call.
type Guard struct {
	c        *Collector
	epoch    uint64
	local    []Deferred
	released atomic.Bool
}

// Epoch returns the epoch recorded when this guard was pinned.
func (g *Guard) Epoch() uint64 {
	return g.epoch
}

// Active reports whether the guard still holds its pin. References loaded
// under the guard are valid only while Active returns true.
func (g *Guard) Active() bool {
	return !g.released.Load()
}

// Defer queues a cleanup callback. The callback is never executed
// synchronously; it runs during some later drain, once no live guard can
// observe whatever it cleans up.
func (g *Guard) Defer(fn func()) {
	g.DeferAction(NewCallback(fn))
}

// DeferDestroy queues destruction of a specific retired value. It is the
// Destroy-kind convenience over DeferAction and carries the same guarantee
// as Defer.
func (g *Guard) DeferDestroy(target any, destroy func()) {
	g.DeferAction(NewDestroy(target, destroy))
}

// DeferAction queues a structured action. This is the one primitive both
// retirement styles ride on. Deferring on a released guard is a
// precondition failure.
func (g *Guard) DeferAction(d Deferred) {
	if g.released.Load() {
		panic("epoch: Defer on released guard")
	}
	g.local = append(g.local, d)
	if d.kind == KindDestroy {
		g.c.metrics.RecordDefer(metrics.KindDestroy)
	} else {
		g.c.metrics.RecordDefer(metrics.KindCallback)
	}
}

// Flush seals the guard's local actions into the collector, attempts one
// epoch advance, and drains whatever became reclaimable. Flushing is
// best-effort: calling it zero, one, or many times changes only when
// cleanup runs, never whether it runs. While the guard itself is pinned,
// the epoch can advance at most one step past its pin.
func (g *Guard) Flush() {
	if g.released.Load() {
		panic("epoch: Flush on released guard")
	}
	g.c.seal(g.local)
	g.local = nil
	g.c.metrics.RecordFlush()
	g.c.TryAdvance()
	g.c.Drain()
}

// Release seals any remaining local actions, removes the pin record, and,
// only when pending garbage has crossed the collector's threshold,
// attempts an advance-and-drain pass. Release never guarantees draining;
// reclamation work is amortized rather than performed on every unpin.
// Release is idempotent.
func (g *Guard) Release() {
	if g.released.Swap(true) {
		return
	}
	g.c.seal(g.local)
	g.local = nil
	g.c.unpin(g.epoch)
	g.c.metrics.RecordRelease()

	if g.c.pending.Load() > int64(g.c.threshold) {
		g.c.TryAdvance()
		g.c.Drain()
	}
}
