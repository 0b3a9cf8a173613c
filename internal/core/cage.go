// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cage provides a fixed-size indexed container of reclaimable
// atomic slots sharing one epoch collector.
//
// This package implements the structure concurrent harnesses exercise: N
// always-populated slots with uniform access and replace operations. Every
// replace retires the dislodged value through the collector, so readers
// holding guards never observe freed values.
//
// # Key Features
//
//   - Fixed size after construction; every slot starts populated
//   - Lock-free access and replace on any mix of indexes
//   - Exactly-once retirement of each dislodged value
//   - Injected destruction and notification side effects, so payload
//     lifecycle observation stays outside the engine
//   - Explicit collector wiring: per-cage or shared across cages
//   - Bounds-checked indexing that fails immediately, never silently
//
// # Usage Examples
//
// Creating and using a cage:
//
//	c := epoch.NewCollector()
//	cg := cage.New(c, 3, func(i int) string {
//		return fmt.Sprintf("value-%d", i)
//	}, cage.WithDestroy(func(v string) {
//		fmt.Println(v, "destroyed")
//	}))
//	defer cg.Close()
//
//	cg.Access(1, "reader-1")
//	old := cg.Replace(1, "writer", "replacement")
//	fmt.Println("dislodged:", old)
//
//	c.DrainAll()
//
// # Dangers and Warnings
//
//   - **Out-of-Range Indexes**: Access and Replace panic on an index
//     outside [0, Len()); the bounds violation is a programming error.
//   - **Close Ordering**: Close assumes no guards from this cage's
//     collector are still live; it destroys remaining values directly.
//   - **Replace Return**: The dislodged value returned by Replace is
//     already retired. Inspect or log it within the call; do not retain it.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Reads and replacements on
// the same or different indexes proceed in parallel; pinning is the only
// synchronization point.
//
// # See Also
//
// For the underlying cell semantics, see the slot package. For epoch and
// guard semantics, see the epoch package.
package cage

import (
	"fmt"
	"sync/atomic"

	"github.com/kianostad/ebr/internal/concurrency/epoch"
	"github.com/kianostad/ebr/internal/storage/slot"
)

// Observer receives lifecycle notifications for values flowing through a
// cage. All methods may be called concurrently. A nil observer is valid.
type Observer[V any] interface {
	// OnAccess fires while the accessing guard is still pinned, so value
	// is live for the duration of the call.
	OnAccess(index int, ctx string, value V)
	// OnReplace fires after the swap, before the dislodged value is
	// retired.
	OnReplace(index int, ctx string, old, new V)
	// OnDestroy fires when a value is destroyed, during a drain or Close.
	OnDestroy(value V)
}

// Option configures a Cage.
type Option[V any] func(*Cage[V])

// WithDestroy injects the destructor run for every value the cage owns,
// once it is safe to do so.
func WithDestroy[V any](fn func(V)) Option[V] {
	return func(c *Cage[V]) {
		c.destroy = fn
	}
}

// WithObserver injects the lifecycle notification side channel.
func WithObserver[V any](o Observer[V]) Option[V] {
	return func(c *Cage[V]) {
		c.observer = o
	}
}

// WithAccessNotify makes Access defer a cleanup notification tagged with
// the read context, for harnesses where the access path is the reclaiming
// operation. The callback runs under the same safety guarantee as any
// deferred action.
func WithAccessNotify[V any](fn func(ctx string)) Option[V] {
	return func(c *Cage[V]) {
		c.accessNotify = fn
	}
}

// Cage is a fixed-size indexed collection of reclaimable atomic slots.
type Cage[V any] struct {
	collector    *epoch.Collector
	slots        []*slot.Atomic[V]
	destroy      func(V)
	observer     Observer[V]
	accessNotify func(ctx string)
	closed       atomic.Bool
}

// New creates a cage of n slots wired to the given collector, each slot
// populated by init. The collector is an explicit dependency so tests can
// instantiate isolated instances; there is no implicit global.
func New[V any](c *epoch.Collector, n int, init func(i int) V, opts ...Option[V]) *Cage[V] {
	if c == nil {
		panic("cage: nil collector")
	}
	if n <= 0 {
		panic(fmt.Sprintf("cage: invalid size %d", n))
	}
	if init == nil {
		panic("cage: nil initializer")
	}

	cg := &Cage[V]{
		collector: c,
		slots:     make([]*slot.Atomic[V], n),
	}
	for _, opt := range opts {
		opt(cg)
	}
	for i := range cg.slots {
		cg.slots[i] = slot.New(init(i))
	}
	return cg
}

// Len returns the number of slots.
func (c *Cage[V]) Len() int {
	return len(c.slots)
}

// Collector returns the collector this cage retires values through.
func (c *Cage[V]) Collector() *epoch.Collector {
	return c.collector
}

// slotAt bounds-checks i. Out-of-range indexes are reported immediately,
// never clamped.
func (c *Cage[V]) slotAt(i int) *slot.Atomic[V] {
	if c.closed.Load() {
		panic("cage: use after Close")
	}
	if i < 0 || i >= len(c.slots) {
		panic(fmt.Sprintf("cage: index %d out of range [0, %d)", i, len(c.slots)))
	}
	return c.slots[i]
}

// Access pins, loads slot i, and notifies the observer while the value is
// still guard-protected. When an access notification is configured, its
// callback is deferred tagged with ctx rather than run synchronously.
func (c *Cage[V]) Access(i int, ctx string) {
	s := c.slotAt(i)
	g := c.collector.Pin()
	defer g.Release()

	v := s.Load(g).Value()
	if c.observer != nil {
		c.observer.OnAccess(i, ctx, v)
	}
	if c.accessNotify != nil {
		fn := c.accessNotify
		tag := ctx
		g.Defer(func() { fn(tag) })
	}
}

// Replace pins, swaps v into slot i, retires the dislodged value exactly
// once, and returns it so the caller can log its identity. The returned
// value is already scheduled for destruction; it is safe to inspect within
// the call but must not be retained.
func (c *Cage[V]) Replace(i int, ctx string, v V) V {
	s := c.slotAt(i)
	g := c.collector.Pin()
	defer g.Release()

	old := s.Swap(v, g)
	if c.observer != nil {
		c.observer.OnReplace(i, ctx, old, v)
	}
	g.DeferDestroy(old, func() { c.destroyValue(old) })
	return old
}

// Flush pins briefly and flushes, giving harness loops a one-call
// advance-and-drain opportunity without holding their own guard.
func (c *Cage[V]) Flush() {
	if c.closed.Load() {
		panic("cage: use after Close")
	}
	g := c.collector.Pin()
	g.Flush()
	g.Release()
}

// Close destroys every still-live value exactly once and drains all
// reclaimable garbage. Callers must hold no guards from this cage's
// collector. Close is idempotent.
func (c *Cage[V]) Close() {
	if c.closed.Swap(true) {
		return
	}

	g := c.collector.Pin()
	live := make([]V, len(c.slots))
	for i, s := range c.slots {
		live[i] = s.Load(g).Value()
	}
	g.Release()

	// Values never dislodged were never retired; with no readers left
	// they are destroyed directly at teardown.
	for _, v := range live {
		c.destroyValue(v)
	}
	c.collector.DrainAll()
}

func (c *Cage[V]) destroyValue(v V) {
	if c.destroy != nil {
		c.destroy(v)
	}
	if c.observer != nil {
		c.observer.OnDestroy(v)
	}
}
