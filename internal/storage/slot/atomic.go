// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package slot provides a single reclaimable storage cell with lock-free
// load and swap, built on the epoch collector.
//
// This package implements the cell whose replaced values the epoch scheme
// exists to protect: a slot always holds exactly one live owned value, and
// every value dislodged by a swap must be retired through the guard that
// performed it.
//
// # Key Features
//
//   - Always-populated cell: load never observes "nothing"
//   - Sequentially consistent swap, so every thread agrees on one total
//     order of replacements per slot
//   - Guard-scoped Ref values that re-validate their guard on every
//     dereference and fail loudly after release
//   - Ownership discipline: swap hands the dislodged value back to the
//     caller, who must retire it exactly once
//
// # Usage Examples
//
// Creating and using a slot:
//
//	c := epoch.NewCollector()
//	s := slot.New("first")
//
//	g := c.Pin()
//	ref := s.Load(g)
//	fmt.Println(ref.Value()) // "first"
//
//	old := s.Swap("second", g)
//	g.DeferDestroy(old, func() { fmt.Println(old, "destroyed") })
//	g.Release()
//
// # Dangers and Warnings
//
//   - **Ref Lifetime**: A Ref is valid only while its guard is active.
//     Value panics on a released guard instead of reading freed memory.
//   - **Retirement Obligation**: Failing to retire a swapped-out value is a
//     resource leak, not a crash; nothing detects it automatically.
//   - **Store Loses the Old Value**: Store discards the previous value;
//     capture it with Load or use Swap when it must be retired.
//
// # Memory Ordering
//
// Go's sync/atomic operations are sequentially consistent. The slot leans
// on that strong ordering so every thread agrees on a single total order of
// replacements per cell; no weaker acquire/release pairing is attempted.
//
// # See Also
//
// For the collector and guard semantics, see the epoch package. For the
// indexed container over many slots, see the core package.
package slot

import (
	"sync/atomic"

	"github.com/kianostad/ebr/internal/concurrency/epoch"
)

// box is the heap cell a slot points at. Values are boxed so the pointer
// itself can be exchanged atomically while readers keep dereferencing
// their own box.
type box[V any] struct {
	val V
}

// Atomic is a single reclaimable cell holding exactly one live value.
type Atomic[V any] struct {
	ptr atomic.Pointer[box[V]]
}

// New creates a slot populated with initial. Slots are never empty after
// construction.
func New[V any](initial V) *Atomic[V] {
	s := &Atomic[V]{}
	s.ptr.Store(&box[V]{val: initial})
	return s
}

// Ref is a borrowed reference produced by Load. It is valid only for the
// lifetime of the guard it was loaded under.
type Ref[V any] struct {
	guard *epoch.Guard
	box   *box[V]
}

// Value dereferences the borrowed value. The originating guard is
// re-checked on every call; a released guard means the referenced value
// may already have been reclaimed, so Value panics rather than silently
// returning freed data.
func (r Ref[V]) Value() V {
	if r.guard == nil || !r.guard.Active() {
		panic("slot: Ref used after its guard was released")
	}
	return r.box.val
}

// Guard returns the guard the reference was loaded under.
func (r Ref[V]) Guard() *epoch.Guard {
	return r.guard
}

// Load reads the current value under g. The returned Ref stays valid for
// g's entire lifetime regardless of concurrent swaps. Loading under a
// released guard is a precondition failure.
func (s *Atomic[V]) Load(g *epoch.Guard) Ref[V] {
	if g == nil || !g.Active() {
		panic("slot: Load without an active guard")
	}
	return Ref[V]{guard: g, box: s.ptr.Load()}
}

// Swap exchanges the stored value for v and returns the dislodged value.
// Ownership of the dislodged value transfers to the caller, who must
// retire it (g.DeferDestroy, or g.Defer after inspection); it must not be
// destroyed synchronously while other guards may still hold it.
func (s *Atomic[V]) Swap(v V, g *epoch.Guard) V {
	if g == nil || !g.Active() {
		panic("slot: Swap without an active guard")
	}
	old := s.ptr.Swap(&box[V]{val: v})
	return old.val
}

// Store unconditionally replaces the stored value. The previous value's
// ownership leaves the slot with no way back; a caller that needs to
// retire it must have captured it first via Load or use Swap instead.
func (s *Atomic[V]) Store(v V, g *epoch.Guard) {
	if g == nil || !g.Active() {
		panic("slot: Store without an active guard")
	}
	s.ptr.Store(&box[V]{val: v})
}
