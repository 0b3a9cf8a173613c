// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package ebr provides an embeddable epoch-based reclamation engine for
// lock-free data structures.
//
// This is the main public API for the EBR library. It provides access to
// the collector, guards, reclaimable atomic slots, and the fixed-size slot
// container ("cage") that concurrent harnesses exercise.
//
// # Quick Start
//
//	import "github.com/kianostad/ebr"
//
//	collector := ebr.NewCollector()
//	cage := ebr.NewCage(collector, 3, func(i int) string {
//		return fmt.Sprintf("value-%d", i)
//	}, ebr.WithDestroy(func(v string) {
//		fmt.Println(v, "destroyed")
//	}))
//	defer cage.Close()
//
//	cage.Access(1, "reader")
//	old := cage.Replace(1, "writer", "updated")
//	fmt.Println("dislodged:", old)
//
//	collector.DrainAll()
//
// Or work with slots and guards directly:
//
//	s := ebr.NewSlot("first")
//	g := collector.Pin()
//	ref := s.Load(g)
//	fmt.Println(ref.Value())
//	old := s.Swap("second", g)
//	g.DeferDestroy(old, func() { fmt.Println(old, "destroyed") })
//	g.Release()
//
// # Key Features
//
//   - Lock-free slot loads and swaps coordinated only through atomics
//   - Three-phase global epoch with per-guard pin records
//   - Structured deferred actions (destroy or callback) in per-epoch bags
//   - Threshold-driven opportunistic draining with a deterministic DrainAll
//   - Guard-scoped references that fail loudly on use after release
//   - Explicit collector wiring: one per container or shared, never global
//
// # Safety Guarantee
//
// A value read via Load under a guard stays live for the guard's entire
// lifetime, regardless of how many replacements happen concurrently. The
// price is liveness, not safety: a guard that is never released stalls
// reclamation indefinitely while other goroutines keep running.
//
// # See Also
//
// For implementation details, see the internal epoch, slot, and core
// packages. For usage examples, see the examples directory.
package ebr

import (
	"github.com/kianostad/ebr/internal/concurrency/epoch"
	cage "github.com/kianostad/ebr/internal/core"
	"github.com/kianostad/ebr/internal/monitoring/metrics"
	"github.com/kianostad/ebr/internal/storage/slot"
)

// Core engine types re-exported from the internal packages.
type (
	// Collector owns the global epoch, the pin registry, and the
	// garbage bags.
	Collector = epoch.Collector
	// Guard represents a live pin plus its bag of pending cleanup
	// actions.
	Guard = epoch.Guard
	// Deferred is a structured cleanup action awaiting safe execution.
	Deferred = epoch.Deferred
	// Kind identifies a deferred action's variant.
	Kind = epoch.Kind
	// CollectorOption configures a collector.
	CollectorOption = epoch.Option
	// Metrics tracks engine activity.
	Metrics = metrics.Metrics
	// Stats is a point-in-time metrics snapshot.
	Stats = metrics.Stats
)

// Generic engine types re-exported from the internal packages.
type (
	// Atomic is a single reclaimable storage cell.
	Atomic[V any] = slot.Atomic[V]
	// Ref is a guard-scoped borrowed reference.
	Ref[V any] = slot.Ref[V]
	// Cage is a fixed-size indexed container of reclaimable slots.
	Cage[V any] = cage.Cage[V]
	// CageOption configures a cage.
	CageOption[V any] = cage.Option[V]
	// Observer receives value lifecycle notifications from a cage.
	Observer[V any] = cage.Observer[V]
)

// Deferred action kinds.
const (
	KindCallback = epoch.KindCallback
	KindDestroy  = epoch.KindDestroy
)

// DefaultThreshold is the pending-action count past which guard release
// also attempts an advance-and-drain pass.
const DefaultThreshold = epoch.DefaultThreshold

// Collector options.
var (
	// WithThreshold sets the opportunistic drain trigger.
	WithThreshold = epoch.WithThreshold
	// WithMetrics wires a metrics instance into a collector.
	WithMetrics = epoch.WithMetrics
)

// NewCollector creates a new reclamation context. Collectors are explicit:
// wire one per container, or share one across containers whose values flow
// together.
func NewCollector(opts ...CollectorOption) *Collector {
	return epoch.NewCollector(opts...)
}

// NewMetrics creates a metrics instance for use with WithMetrics.
func NewMetrics() *Metrics {
	return metrics.NewMetrics()
}

// NewCallback builds a Callback-kind deferred action for Guard.DeferAction.
func NewCallback(fn func()) Deferred {
	return epoch.NewCallback(fn)
}

// NewDestroy builds a Destroy-kind deferred action for Guard.DeferAction.
func NewDestroy(target any, destroy func()) Deferred {
	return epoch.NewDestroy(target, destroy)
}

// NewSlot creates a reclaimable cell populated with initial.
func NewSlot[V any](initial V) *Atomic[V] {
	return slot.New(initial)
}

// NewCage creates a cage of n slots wired to collector, each populated by
// init.
func NewCage[V any](collector *Collector, n int, init func(i int) V, opts ...CageOption[V]) *Cage[V] {
	return cage.New(collector, n, init, opts...)
}

// WithDestroy injects the destructor a cage runs for every value it owns.
func WithDestroy[V any](fn func(V)) CageOption[V] {
	return cage.WithDestroy[V](fn)
}

// WithObserver injects a cage's lifecycle notification side channel.
func WithObserver[V any](o Observer[V]) CageOption[V] {
	return cage.WithObserver[V](o)
}

// WithAccessNotify makes Access defer a read-tagged cleanup notification.
func WithAccessNotify[V any](fn func(ctx string)) CageOption[V] {
	return cage.WithAccessNotify[V](fn)
}
