// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package epoch provides epoch-based memory reclamation for lock-free data
// structures.
//
// This package implements a collector that tracks pinned readers and safely
// executes deferred cleanup actions once no reader can still observe the
// values they free. It enables lock-free structures to retire replaced
// values without use-after-free or ABA problems.
//
// # Key Features
//
//   - Three-phase global epoch with per-guard pin records
//   - Thread-safe pinning and unpinning of readers
//   - Structured deferred actions (destroy or callback) in per-epoch bags
//   - Threshold-driven opportunistic draining to bound garbage growth
//   - Deterministic DrainAll for tests and shutdown paths
//   - Explicit collector instances: one per structure or shared, never a
//     hidden process-wide singleton
//
// # Usage Examples
//
// Creating and using a collector:
//
//	// Create a new collector
//	c := epoch.NewCollector()
//
//	// Pin before touching shared state
//	g := c.Pin()
//
//	// Retire a replaced value
//	g.DeferDestroy(old, func() { old.Free() })
//
//	// Release the pin when done
//	g.Release()
//
//	// Reclaim everything reclaimable (tests, shutdown)
//	c.DrainAll()
//
// # Dangers and Warnings
//
//   - **Unreleased Guards**: A guard that is never released blocks epoch
//     advancement forever; garbage accumulates without bound. Other threads
//     keep running, so this is a liveness hazard, not a deadlock.
//   - **Guard Sharing**: A Guard is not safe for concurrent use; each
//     goroutine pins for itself.
//   - **Synchronous Cleanup**: Deferred actions must never be executed by
//     the caller; the drain that claims their bag runs them exactly once.
//   - **Collector Mixing**: Values retired through one collector must only
//     be read under guards of that same collector.
//
// # Best Practices
//
//   - Keep pins short; pair every Pin with a deferred Release
//   - Use DrainAll instead of counting manual advances
//   - Share one collector across structures whose values flow between them
//   - Monitor Pending growth to detect stalled epochs
//
// # Thread Safety
//
// The collector is fully thread-safe. Pinning and unpinning briefly take
// the registry lock; epoch reads are lock-free; draining claims each bag
// exclusively so no two drains process the same bag concurrently.
//
// # Reclamation Strategy
//
// The global epoch cycles through three logical phases. Each guard records
// the epoch observed at pin time and that record never changes. The epoch
// advances by exactly one step, and only when no live pin is older than the
// current epoch, so a straggler sacrifices progress rather than safety.
// Guard-local actions are sealed into the bag for the epoch current at seal
// time; a bag becomes reclaimable once the epoch has advanced at least two
// steps past it, at which point no live guard can still hold a reference to
// anything the bag frees.
//
// Sealing tags actions with the epoch observed at seal time rather than the
// guard's pin epoch. The seal happens after every load that could have
// observed a retired value, so the seal epoch is never smaller than any
// such reader's pin epoch and the two-step grace period outlives them all.
//
// # See Also
//
// For the reclaimable cell built on this collector, see the slot package.
package epoch

import (
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/cpu"

	"github.com/kianostad/ebr/internal/monitoring/metrics"
)

// DefaultThreshold is the pending-action count past which releasing a guard
// also attempts an advance-and-drain pass.
const DefaultThreshold = 256

// phases is the number of logical epoch phases the scheme cycles through.
const phases = 3

// Option configures a Collector.
type Option func(*Collector)

// WithThreshold sets the pending-action count that triggers opportunistic
// draining on guard release. Values below 1 keep the default.
func WithThreshold(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.threshold = n
		}
	}
}

// WithMetrics wires a metrics instance into the collector. A nil metrics
// value disables recording.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Collector) {
		c.metrics = m
	}
}

// bag holds the ordered deferred actions sealed during one epoch.
type bag struct {
	epoch   uint64
	actions []Deferred
}

// Collector owns the global epoch, the pin registry, and the garbage bags.
type Collector struct {
	// epoch is read lock-free on hot paths and advanced under mu. The pad
	// keeps the lock's cache line away from the epoch word.
	epoch atomic.Uint64
	_     cpu.CacheLinePad

	mu     sync.Mutex
	pinned map[uint64]int // pin epoch -> live guard count

	bagMu sync.Mutex
	bags  map[uint64]*bag // seal epoch -> bag

	pending   atomic.Int64 // sealed but unexecuted actions
	threshold int
	metrics   *metrics.Metrics
}

// NewCollector creates a new collector with its epoch at zero.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{
		pinned:    make(map[uint64]int),
		bags:      make(map[uint64]*bag),
		threshold: DefaultThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Epoch returns the current global epoch.
func (c *Collector) Epoch() uint64 {
	return c.epoch.Load()
}

// Phase returns the current logical phase (epoch mod 3).
func (c *Collector) Phase() uint64 {
	return c.epoch.Load() % phases
}

// Pin registers the caller at the current epoch and returns the guard
// representing that pin. Pin always succeeds.
func (c *Collector) Pin() *Guard {
	c.mu.Lock()
	e := c.epoch.Load()
	c.pinned[e]++
	c.mu.Unlock()

	c.metrics.RecordPin()
	return &Guard{c: c, epoch: e}
}

// unpin removes one pin record for epoch e. Removing the last straggler at
// an old epoch may immediately unblock a later TryAdvance.
func (c *Collector) unpin(e uint64) {
	c.mu.Lock()
	if n := c.pinned[e]; n <= 1 {
		delete(c.pinned, e)
	} else {
		c.pinned[e] = n - 1
	}
	c.mu.Unlock()
}

// Pins returns the number of live guards.
func (c *Collector) Pins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, count := range c.pinned {
		n += count
	}
	return n
}

// TryAdvance advances the global epoch by exactly one step if every live
// pin has caught up to the current epoch. It reports whether the epoch
// moved. A straggler pinned at an older epoch makes this a no-op: progress
// is sacrificed in favor of safety.
func (c *Collector) TryAdvance() bool {
	c.mu.Lock()
	cur := c.epoch.Load()
	for e := range c.pinned {
		if e < cur {
			c.mu.Unlock()
			c.metrics.RecordAdvance(false)
			return false
		}
	}
	c.epoch.Store(cur + 1)
	c.mu.Unlock()

	c.metrics.RecordAdvance(true)
	return true
}

// seal appends actions to the bag for the epoch current at this moment.
// The seal epoch, not the sealing guard's pin epoch, is what the two-step
// grace period is measured against.
func (c *Collector) seal(actions []Deferred) {
	if len(actions) == 0 {
		return
	}

	c.bagMu.Lock()
	e := c.epoch.Load()
	b := c.bags[e]
	if b == nil {
		b = &bag{epoch: e}
		c.bags[e] = b
	}
	b.actions = append(b.actions, actions...)
	c.bagMu.Unlock()

	before := c.pending.Load()
	after := c.pending.Add(int64(len(actions)))
	c.metrics.RecordSeal(len(actions))
	c.metrics.SetPending(uint64(after))
	if before <= int64(c.threshold) && after > int64(c.threshold) {
		c.metrics.RecordThresholdHit()
	}
}

// Drain executes every reclaimable bag: bags sealed at least two epochs
// behind the current one. Bags are claimed exclusively before execution,
// run oldest first, and each action runs in the order it was deferred.
// Drain returns the number of actions executed.
func (c *Collector) Drain() int {
	cur := c.epoch.Load()
	if cur < 2 {
		return 0
	}

	c.bagMu.Lock()
	var ready []*bag
	for e, b := range c.bags {
		if e <= cur-2 {
			ready = append(ready, b)
			delete(c.bags, e)
		}
	}
	c.bagMu.Unlock()

	if len(ready) == 0 {
		return 0
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].epoch < ready[j].epoch })

	n := 0
	for _, b := range ready {
		for _, d := range b.actions {
			d.invoke()
			n++
		}
	}

	after := c.pending.Add(int64(-n))
	c.metrics.RecordDrain(n)
	c.metrics.SetPending(uint64(after))
	return n
}

// DrainAll repeatedly advances and drains until no reclaimable bag remains
// or a straggler blocks advancement. It returns the number of actions
// executed and replaces the manual "advance twice, then drain" dance.
func (c *Collector) DrainAll() int {
	total := c.Drain()
	for {
		c.bagMu.Lock()
		remaining := len(c.bags)
		c.bagMu.Unlock()
		if remaining == 0 {
			return total
		}
		if !c.TryAdvance() {
			return total
		}
		total += c.Drain()
	}
}

// Pending returns the number of sealed actions not yet executed.
func (c *Collector) Pending() int {
	return int(c.pending.Load())
}

// Threshold returns the configured drain trigger.
func (c *Collector) Threshold() int {
	return c.threshold
}
