// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package metrics provides performance monitoring and observability for the
// epoch-based reclamation engine.
//
// This package implements thread-safe metrics collection using atomic
// counters that track pin activity, epoch advancement, deferred-action
// volume, and bag draining. It enables monitoring reclamation progress and
// detecting stalled epochs in production environments.
//
// # Key Features
//
//   - Thread-safe metrics collection using plain atomic counters
//   - Pin/release and epoch advancement tracking (including stalled advances)
//   - Deferred-action accounting split by kind (destroy vs. callback)
//   - Pending-garbage gauge with high-water mark
//   - Drain-threshold crossing counter for liveness-stall warnings
//   - JSON-serializable snapshots for export to external systems
//
// # Usage Examples
//
// Creating and using metrics:
//
//	m := metrics.NewMetrics()
//
//	// Record engine events
//	m.RecordPin()
//	m.RecordDefer(metrics.KindDestroy)
//	m.RecordAdvance(true)
//
//	// Observe the pending-garbage gauge
//	m.SetPending(128)
//
//	// Get a snapshot for monitoring
//	stats := m.GetStats()
//	fmt.Printf("pins: %d, pending: %d\n", stats.Pins, stats.Pending)
//
// # Dangers and Warnings
//
//   - **Sampling Skew**: GetStats reads each counter independently; a
//     snapshot taken under heavy churn is not a single consistent cut.
//   - **Gauge Staleness**: Pending reflects the last SetPending call, not a
//     live count.
//   - **Threshold Crossings**: A rising ThresholdHits with a flat Drains
//     count indicates a stalled epoch (a long-lived guard blocking advance).
//
// # Thread Safety
//
// All operations are safe for concurrent use from multiple goroutines.
//
// # Why Not Latency Histograms
//
// Engine operations complete in tens of nanoseconds; buffering events
// through a channel would dominate the cost being measured. Counters keep
// recording on the hot path to a single atomic add.
//
// # See Also
//
// For the engine that feeds these counters, see the epoch package.
package metrics

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Kind identifies the variant of a deferred action being recorded.
type Kind uint8

const (
	// KindDestroy counts scheduled destructions of retired values.
	KindDestroy Kind = iota
	// KindCallback counts scheduled cleanup callbacks.
	KindCallback
)

// Stats is a point-in-time snapshot of all engine counters.
type Stats struct {
	Pins           uint64 `json:"pins"`
	Releases       uint64 `json:"releases"`
	Advances       uint64 `json:"advances"`
	StalledAdvance uint64 `json:"stalled_advances"`
	Flushes        uint64 `json:"flushes"`
	DeferDestroy   uint64 `json:"defer_destroy"`
	DeferCallback  uint64 `json:"defer_callback"`
	Sealed         uint64 `json:"sealed"`
	Drains         uint64 `json:"drains"`
	Executed       uint64 `json:"executed"`
	Pending        uint64 `json:"pending"`
	PendingPeak    uint64 `json:"pending_peak"`
	ThresholdHits  uint64 `json:"threshold_hits"`
}

// Metrics tracks reclamation engine activity with atomic counters.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	pins           atomic.Uint64
	releases       atomic.Uint64
	advances       atomic.Uint64
	stalledAdvance atomic.Uint64
	flushes        atomic.Uint64
	deferDestroy   atomic.Uint64
	deferCallback  atomic.Uint64
	sealed         atomic.Uint64
	drains         atomic.Uint64
	executed       atomic.Uint64
	pending        atomic.Uint64
	pendingPeak    atomic.Uint64
	thresholdHits  atomic.Uint64
}

// NewMetrics creates a new metrics instance with all counters at zero.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordPin records a successful pin (guard creation).
func (m *Metrics) RecordPin() {
	if m == nil {
		return
	}
	m.pins.Add(1)
}

// RecordRelease records a guard release.
func (m *Metrics) RecordRelease() {
	if m == nil {
		return
	}
	m.releases.Add(1)
}

// RecordAdvance records an epoch advancement attempt. advanced reports
// whether the global epoch actually moved.
func (m *Metrics) RecordAdvance(advanced bool) {
	if m == nil {
		return
	}
	if advanced {
		m.advances.Add(1)
	} else {
		m.stalledAdvance.Add(1)
	}
}

// RecordFlush records an explicit guard flush.
func (m *Metrics) RecordFlush() {
	if m == nil {
		return
	}
	m.flushes.Add(1)
}

// RecordDefer records a deferred action of the given kind.
func (m *Metrics) RecordDefer(kind Kind) {
	if m == nil {
		return
	}
	if kind == KindDestroy {
		m.deferDestroy.Add(1)
	} else {
		m.deferCallback.Add(1)
	}
}

// RecordSeal records n guard-local actions moving into a global bag.
func (m *Metrics) RecordSeal(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sealed.Add(uint64(n))
}

// RecordDrain records a drain pass that executed n actions.
func (m *Metrics) RecordDrain(n int) {
	if m == nil {
		return
	}
	m.drains.Add(1)
	if n > 0 {
		m.executed.Add(uint64(n))
	}
}

// RecordThresholdHit records the pending-action count crossing the
// configured drain threshold.
func (m *Metrics) RecordThresholdHit() {
	if m == nil {
		return
	}
	m.thresholdHits.Add(1)
}

// SetPending updates the pending-garbage gauge and its high-water mark.
func (m *Metrics) SetPending(n uint64) {
	if m == nil {
		return
	}
	m.pending.Store(n)
	for {
		peak := m.pendingPeak.Load()
		if n <= peak || m.pendingPeak.CompareAndSwap(peak, n) {
			return
		}
	}
}

// GetStats returns a snapshot of all counters.
func (m *Metrics) GetStats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Pins:           m.pins.Load(),
		Releases:       m.releases.Load(),
		Advances:       m.advances.Load(),
		StalledAdvance: m.stalledAdvance.Load(),
		Flushes:        m.flushes.Load(),
		DeferDestroy:   m.deferDestroy.Load(),
		DeferCallback:  m.deferCallback.Load(),
		Sealed:         m.sealed.Load(),
		Drains:         m.drains.Load(),
		Executed:       m.executed.Load(),
		Pending:        m.pending.Load(),
		PendingPeak:    m.pendingPeak.Load(),
		ThresholdHits:  m.thresholdHits.Load(),
	}
}

// String renders the current snapshot as compact JSON.
func (m *Metrics) String() string {
	data, err := json.Marshal(m.GetStats())
	if err != nil {
		return fmt.Sprintf("metrics: %v", err)
	}
	return string(data)
}
