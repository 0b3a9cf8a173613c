// Licensed under the MIT License. See LICENSE file in the project root for details.

package ebr

import (
	"fmt"
	"testing"
)

func TestPublicAPI(t *testing.T) {
	collector := NewCollector()

	var destroyed []string
	cg := NewCage(collector, 3, func(i int) string {
		return fmt.Sprintf("value-%d", i)
	}, WithDestroy[string](func(v string) {
		destroyed = append(destroyed, v)
	}))

	// Access and replace through the facade
	cg.Access(0, "reader")
	old := cg.Replace(1, "writer", "updated")
	if old != "value-1" {
		t.Errorf("Expected value-1 dislodged, got %s", old)
	}

	// Nothing reclaimed until the epoch has moved on
	if len(destroyed) != 0 {
		t.Errorf("Expected no destruction before drain, got %v", destroyed)
	}

	collector.DrainAll()
	if len(destroyed) != 1 || destroyed[0] != "value-1" {
		t.Errorf("Expected [value-1] destroyed, got %v", destroyed)
	}

	// Close destroys the three still-live values on top of the drained one
	cg.Close()
	if len(destroyed) != 4 {
		t.Errorf("Expected 4 destructions after close, got %d", len(destroyed))
	}
}

func TestPublicSlotAPI(t *testing.T) {
	collector := NewCollector()
	s := NewSlot("first")

	g := collector.Pin()
	if got := s.Load(g).Value(); got != "first" {
		t.Errorf("Expected first, got %s", got)
	}

	old := s.Swap("second", g)
	if old != "first" {
		t.Errorf("Expected first dislodged, got %s", old)
	}

	freed := false
	g.DeferDestroy(old, func() { freed = true })
	g.Release()

	if freed {
		t.Error("Deferred destruction ran before the grace period")
	}
	collector.DrainAll()
	if !freed {
		t.Error("Deferred destruction never ran")
	}
}

func TestPublicMetricsAPI(t *testing.T) {
	m := NewMetrics()
	collector := NewCollector(WithMetrics(m), WithThreshold(8))

	g := collector.Pin()
	g.Defer(func() {})
	g.Release()
	collector.DrainAll()

	stats := m.GetStats()
	if stats.Pins != 1 || stats.Releases != 1 {
		t.Errorf("Expected 1 pin and 1 release, got %d/%d", stats.Pins, stats.Releases)
	}
	if stats.DeferCallback != 1 {
		t.Errorf("Expected 1 deferred callback, got %d", stats.DeferCallback)
	}
	if stats.Executed != 1 {
		t.Errorf("Expected 1 executed action, got %d", stats.Executed)
	}
}
