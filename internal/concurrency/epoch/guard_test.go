// Licensed under the MIT License. See LICENSE file in the project root for details.

package epoch

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGuardDeferVariants(t *testing.T) {
	Convey("Given a pinned guard", t, func() {
		c := NewCollector()
		g := c.Pin()

		Convey("Defer and DeferDestroy ride the same primitive", func() {
			callbackRan := false
			destroyRan := false
			type payload struct{ name string }
			p := &payload{name: "canary"}

			g.Defer(func() { callbackRan = true })
			g.DeferDestroy(p, func() { destroyRan = true })
			g.Release()

			Convey("Neither runs synchronously", func() {
				So(callbackRan, ShouldBeFalse)
				So(destroyRan, ShouldBeFalse)
			})

			Convey("Both run on drain, with the same guarantee", func() {
				c.DrainAll()
				So(callbackRan, ShouldBeTrue)
				So(destroyRan, ShouldBeTrue)
			})
		})

		Convey("Structured actions stay inspectable", func() {
			d := NewDestroy("victim", func() {})
			So(d.Kind(), ShouldEqual, KindDestroy)
			So(d.Target(), ShouldEqual, "victim")

			cb := NewCallback(func() {})
			So(cb.Kind(), ShouldEqual, KindCallback)
			So(cb.Target(), ShouldBeNil)

			g.Release()
		})
	})
}

func TestGuardReleasedPreconditions(t *testing.T) {
	Convey("Given a released guard", t, func() {
		c := NewCollector()
		g := c.Pin()
		g.Release()

		Convey("Defer panics", func() {
			So(func() { g.Defer(func() {}) }, ShouldPanic)
		})

		Convey("DeferDestroy panics", func() {
			So(func() { g.DeferDestroy(1, func() {}) }, ShouldPanic)
		})

		Convey("Flush panics", func() {
			So(func() { g.Flush() }, ShouldPanic)
		})
	})
}

func TestGuardGracePeriod(t *testing.T) {
	Convey("Given an action sealed at a known epoch", t, func() {
		c := NewCollector()

		g := c.Pin()
		sealedAt := c.Epoch()
		var executedAt uint64
		ran := false
		g.Defer(func() {
			executedAt = c.Epoch()
			ran = true
		})
		g.Flush()
		g.Release()

		Convey("It only executes once the epoch advanced at least twice past it", func() {
			c.DrainAll()
			So(ran, ShouldBeTrue)
			So(executedAt, ShouldBeGreaterThanOrEqualTo, sealedAt+2)
		})
	})
}

func TestGuardFlushTiming(t *testing.T) {
	Convey("Given a guard with deferred work", t, func() {
		c := NewCollector()
		ran := 0

		g := c.Pin()
		g.Defer(func() { ran++ })

		Convey("Any number of flushes changes timing, never correctness", func() {
			g.Flush()
			g.Flush()
			g.Flush()
			So(ran, ShouldEqual, 0) // own pin caps advancement

			g.Release()
			c.DrainAll()
			So(ran, ShouldEqual, 1)
		})

		Convey("Zero flushes also reclaims after release", func() {
			g.Release()
			c.DrainAll()
			So(ran, ShouldEqual, 1)
		})
	})
}
