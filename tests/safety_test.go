// Licensed under the MIT License. See LICENSE file in the project root for details.

package tests

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/kianostad/ebr/internal/concurrency/epoch"
	"github.com/kianostad/ebr/internal/storage/slot"
)

// canary is an instrumented payload that records its own destruction, so
// tests can assert a value was never observed after being reclaimed and
// never reclaimed twice.
type canary struct {
	name      string
	destroyed atomic.Bool
	destroys  atomic.Int64
}

func newCanary(name string) *canary {
	return &canary{name: name}
}

func (c *canary) destroy() {
	c.destroyed.Store(true)
	c.destroys.Add(1)
}

func (c *canary) live() bool {
	return !c.destroyed.Load()
}

// TestNoUseAfterFree checks that a value observed via Load under a guard is
// never reclaimed while that guard is alive, regardless of concurrent
// replacement and draining.
func TestNoUseAfterFree(t *testing.T) {
	Convey("Given readers and writers racing on one slot", t, func() {
		c := epoch.NewCollector(epoch.WithThreshold(16))
		s := slot.New(newCanary("initial"))

		var violations atomic.Int64
		var wg sync.WaitGroup
		const numReaders = 4
		const numWriters = 2
		const numOps = 2000

		for r := 0; r < numReaders; r++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < numOps; j++ {
					g := c.Pin()
					v := s.Load(g).Value()
					// The guard is still held: the value must be live,
					// no matter how many swaps or drains ran meanwhile.
					for k := 0; k < 4; k++ {
						if !v.live() {
							violations.Add(1)
						}
						runtime.Gosched()
					}
					g.Release()
				}
			}()
		}

		for w := 0; w < numWriters; w++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numOps; j++ {
					g := c.Pin()
					old := s.Swap(newCanary(fmt.Sprintf("w%d-%d", id, j)), g)
					g.DeferDestroy(old, old.destroy)
					g.Release()
					if j%64 == 0 {
						c.DrainAll()
					}
				}
			}(w)
		}

		wg.Wait()

		Convey("Then no guard ever observed a reclaimed value", func() {
			So(violations.Load(), ShouldEqual, 0)
		})

		Convey("And draining after quiescence reclaims everything retired", func() {
			c.DrainAll()
			So(c.Pending(), ShouldEqual, 0)

			g := c.Pin()
			So(s.Load(g).Value().live(), ShouldBeTrue)
			g.Release()
		})
	})
}

// TestExactlyOnceDestruction checks that every value ever stored is
// destroyed exactly once, eventually, after being dislodged.
func TestExactlyOnceDestruction(t *testing.T) {
	Convey("Given sustained replacement on one slot", t, func() {
		c := epoch.NewCollector()
		initial := newCanary("initial")
		s := slot.New(initial)

		var mu sync.Mutex
		all := []*canary{initial}

		var wg sync.WaitGroup
		const numWriters = 4
		const numOps = 1000

		for w := 0; w < numWriters; w++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for j := 0; j < numOps; j++ {
					v := newCanary(fmt.Sprintf("w%d-%d", id, j))
					mu.Lock()
					all = append(all, v)
					mu.Unlock()

					g := c.Pin()
					old := s.Swap(v, g)
					g.DeferDestroy(old, old.destroy)
					g.Release()
				}
			}(w)
		}
		wg.Wait()
		c.DrainAll()

		Convey("Then every dislodged value was destroyed exactly once", func() {
			g := c.Pin()
			final := s.Load(g).Value()
			g.Release()

			for _, v := range all {
				if v == final {
					So(v.destroys.Load(), ShouldEqual, 0)
				} else {
					So(v.destroys.Load(), ShouldEqual, 1)
				}
			}
		})
	})
}
