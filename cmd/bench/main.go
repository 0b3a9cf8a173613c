// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main provides benchmarking tools for the epoch-based reclamation
// engine.
//
// This command-line tool measures engine performance under different
// workloads and reports reclamation behavior alongside throughput. It's
// useful for performance testing, tuning drain thresholds, and comparing
// configurations.
//
// # Benchmark Categories
//
// The benchmark suite includes:
//   - Single-threaded operations (baseline pin/load/swap cost)
//   - Concurrent reads (pin scalability)
//   - Concurrent writes (swap contention and retirement pressure)
//   - Mixed workloads (real-world churn simulation)
//   - Reclamation lag (how far garbage trails the mutation rate)
//
// # Usage
//
// Run all benchmarks:
//
//	go run cmd/bench/main.go
//
// Build and run:
//
//	go build -o bench cmd/bench/main.go
//	./bench
//
// # Dangers and Warnings
//
//   - **Resource Consumption**: Benchmarks can consume significant CPU.
//   - **Garbage Collection**: Go's GC may impact results unpredictably.
//   - **CPU Affinity**: Results vary with core count and architecture.
//
// # See Also
//
// For detailed API documentation, see the root ebr package.
package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/kianostad/ebr/internal/concurrency/epoch"
	cage "github.com/kianostad/ebr/internal/core"
	"github.com/kianostad/ebr/internal/monitoring/metrics"
)

func main() {
	fmt.Println("Epoch-Based Reclamation Benchmarks")
	fmt.Println("==================================")

	// Benchmark 1: Single-threaded operations
	benchmarkSingleThreaded()

	// Benchmark 2: Concurrent reads
	benchmarkConcurrentReads()

	// Benchmark 3: Concurrent writes
	benchmarkConcurrentWrites()

	// Benchmark 4: Mixed workload
	benchmarkMixedWorkload()

	// Benchmark 5: Reclamation lag
	benchmarkReclamationLag()
}

func newBenchCage(c *epoch.Collector, size int) *cage.Cage[int] {
	return cage.New(c, size, func(i int) int { return i })
}

func benchmarkSingleThreaded() {
	fmt.Println("\n1. Single-threaded operations")
	c := epoch.NewCollector()
	cg := newBenchCage(c, 64)
	defer cg.Close()

	const numOps = 1000000

	start := time.Now()
	for i := 0; i < numOps; i++ {
		cg.Access(i%64, "bench")
	}
	duration := time.Since(start)
	fmt.Printf("   Access: %d ops in %v (%.0f ops/sec)\n", numOps, duration, float64(numOps)/duration.Seconds())

	start = time.Now()
	for i := 0; i < numOps; i++ {
		cg.Replace(i%64, "bench", i)
	}
	duration = time.Since(start)
	fmt.Printf("   Replace: %d ops in %v (%.0f ops/sec)\n", numOps, duration, float64(numOps)/duration.Seconds())
}

func benchmarkConcurrentReads() {
	fmt.Println("\n2. Concurrent reads")
	c := epoch.NewCollector()
	cg := newBenchCage(c, 64)
	defer cg.Close()

	const opsPerGoroutine = 200000
	for _, numGoroutines := range []int{1, 2, 4, 8, 16} {
		start := time.Now()
		var wg sync.WaitGroup
		for g := 0; g < numGoroutines; g++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for i := 0; i < opsPerGoroutine; i++ {
					cg.Access(i%64, "bench")
				}
			}()
		}
		wg.Wait()
		duration := time.Since(start)
		total := numGoroutines * opsPerGoroutine
		fmt.Printf("   %2d readers: %d ops in %v (%.0f ops/sec)\n",
			numGoroutines, total, duration, float64(total)/duration.Seconds())
	}
}

func benchmarkConcurrentWrites() {
	fmt.Println("\n3. Concurrent writes")

	const opsPerGoroutine = 100000
	for _, numGoroutines := range []int{1, 2, 4, 8} {
		c := epoch.NewCollector()
		cg := newBenchCage(c, 64)

		start := time.Now()
		var wg sync.WaitGroup
		for g := 0; g < numGoroutines; g++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for i := 0; i < opsPerGoroutine; i++ {
					cg.Replace(i%64, "bench", id*opsPerGoroutine+i)
				}
			}(g)
		}
		wg.Wait()
		duration := time.Since(start)
		total := numGoroutines * opsPerGoroutine
		fmt.Printf("   %2d writers: %d ops in %v (%.0f ops/sec)\n",
			numGoroutines, total, duration, float64(total)/duration.Seconds())
		cg.Close()
	}
}

func benchmarkMixedWorkload() {
	fmt.Println("\n4. Mixed workload")

	const numGoroutines = 8
	const opsPerGoroutine = 100000
	for _, writePercent := range []int{10, 30, 50} {
		c := epoch.NewCollector()
		cg := newBenchCage(c, 64)

		start := time.Now()
		var wg sync.WaitGroup
		for g := 0; g < numGoroutines; g++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for i := 0; i < opsPerGoroutine; i++ {
					if i%100 < writePercent {
						cg.Replace(i%64, "bench", id*opsPerGoroutine+i)
					} else {
						cg.Access(i%64, "bench")
					}
				}
			}(g)
		}
		wg.Wait()
		duration := time.Since(start)
		total := numGoroutines * opsPerGoroutine
		fmt.Printf("   %d%% writes: %d ops in %v (%.0f ops/sec)\n",
			writePercent, total, duration, float64(total)/duration.Seconds())
		cg.Close()
	}
}

func benchmarkReclamationLag() {
	fmt.Println("\n5. Reclamation lag")

	for _, threshold := range []int{64, 256, 1024} {
		m := metrics.NewMetrics()
		c := epoch.NewCollector(epoch.WithThreshold(threshold), epoch.WithMetrics(m))
		cg := newBenchCage(c, 64)

		const numOps = 500000
		var wg sync.WaitGroup
		for g := 0; g < 4; g++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				for i := 0; i < numOps/4; i++ {
					cg.Replace(i%64, "bench", id*numOps+i)
				}
			}(g)
		}
		wg.Wait()

		stats := m.GetStats()
		fmt.Printf("   threshold %4d: peak pending %d, drains %d, stalled advances %d\n",
			threshold, stats.PendingPeak, stats.Drains, stats.StalledAdvance)
		cg.Close()
	}
}
