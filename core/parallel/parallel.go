// Package parallel splits row loops into contiguous chunks processed by one
// goroutine per CPU. Callers must only write to rows inside their chunk.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultRowThreshold is the row count below which callers should stay
// sequential; goroutine start-up dominates for smaller matrices.
const DefaultRowThreshold = 2048

// chunks returns the [start, end) ranges covering items, one per worker.
func chunks(items int) [][2]int {
	numWorkers := runtime.NumCPU()
	if numWorkers > items {
		numWorkers = items
	}
	chunkSize := (items + numWorkers - 1) / numWorkers

	out := make([][2]int, 0, numWorkers)
	for start := 0; start < items; start += chunkSize {
		end := start + chunkSize
		if end > items {
			end = items
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

// Rows runs fn over [0, items) split into per-CPU chunks when items exceeds
// threshold, and sequentially otherwise. Every chunk runs to completion; the
// first error returned by any chunk is reported.
func Rows(items, threshold int, fn func(start, end int) error) error {
	if items == 0 {
		return nil
	}
	if items <= threshold {
		return fn(0, items)
	}

	var g errgroup.Group
	for _, r := range chunks(items) {
		s, e := r[0], r[1]
		g.Go(func() error {
			return fn(s, e)
		})
	}
	return g.Wait()
}

// Parallelize is Rows for loops that cannot fail.
func Parallelize(items, threshold int, fn func(start, end int)) {
	_ = Rows(items, threshold, func(start, end int) error {
		fn(start, end)
		return nil
	})
}
