// Package workers splits index ranges across a fixed number of goroutines.
package workers

import "sync"

// Range calls fn on contiguous, disjoint sub-ranges of [0, n) from at most
// numWorkers goroutines and waits for all of them. fn must only write to
// outputs owned by its own range.
func Range(n, numWorkers int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > n {
		numWorkers = n
	}
	if numWorkers == 1 {
		fn(0, n)
		return
	}

	perWorker := (n + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		start := w * perWorker
		if start >= n {
			break
		}
		end := start + perWorker
		if end > n {
			end = n
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(start, end)
	}
	wg.Wait()
}
