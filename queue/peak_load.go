package queue

import (
	"pheme/errors"
	"slices"
	"time"
)

// PeakLoad returns the highest number of operations (adds and pulls,
// successful or not) recorded within any window [start, start+window)
// where start is one of the logged operations.
func (q *DelayQueue) PeakLoad(window time.Duration) (int, error) {
	if window <= 0 {
		return 0, errors.ErrInvalidWindow
	}

	q.mu.Lock()
	sorted := slices.Clone(q.ops)
	q.mu.Unlock()

	return peakLoad(sorted, window), nil
}

// peakLoad sorts ops in place then sweeps it with two cursors.
func peakLoad(ops []time.Time, window time.Duration) int {
	slices.SortFunc(ops, func(a, b time.Time) int {
		return a.Compare(b)
	})

	peak, end := 0, 0
	for start := range ops {
		limit := ops[start].Add(window)
		if end < start {
			end = start
		}
		for end < len(ops) && ops[end].Before(limit) {
			end++
		}
		peak = max(peak, end-start)
	}
	return peak
}
