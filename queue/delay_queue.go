// Package queue holds the per-recipient delay-gated buffer.
// A DelayQueue only releases a message once it is old enough, oldest first,
// and never hands out a time-limited message past its lifetime.
package queue

import (
	"pheme/domain"
	"pheme/errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Option func(*DelayQueue)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(q *DelayQueue) {
		q.now = now
	}
}

// DelayQueue is safe for concurrent use.
// Every method locks the queue for its whole duration.
type DelayQueue struct {
	mu       sync.Mutex
	delay    time.Duration
	pending  []domain.Message // insertion order
	ids      map[uuid.UUID]struct{}
	accepted int64
	purged   int64
	ops      []time.Time
	now      func() time.Time
}

func New(delay time.Duration, opts ...Option) (*DelayQueue, error) {
	if delay < 0 {
		return nil, errors.ErrInvalidDelay
	}
	q := &DelayQueue{
		delay: delay,
		ids:   make(map[uuid.UUID]struct{}),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

func (q *DelayQueue) Delay() time.Duration {
	return q.delay
}

// Add buffers msg unless a message with the same id is already pending.
// It returns false for a duplicate, which is a no-op.
func (q *DelayQueue) Add(msg domain.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.ops = append(q.ops, q.now())
	if _, ok := q.ids[msg.ID]; ok {
		return false
	}
	q.ids[msg.ID] = struct{}{}
	// The caller keeps no handle on the buffered copy
	q.pending = append(q.pending, msg.Clone())
	q.accepted++
	return true
}

// Next releases the oldest eligible message, or domain.NoMessage.
// Expired time-limited messages met during the scan are dropped.
func (q *DelayQueue) Next() domain.Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.ops = append(q.ops, now)
	q.purgeLocked(now)

	best := -1
	for i, msg := range q.pending {
		if !msg.ReleasableAt(now, q.delay) {
			continue
		}
		// Strict comparison keeps the earliest inserted on equal timestamps
		if best < 0 || msg.Timestamp.Before(q.pending[best].Timestamp) {
			best = i
		}
	}
	if best < 0 {
		return domain.NoMessage
	}

	msg := q.pending[best]
	q.pending = slices.Delete(q.pending, best, best+1)
	delete(q.ids, msg.ID)
	return msg
}

// NextReleaseAt returns the earliest instant at which a buffered message
// becomes eligible. False means nothing pending can ever be released.
func (q *DelayQueue) NextReleaseAt() (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		earliest time.Time
		found    bool
	)
	for _, msg := range q.pending {
		at := msg.Timestamp.Add(q.delay)
		if msg.ExpiredAt(at) {
			continue
		}
		if !found || at.Before(earliest) {
			earliest, found = at, true
		}
	}
	return earliest, found
}

// Purge drops every expired time-limited message and returns how many went.
func (q *DelayQueue) Purge() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.purgeLocked(q.now())
}

func (q *DelayQueue) purgeLocked(now time.Time) int {
	kept := q.pending[:0]
	dropped := 0
	for _, msg := range q.pending {
		if msg.ExpiredAt(now) {
			delete(q.ids, msg.ID)
			dropped++
			continue
		}
		kept = append(kept, msg)
	}
	clear(q.pending[len(kept):])
	q.pending = kept
	q.purged += int64(dropped)
	return dropped
}

// TotalAccepted counts every message ever inserted, duplicates excluded.
func (q *DelayQueue) TotalAccepted() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.accepted
}

func (q *DelayQueue) Purged() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.purged
}

// Len returns the number of buffered messages.
func (q *DelayQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
