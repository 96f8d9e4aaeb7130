package workers

import (
	"context"
	"log/slog"
	"pheme/queue"
	"time"

	"github.com/google/uuid"
)

// QueueSource exposes the live recipient queues.
// The snapshot may be stale, a queue removed meanwhile is purged once more for nothing.
type QueueSource interface {
	Queues() map[uuid.UUID]*queue.DelayQueue
}

// JanitorWorker periodically drops expired time-limited messages from every
// queue so they stop taking memory when their recipient never polls.
// It also samples the peak load of each queue over peakWindow.
type JanitorWorker struct {
	log           *slog.Logger
	source        QueueSource
	purgeInterval time.Duration
	peakWindow    time.Duration
}

func NewJanitorWorker(log *slog.Logger, source QueueSource,
	purgeInterval, peakWindow time.Duration) *JanitorWorker {
	return &JanitorWorker{
		log:           log,
		source:        source,
		purgeInterval: purgeInterval,
		peakWindow:    peakWindow,
	}
}

func (w JanitorWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping janitor")
			return nil
		case <-ticker.C:
			w.sweep()
		}
	}
}

// sweep returns the number of messages purged across all queues.
func (w JanitorWorker) sweep() int {
	total := 0
	for id, q := range w.source.Queues() {
		purged := q.Purge()
		total += purged
		if w.peakWindow <= 0 {
			continue
		}
		peak, err := q.PeakLoad(w.peakWindow)
		if err != nil {
			w.log.Warn("Peak load unavailable", "user_id", id, "error", err)
			continue
		}
		w.log.Debug("Queue swept",
			"user_id", id,
			"purged", purged,
			"pending", q.Len(),
			"peak_load", peak)
	}
	if total > 0 {
		w.log.Info("Expired messages purged", "count", total)
	}
	return total
}
