// Package ledger records which receivers got which messages.
// An entry is either targeted (recorded when a message is sent) or
// confirmed (recorded when a receiver queue actually released it).
package ledger

import (
	"context"
	"log/slog"
	"pheme/contract"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Status int

const (
	Unknown Status = iota
	Targeted
	Confirmed
)

func (s Status) String() string {
	switch s {
	case Targeted:
		return "targeted"
	case Confirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

type Ledger struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]map[uuid.UUID]Status
	sinks   []contract.DeliverySink
	log     *slog.Logger
}

func New(log *slog.Logger, sinks ...contract.DeliverySink) *Ledger {
	return &Ledger{
		entries: make(map[uuid.UUID]map[uuid.UUID]Status),
		sinks:   sinks,
		log:     log,
	}
}

// Target records the intended receivers of a message.
// Receivers already confirmed keep their status.
func (l *Ledger) Target(messageID uuid.UUID, receivers []uuid.UUID) {
	l.mu.Lock()
	entry := l.entryLocked(messageID)
	var changed []uuid.UUID
	for _, r := range receivers {
		if entry[r] < Targeted {
			entry[r] = Targeted
			changed = append(changed, r)
		}
	}
	l.mu.Unlock()

	// Only transitions reach the sinks, a confirmed journal entry is never rewritten
	l.notify(lo.Map(changed, func(r uuid.UUID, _ int) contract.Delivery {
		return contract.Delivery{MessageID: messageID, ReceiverID: r, Status: Targeted.String(), At: time.Now().UTC()}
	}))
}

// Confirm appends receiver as having actually received the message.
func (l *Ledger) Confirm(messageID, receiver uuid.UUID) {
	l.mu.Lock()
	l.entryLocked(messageID)[receiver] = Confirmed
	l.mu.Unlock()

	l.notify([]contract.Delivery{{
		MessageID:  messageID,
		ReceiverID: receiver,
		Status:     Confirmed.String(),
		At:         time.Now().UTC(),
	}})
}

func (l *Ledger) entryLocked(messageID uuid.UUID) map[uuid.UUID]Status {
	entry, ok := l.entries[messageID]
	if !ok {
		entry = make(map[uuid.UUID]Status)
		l.entries[messageID] = entry
	}
	return entry
}

func (l *Ledger) Status(messageID, receiver uuid.UUID) Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries[messageID][receiver]
}

// IsDelivered is true for targeted and confirmed receivers alike.
func (l *Ledger) IsDelivered(messageID, receiver uuid.UUID) bool {
	return l.Status(messageID, receiver) != Unknown
}

// IsDeliveredAll answers one boolean per queried receiver, in order.
// An unknown message id yields an empty result.
func (l *Ledger) IsDeliveredAll(messageID uuid.UUID, receivers []uuid.UUID) []bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entry, ok := l.entries[messageID]
	if !ok {
		return nil
	}
	return lo.Map(receivers, func(r uuid.UUID, _ int) bool {
		return entry[r] != Unknown
	})
}

// Forget removes receiver from every entry, used when a user leaves.
func (l *Ledger) Forget(receiver uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for id, entry := range l.entries {
		delete(entry, receiver)
		if len(entry) == 0 {
			delete(l.entries, id)
		}
	}
}

func (l *Ledger) notify(deliveries []contract.Delivery) {
	if len(l.sinks) == 0 {
		return
	}
	ctx := context.Background()
	for _, sink := range l.sinks {
		for _, d := range deliveries {
			if err := sink.Consume(ctx, d); err != nil {
				l.log.Warn("Delivery sink failed", "message_id", d.MessageID, "error", err)
			}
		}
	}
}
