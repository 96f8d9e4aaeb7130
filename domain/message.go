// Package domain contains core concepts of the mailbox system.
// This file defines Message envelopes and their release rules.
// Messages are immutable once built.
package domain

import (
	"pheme/errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	DirectMessage MessageType = "direct"
	FeedItemType  MessageType = "feed-item"
)

// NoMessage is returned whenever nothing can be released.
var NoMessage = Message{}

// Message represents an immutable envelope routed to one or many receivers.
// A non-nil Lifetime makes the message time-limited.
type Message struct {
	ID          uuid.UUID
	Timestamp   time.Time
	SenderID    uuid.UUID
	ReceiverIDs []uuid.UUID
	Content     string
	Type        MessageType
	Lifetime    *time.Duration
}

func NewMessage(sender uuid.UUID, receivers []uuid.UUID, content string, messageType MessageType) Message {
	return Message{
		ID:          uuid.New(),
		Timestamp:   time.Now().UTC(),
		SenderID:    sender,
		ReceiverIDs: append([]uuid.UUID(nil), receivers...),
		Content:     content,
		Type:        messageType,
	}
}

// NewTimeLimitedMessage builds a message that can no longer be delivered
// once it is older than lifetime.
func NewTimeLimitedMessage(sender uuid.UUID, receivers []uuid.UUID, content string,
	messageType MessageType, lifetime time.Duration) (Message, error) {
	if lifetime < 0 {
		return Message{}, errors.ErrInvalidLifetime
	}
	msg := NewMessage(sender, receivers, content, messageType)
	msg.Lifetime = &lifetime
	return msg, nil
}

// Clone returns a copy sharing no memory with m.
func (m Message) Clone() Message {
	c := m
	c.ReceiverIDs = slices.Clone(m.ReceiverIDs)
	if m.Lifetime != nil {
		lifetime := *m.Lifetime
		c.Lifetime = &lifetime
	}
	return c
}

func (m Message) IsNoMessage() bool {
	return m.ID == uuid.Nil
}

func (m Message) IsTimeLimited() bool {
	return m.Lifetime != nil
}

func (m Message) LifetimeOrZero() time.Duration {
	if m.Lifetime == nil {
		return 0
	}
	return *m.Lifetime
}

// Equal compares messages by identifier only.
func (m Message) Equal(other Message) bool {
	return m.ID == other.ID
}

func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(m.Timestamp)
}

// ExpiredAt reports whether a time-limited message is past its lifetime.
// Plain messages never expire.
func (m Message) ExpiredAt(now time.Time) bool {
	return m.IsTimeLimited() && m.Age(now) > *m.Lifetime
}

// ReleasableAt reports whether the message may leave a queue with the given delay.
func (m Message) ReleasableAt(now time.Time, delay time.Duration) bool {
	return m.Age(now) >= delay && !m.ExpiredAt(now)
}

// HasReceiver reports whether id is one of the message receivers.
func (m Message) HasReceiver(id uuid.UUID) bool {
	for _, r := range m.ReceiverIDs {
		if r == id {
			return true
		}
	}
	return false
}
