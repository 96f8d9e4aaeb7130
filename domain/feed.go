package domain

import (
	"time"

	"github.com/google/uuid"
)

// FeedItem is a piece of content published by an external feed account.
type FeedItem struct {
	Author    string
	Timestamp time.Time
	Text      string
}

// FeedAuthorID derives a stable sender identifier from a feed author,
// the same author always maps to the same UUID.
func FeedAuthorID(author string) uuid.UUID {
	return uuid.NewMD5(uuid.Nil, []byte(author))
}

// ToMessage bridges a feed item into a feed-item message for one receiver.
// The message keeps the original publication time.
func (f FeedItem) ToMessage(receiver uuid.UUID) Message {
	return Message{
		ID:          uuid.New(),
		Timestamp:   f.Timestamp,
		SenderID:    FeedAuthorID(f.Author),
		ReceiverIDs: []uuid.UUID{receiver},
		Content:     f.Text,
		Type:        FeedItemType,
	}
}
