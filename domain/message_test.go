package domain

import (
	"pheme/errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewTimeLimitedMessage(t *testing.T) {
	req := require.New(t)
	receivers := []uuid.UUID{uuid.New()}

	msg, err := NewTimeLimitedMessage(uuid.New(), receivers, "hi", DirectMessage, time.Second)
	req.NoError(err)
	req.True(msg.IsTimeLimited())
	req.Equal(time.Second, msg.LifetimeOrZero())

	// Mutating the caller slice leaves the message untouched
	receivers[0] = uuid.Nil
	req.NotEqual(uuid.Nil, msg.ReceiverIDs[0])

	_, err = NewTimeLimitedMessage(uuid.New(), receivers, "hi", DirectMessage, -time.Second)
	req.ErrorIs(err, errors.ErrInvalidLifetime)
}

func TestMessage_ReleasableAt(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	lifetime := 2 * time.Second
	plain := Message{ID: uuid.New(), Timestamp: now}
	limited := Message{ID: uuid.New(), Timestamp: now, Lifetime: &lifetime}

	tests := []struct {
		name  string
		msg   Message
		at    time.Duration
		delay time.Duration
		want  bool
	}{
		{"too young", plain, 500 * time.Millisecond, time.Second, false},
		{"exactly old enough", plain, time.Second, time.Second, true},
		{"plain never expires", plain, 24 * time.Hour, time.Second, true},
		{"limited within lifetime", limited, time.Second, time.Second, true},
		{"limited at lifetime", limited, lifetime, time.Second, true},
		{"limited past lifetime", limited, lifetime + time.Nanosecond, time.Second, false},
		{"delay beyond lifetime", limited, 3 * time.Second, 3 * time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.msg.ReleasableAt(now.Add(tt.at), tt.delay))
		})
	}
}

func TestMessage_EqualByID(t *testing.T) {
	req := require.New(t)
	msg := NewMessage(uuid.New(), []uuid.UUID{uuid.New()}, "a", DirectMessage)
	other := msg
	other.Content = "b"
	req.True(msg.Equal(other))
	req.False(msg.Equal(NewMessage(msg.SenderID, msg.ReceiverIDs, "a", DirectMessage)))
	req.True(NoMessage.IsNoMessage())
	req.True(msg.HasReceiver(msg.ReceiverIDs[0]))
	req.False(msg.HasReceiver(uuid.New()))
}

func TestFeedItem_ToMessage(t *testing.T) {
	req := require.New(t)
	receiver := uuid.New()
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	item := FeedItem{Author: "UBC", Timestamp: at, Text: "Exam schedule"}

	msg := item.ToMessage(receiver)
	req.NotEqual(uuid.Nil, msg.ID)
	req.Equal(at, msg.Timestamp)
	req.Equal(FeedItemType, msg.Type)
	req.Equal([]uuid.UUID{receiver}, msg.ReceiverIDs)
	req.Equal(FeedAuthorID("UBC"), msg.SenderID)
	req.NotEqual(FeedAuthorID("SFU"), msg.SenderID)
	req.False(msg.IsTimeLimited())

	// Each bridge produces a distinct message
	req.NotEqual(msg.ID, item.ToMessage(receiver).ID)
}

func TestValidateMessage(t *testing.T) {
	valid := NewMessage(uuid.New(), []uuid.UUID{uuid.New()}, "hello", DirectMessage)
	negative := -time.Second

	tests := []struct {
		name   string
		mutate func(m *Message)
		ok     bool
	}{
		{"valid", func(m *Message) {}, true},
		{"missing id", func(m *Message) { m.ID = uuid.Nil }, false},
		{"missing sender", func(m *Message) { m.SenderID = uuid.Nil }, false},
		{"no receivers", func(m *Message) { m.ReceiverIDs = nil }, false},
		{"nil receiver", func(m *Message) { m.ReceiverIDs = []uuid.UUID{uuid.New(), uuid.Nil} }, false},
		{"unknown type", func(m *Message) { m.Type = "broadcast" }, false},
		{"feed item type", func(m *Message) { m.Type = FeedItemType }, true},
		{"negative lifetime", func(m *Message) { m.Lifetime = &negative }, false},
		{"empty content", func(m *Message) { m.Content = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			m.ReceiverIDs = append([]uuid.UUID(nil), valid.ReceiverIDs...)
			tt.mutate(&m)
			err := ValidateMessage(m)
			if tt.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, errors.ErrInvalidMessage)
			}
		})
	}
}

func TestMessage_Clone(t *testing.T) {
	req := require.New(t)
	msg, err := NewTimeLimitedMessage(uuid.New(), []uuid.UUID{uuid.New()}, "hi", DirectMessage, time.Second)
	req.NoError(err)

	c := msg.Clone()
	*msg.Lifetime = time.Hour
	msg.ReceiverIDs[0] = uuid.Nil

	req.True(c.Equal(msg))
	req.Equal(time.Second, c.LifetimeOrZero())
	req.NotEqual(uuid.Nil, c.ReceiverIDs[0])
	req.Nil(Message{}.Clone().Lifetime)
}
