package services

import (
	"context"
	"log/slog"
	"pheme/domain"
	"pheme/feed"
	"pheme/ledger"
	"pheme/mocks"
	"pheme/repositories"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func openMailbox(t *testing.T, dir string) (*Mailbox, *badger.DB) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	m, err := NewMailbox(log, repositories.NewUserRepository(db), feed.NewMemorySource("UBC"), ledger.New(log), Config{Delay: 0})
	require.NoError(t, err)
	return m, db
}

func TestMailbox_StoredUserSurvivesRestart(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	alice := domain.User{ID: uuid.New(), Username: "alice", PasswordHash: "hash-of-alice"}

	first, db := openMailbox(t, dir)
	req.True(first.RegisterUser(ctx, alice.ID, alice.Username, alice.PasswordHash))
	req.NoError(db.Close())

	second, db := openMailbox(t, dir)
	t.Cleanup(func() { _ = db.Close() })

	req.True(second.IsUser(alice.Username))
	req.False(second.RegisterUser(ctx, uuid.New(), alice.Username, "other-hash"))
	// A wrong hash never opens the stored mailbox
	req.False(second.Subscribe(ctx, alice.Username, "wrong", "UBC"))
	req.Empty(second.Queues())

	req.True(second.Subscribe(ctx, alice.Username, alice.PasswordHash, "UBC"))
	req.Contains(second.Queues(), alice.ID)

	msg := domain.NewMessage(alice.ID, []uuid.UUID{alice.ID}, "note to self", domain.DirectMessage)
	msg.Timestamp = msg.Timestamp.Add(-time.Second)
	req.True(second.Send(ctx, alice.Username, alice.PasswordHash, msg))
	req.True(second.Next(ctx, alice.Username, alice.PasswordHash).Equal(msg))

	req.True(second.DeregisterUser(ctx, alice.Username, alice.PasswordHash))
	req.False(second.IsUser(alice.Username))
	req.Empty(second.Queues())
}

func TestMailbox_DeregisterUser_UsernameChangedHands(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	repo := mocks.NewMockIUserRepository(ctrl)
	f := newFixture(t, repo)
	ctx := context.Background()
	old := domain.User{ID: uuid.New(), Username: "alice", PasswordHash: "hash"}
	successor := domain.User{ID: uuid.New(), Username: "alice", PasswordHash: "hash"}

	gomock.InOrder(
		repo.EXPECT().CreateUser(old).Return(nil),
		repo.EXPECT().GetUserByUsername("alice").Return(old, nil),
		// authentication still sees the old record
		repo.EXPECT().GetUserByUsername("alice").Return(old, nil),
		// the username was re-registered before the lock was taken
		repo.EXPECT().GetUserByUsername("alice").Return(successor, nil),
	)
	repo.EXPECT().DeleteUser(gomock.Any()).Times(0)

	req.True(f.mailbox.RegisterUser(ctx, old.ID, old.Username, old.PasswordHash))
	req.False(f.mailbox.DeregisterUser(ctx, old.Username, old.PasswordHash))
	req.Contains(f.mailbox.Queues(), old.ID)
}
