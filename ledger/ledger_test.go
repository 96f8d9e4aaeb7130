package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"pheme/contract"
	"pheme/mocks"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLedger_UnknownMessage(t *testing.T) {
	req := require.New(t)
	l := New(logs.GetLoggerFromLevel(slog.LevelDebug))

	id, user := uuid.New(), uuid.New()
	req.False(l.IsDelivered(id, user))
	req.Empty(l.IsDeliveredAll(id, []uuid.UUID{user}))
	req.Equal(Unknown, l.Status(id, user))
}

func TestLedger_TargetThenConfirm(t *testing.T) {
	req := require.New(t)
	l := New(logs.GetLoggerFromLevel(slog.LevelDebug))

	id := uuid.New()
	u1, u2, u3 := uuid.New(), uuid.New(), uuid.New()

	l.Target(id, []uuid.UUID{u1, u2})
	req.Equal([]bool{true, true, false}, l.IsDeliveredAll(id, []uuid.UUID{u1, u2, u3}))
	req.Equal(Targeted, l.Status(id, u1))

	l.Confirm(id, u1)
	req.Equal(Confirmed, l.Status(id, u1))

	// Targeting again never downgrades a confirmation
	l.Target(id, []uuid.UUID{u1})
	req.Equal(Confirmed, l.Status(id, u1))
}

func TestLedger_ConfirmCreatesEntry(t *testing.T) {
	req := require.New(t)
	l := New(logs.GetLoggerFromLevel(slog.LevelDebug))

	id, user := uuid.New(), uuid.New()
	req.False(l.IsDelivered(id, user))
	l.Confirm(id, user)
	req.True(l.IsDelivered(id, user))
}

func TestLedger_Forget(t *testing.T) {
	req := require.New(t)
	l := New(logs.GetLoggerFromLevel(slog.LevelDebug))

	id := uuid.New()
	u1, u2 := uuid.New(), uuid.New()
	l.Target(id, []uuid.UUID{u1, u2})

	l.Forget(u1)
	req.False(l.IsDelivered(id, u1))
	req.True(l.IsDelivered(id, u2))

	l.Forget(u2)
	req.Nil(l.IsDeliveredAll(id, []uuid.UUID{u2}))
}

func TestLedger_ConcurrentConfirm(t *testing.T) {
	req := require.New(t)
	l := New(logs.GetLoggerFromLevel(slog.LevelDebug))

	id := uuid.New()
	receivers := make([]uuid.UUID, 64)
	for i := range receivers {
		receivers[i] = uuid.New()
	}

	var wg sync.WaitGroup
	for _, r := range receivers {
		wg.Add(1)
		go func(r uuid.UUID) {
			defer wg.Done()
			l.Confirm(id, r)
		}(r)
	}
	wg.Wait()

	for _, ok := range l.IsDeliveredAll(id, receivers) {
		req.True(ok)
	}
}

func TestLedger_NotifiesSinks(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink := mocks.NewMockDeliverySink(ctrl)
	l := New(logs.GetLoggerFromLevel(slog.LevelDebug), sink)

	id := uuid.New()
	u1, u2 := uuid.New(), uuid.New()

	var got []contract.Delivery
	sink.EXPECT().
		Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d contract.Delivery) error {
			got = append(got, d)
			return nil
		}).
		Times(3)

	l.Target(id, []uuid.UUID{u1, u2})
	l.Confirm(id, u1)

	req.Len(got, 3)
	req.Equal("targeted", got[0].Status)
	req.Equal("confirmed", got[2].Status)
	req.Equal(u1, got[2].ReceiverID)
}

func TestLedger_SinkFailureDoesNotBreakLedger(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sink := mocks.NewMockDeliverySink(ctrl)
	sink.EXPECT().Consume(gomock.Any(), gomock.Any()).Return(fmt.Errorf("disk full")).Times(1)

	l := New(logs.GetLoggerFromLevel(slog.LevelDebug), sink)
	id, user := uuid.New(), uuid.New()
	l.Confirm(id, user)
	req.True(l.IsDelivered(id, user))
}

func TestLedger_TargetAfterConfirmKeepsJournalConfirmed(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)

	sink := mocks.NewMockDeliverySink(ctrl)
	l := New(logs.GetLoggerFromLevel(slog.LevelDebug), sink)

	id := uuid.New()
	u1, u2 := uuid.New(), uuid.New()

	journal := map[uuid.UUID]string{}
	sink.EXPECT().
		Consume(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, d contract.Delivery) error {
			journal[d.ReceiverID] = d.Status
			return nil
		}).
		Times(2)

	l.Confirm(id, u1)
	// A re-send targets u1 again alongside a new receiver
	l.Target(id, []uuid.UUID{u1, u2})

	req.Equal(Confirmed, l.Status(id, u1))
	req.Equal("confirmed", journal[u1])
	req.Equal("targeted", journal[u2])

	// Nothing changes, nothing is journaled
	l.Target(id, []uuid.UUID{u1, u2})
}
