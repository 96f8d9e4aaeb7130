package feed

import (
	"context"
	"fmt"
	"log/slog"
	"pheme/domain"
	"pheme/errors"
	"pheme/mocks"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"
)

func newTestSubscriptions(source Source) *Subscriptions {
	return NewSubscriptions(source, rate.NewLimiter(rate.Inf, 1), 4, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func publish(t *testing.T, source *MemorySource, account, text string, at time.Time) {
	t.Helper()
	require.NoError(t, source.Publish(account, domain.FeedItem{Text: text, Timestamp: at}))
}

func TestSubscriptions_Add(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	subs := newTestSubscriptions(NewMemorySource("UBC"))

	ok, err := subs.Add(ctx, "UBC")
	req.NoError(err)
	req.True(ok)

	// Already followed
	ok, err = subs.Add(ctx, "UBC")
	req.NoError(err)
	req.False(ok)

	// Unknown account
	ok, err = subs.Add(ctx, "nobody")
	req.NoError(err)
	req.False(ok)

	req.Equal([]string{"UBC"}, subs.Accounts())
}

func TestSubscriptions_Add_SourceFailure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := mocks.NewMockSource(ctrl)
	source.EXPECT().AccountExists(gomock.Any(), "UBC").Return(false, fmt.Errorf("timeout")).Times(1)

	ok, err := newTestSubscriptions(source).Add(context.Background(), "UBC")
	req.Error(err)
	req.False(ok)
}

func TestSubscriptions_FetchNew_OnlyNewItems(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := NewMemorySource("UBC")
	subs := newTestSubscriptions(source)

	publish(t, source, "UBC", "old news", time.Now().Add(-time.Hour))
	_, err := subs.Add(ctx, "UBC")
	req.NoError(err)

	items, err := subs.FetchNew(ctx)
	req.NoError(err)
	req.Len(items, 1)
	req.Equal("UBC", items[0].Author)

	// Second time around, in quick succession, nothing new
	items, err = subs.FetchNew(ctx)
	req.NoError(err)
	req.Empty(items)

	publish(t, source, "UBC", "fresh news", time.Now().Add(time.Minute))
	items, err = subs.FetchNew(ctx)
	req.NoError(err)
	req.Len(items, 1)
	req.Equal("fresh news", items[0].Text)
}

func TestSubscriptions_FetchNew_FirstCallStartsAtEpoch(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := mocks.NewMockSource(ctrl)
	source.EXPECT().AccountExists(gomock.Any(), "UBC").Return(true, nil)
	source.EXPECT().FetchNewItems(gomock.Any(), "UBC", Epoch).Return(nil, nil).Times(1)

	subs := newTestSubscriptions(source)
	_, err := subs.Add(context.Background(), "UBC")
	req.NoError(err)

	items, err := subs.FetchNew(context.Background())
	req.NoError(err)
	req.Empty(items)
}

func TestSubscriptions_FetchNew_FailedAccountIsRetriedFromSamePoint(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	source := mocks.NewMockSource(ctrl)
	source.EXPECT().AccountExists(gomock.Any(), "UBC").Return(true, nil)
	gomock.InOrder(
		source.EXPECT().FetchNewItems(gomock.Any(), "UBC", Epoch).Return(nil, fmt.Errorf("rate limited")),
		source.EXPECT().FetchNewItems(gomock.Any(), "UBC", Epoch).Return(nil, nil),
	)

	subs := newTestSubscriptions(source)
	_, err := subs.Add(context.Background(), "UBC")
	req.NoError(err)

	_, err = subs.FetchNew(context.Background())
	req.Error(err)
	_, err = subs.FetchNew(context.Background())
	req.NoError(err)
}

func TestSubscriptions_FetchNew_PatternFilter(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := NewMemorySource("UBC", "SFU")
	subs := newTestSubscriptions(source)

	base := time.Now().Add(-time.Hour)
	publish(t, source, "UBC", "UBC campus closed", base.Add(3*time.Second))
	publish(t, source, "UBC", "Weather update", base.Add(1*time.Second))
	publish(t, source, "SFU", "anything goes", base.Add(2*time.Second))

	ok, err := subs.AddPattern(ctx, "UBC", "CAMPUS")
	req.NoError(err)
	req.True(ok)
	ok, err = subs.Add(ctx, "SFU")
	req.NoError(err)
	req.True(ok)

	items, err := subs.FetchNew(ctx)
	req.NoError(err)
	req.Len(items, 2)
	// Items come out in chronological order across accounts
	req.Equal("anything goes", items[0].Text)
	req.Equal("UBC campus closed", items[1].Text)
}

func TestSubscriptions_CancelPattern_KeepsOtherPatterns(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	source := NewMemorySource("UBC")
	subs := newTestSubscriptions(source)

	_, err := subs.AddPattern(ctx, "UBC", "exam")
	req.NoError(err)
	_, err = subs.AddPattern(ctx, "UBC", "campus")
	req.NoError(err)

	req.True(subs.CancelPattern("UBC", "Exam"))
	req.False(subs.CancelPattern("UBC", "exam"))
	req.Equal([]string{"UBC"}, subs.Accounts())

	base := time.Now().Add(-time.Hour)
	publish(t, source, "UBC", "exam schedule", base)
	publish(t, source, "UBC", "campus map", base.Add(time.Second))

	items, err := subs.FetchNew(ctx)
	req.NoError(err)
	req.Len(items, 1)
	req.Equal("campus map", items[0].Text)

	// Removing the last pattern forgets the account
	req.True(subs.CancelPattern("UBC", "campus"))
	req.Empty(subs.Accounts())
}

func TestSubscriptions_Cancel(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	subs := newTestSubscriptions(NewMemorySource("UBC"))

	req.False(subs.Cancel("UBC"))
	_, err := subs.AddPattern(ctx, "UBC", "exam")
	req.NoError(err)
	req.True(subs.Cancel("UBC"))
	req.Empty(subs.Accounts())
}

func TestSubscriptions_Timeline_UnknownAccount(t *testing.T) {
	req := require.New(t)
	subs := newTestSubscriptions(NewMemorySource())

	_, err := subs.Timeline(context.Background(), "nobody", Epoch)
	req.ErrorIs(err, errors.ErrUnknownFeedAccount)
}

func TestSubscriptions_Timeline(t *testing.T) {
	req := require.New(t)
	source := NewMemorySource("UBC")
	subs := newTestSubscriptions(source)
	publish(t, source, "UBC", "hello", time.Now())

	items, err := subs.Timeline(context.Background(), "UBC", Epoch)
	req.NoError(err)
	req.Len(items, 1)
}
