//go:generate go run go.uber.org/mock/mockgen -source=source.go -destination=../mocks/mock_feed_source.go -package=mocks
package feed

import (
	"context"
	"pheme/domain"
	"time"
)

// Source is the external content provider feeds are pulled from.
type Source interface {
	// FetchNewItems returns the items published by account after since.
	FetchNewItems(ctx context.Context, account string, since time.Time) ([]domain.FeedItem, error)
	AccountExists(ctx context.Context, account string) (bool, error)
}
