package feed

import (
	"context"
	"pheme/domain"
	"pheme/errors"
	"sync"
	"time"

	"github.com/samber/lo"
)

// MemorySource is an in-process Source: accounts are registered then
// items are published to them.
type MemorySource struct {
	mu       sync.RWMutex
	accounts map[string][]domain.FeedItem
}

func NewMemorySource(accounts ...string) *MemorySource {
	s := &MemorySource{accounts: make(map[string][]domain.FeedItem)}
	for _, a := range accounts {
		s.accounts[a] = nil
	}
	return s
}

func (s *MemorySource) Register(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account]; !ok {
		s.accounts[account] = nil
	}
}

// Publish appends item to account, the author defaults to the account name.
func (s *MemorySource) Publish(account string, item domain.FeedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[account]; !ok {
		return errors.ErrUnknownFeedAccount
	}
	if item.Author == "" {
		item.Author = account
	}
	s.accounts[account] = append(s.accounts[account], item)
	return nil
}

func (s *MemorySource) FetchNewItems(_ context.Context, account string, since time.Time) ([]domain.FeedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items, ok := s.accounts[account]
	if !ok {
		return nil, errors.ErrUnknownFeedAccount
	}
	return lo.Filter(items, func(item domain.FeedItem, _ int) bool {
		return item.Timestamp.After(since)
	}), nil
}

func (s *MemorySource) AccountExists(_ context.Context, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[account]
	return ok, nil
}
