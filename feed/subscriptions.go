// Package feed tracks the external accounts a user follows and pulls
// their new content through a Source.
package feed

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"pheme/domain"
	"pheme/errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Epoch is the lower bound of the very first fetch of a subscription.
var Epoch = time.Date(2022, 10, 1, 0, 0, 0, 0, time.UTC)

// allContent is the pattern of an unfiltered subscription.
const allContent = ""

type subscription struct {
	patterns  map[string]struct{}
	matcher   *Matcher
	lastFetch time.Time
}

// keep reports whether an item passes the subscription filters.
func (s *subscription) keep(item domain.FeedItem) bool {
	if _, ok := s.patterns[allContent]; ok {
		return true
	}
	return s.matcher.Match(item.Text)
}

func (s *subscription) rebuild() error {
	m, err := NewMatcher(lo.Keys(s.patterns))
	if err != nil {
		return err
	}
	s.matcher = m
	return nil
}

// Subscriptions is the set of (account, pattern) pairs of one user.
// Subscribing without a pattern keeps every item of the account.
type Subscriptions struct {
	mu          sync.Mutex
	source      Source
	limiter     *rate.Limiter
	concurrency int
	log         *slog.Logger
	accounts    map[string]*subscription
}

// NewSubscriptions shares limiter with every other user of the same source.
func NewSubscriptions(source Source, limiter *rate.Limiter, concurrency int, log *slog.Logger) *Subscriptions {
	return &Subscriptions{
		source:      source,
		limiter:     limiter,
		concurrency: max(concurrency, 1),
		log:         log,
		accounts:    make(map[string]*subscription),
	}
}

// Add subscribes to every item of account.
// It returns false when the account cannot be resolved or is already fully followed.
func (s *Subscriptions) Add(ctx context.Context, account string) (bool, error) {
	return s.add(ctx, account, allContent)
}

// AddPattern subscribes to the items of account containing pattern, ignoring case.
func (s *Subscriptions) AddPattern(ctx context.Context, account, pattern string) (bool, error) {
	return s.add(ctx, account, strings.ToLower(pattern))
}

func (s *Subscriptions) add(ctx context.Context, account, pattern string) (bool, error) {
	exists, err := s.source.AccountExists(ctx, account)
	if err != nil {
		return false, fmt.Errorf("resolving account %q: %w", account, err)
	}
	if !exists {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.accounts[account]
	if !ok {
		sub = &subscription{patterns: make(map[string]struct{}), lastFetch: Epoch}
	}
	if _, dup := sub.patterns[pattern]; dup {
		return false, nil
	}
	sub.patterns[pattern] = struct{}{}
	if err := sub.rebuild(); err != nil {
		delete(sub.patterns, pattern)
		return false, err
	}
	s.accounts[account] = sub
	return true, nil
}

// Cancel drops every subscription to account.
func (s *Subscriptions) Cancel(account string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account]; !ok {
		return false
	}
	delete(s.accounts, account)
	return true
}

// CancelPattern drops only the (account, pattern) subscription.
// The account is forgotten once its last pattern is gone.
func (s *Subscriptions) CancelPattern(account, pattern string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.accounts[account]
	if !ok {
		return false
	}
	pattern = strings.ToLower(pattern)
	if _, ok = sub.patterns[pattern]; !ok {
		return false
	}
	delete(sub.patterns, pattern)
	if len(sub.patterns) == 0 {
		delete(s.accounts, account)
		return true
	}
	if err := sub.rebuild(); err != nil {
		s.log.Error("Rebuilding pattern matcher failed", "account", account, "error", err)
	}
	return true
}

// Accounts lists the followed accounts, sorted.
func (s *Subscriptions) Accounts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	accounts := lo.Keys(s.accounts)
	slices.Sort(accounts)
	return accounts
}

type fetchTask struct {
	account string
	since   time.Time
	sub     *subscription
	items   []domain.FeedItem
	newest  time.Time
	err     error
}

// FetchNew pulls every followed account since its previous successful fetch.
// Accounts are fetched concurrently; a failing account keeps its position and
// is reported in the returned error while the other items are still returned.
func (s *Subscriptions) FetchNew(ctx context.Context) ([]domain.FeedItem, error) {
	s.mu.Lock()
	tasks := lo.MapToSlice(s.accounts, func(account string, sub *subscription) *fetchTask {
		return &fetchTask{account: account, since: sub.lastFetch, sub: sub}
	})
	s.mu.Unlock()

	if len(tasks) == 0 {
		return nil, nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, task := range tasks {
		group.Go(func() error {
			s.fetch(groupCtx, task)
			return nil
		})
	}
	_ = group.Wait()

	s.mu.Lock()
	var (
		items []domain.FeedItem
		errs  []error
	)
	for _, task := range tasks {
		if task.err != nil {
			errs = append(errs, task.err)
			continue
		}
		// The subscription may have been cancelled or replaced meanwhile
		if current, ok := s.accounts[task.account]; ok && current == task.sub {
			current.lastFetch = task.newest
			items = append(items, lo.Filter(task.items, func(item domain.FeedItem, _ int) bool {
				return current.keep(item)
			})...)
		}
	}
	s.mu.Unlock()

	slices.SortStableFunc(items, func(a, b domain.FeedItem) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}
	return items, stderrors.Join(errs...)
}

func (s *Subscriptions) fetch(ctx context.Context, task *fetchTask) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			task.err = fmt.Errorf("fetching %q: %w", task.account, err)
			return
		}
	}
	startedAt := time.Now().UTC()
	items, err := s.source.FetchNewItems(ctx, task.account, task.since)
	if err != nil {
		s.log.Warn("Feed fetch failed", "account", task.account, "error", err)
		task.err = fmt.Errorf("fetching %q: %w", task.account, err)
		return
	}
	task.items = items
	task.newest = lo.MaxBy(append(lo.Map(items, func(item domain.FeedItem, _ int) time.Time {
		return item.Timestamp
	}), startedAt, task.since), func(a, b time.Time) bool {
		return a.After(b)
	})
}

// Timeline queries account directly, without filters nor bookkeeping.
// An unknown account is an error, not an empty timeline.
func (s *Subscriptions) Timeline(ctx context.Context, account string, since time.Time) ([]domain.FeedItem, error) {
	exists, err := s.source.AccountExists(ctx, account)
	if err != nil {
		return nil, fmt.Errorf("resolving account %q: %w", account, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnknownFeedAccount, account)
	}
	if s.limiter != nil {
		if err = s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return s.source.FetchNewItems(ctx, account, since)
}
