package services

import (
	"context"
	"fmt"
	"log/slog"
	"pheme/auth"
	"pheme/domain"
	"pheme/errors"
	"pheme/feed"
	"pheme/ledger"
	"pheme/queue"
	"pheme/repositories"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/time/rate"
)

type IMailbox interface {
	RegisterUser(ctx context.Context, id uuid.UUID, username, passwordHash string) bool
	DeregisterUser(ctx context.Context, username, passwordHash string) bool
	IsUser(username string) bool
	Subscribe(ctx context.Context, username, passwordHash, account string) bool
	SubscribePattern(ctx context.Context, username, passwordHash, account, pattern string) bool
	Unsubscribe(ctx context.Context, username, passwordHash, account string) bool
	UnsubscribePattern(ctx context.Context, username, passwordHash, account, pattern string) bool
	Send(ctx context.Context, username, passwordHash string, msg domain.Message) bool
	IsDelivered(messageID, receiver uuid.UUID) bool
	IsDeliveredAll(messageID uuid.UUID, receivers []uuid.UUID) []bool
	Next(ctx context.Context, username, passwordHash string) domain.Message
	AllRecent(ctx context.Context, username, passwordHash string) []domain.Message
	PeakLoad(ctx context.Context, username, passwordHash string, window time.Duration) (int, error)
	Timeline(ctx context.Context, username, passwordHash, account string, since time.Time) ([]domain.FeedItem, error)
}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Config struct {
	Delay            time.Duration
	FetchConcurrency int
	Limiter          *rate.Limiter
}

type Option func(*Mailbox)

// WithClock drives every user queue with now.
func WithClock(now func() time.Time) Option {
	return func(m *Mailbox) {
		m.now = now
	}
}

func WithSleeper(sleep Sleeper) Option {
	return func(m *Mailbox) {
		m.sleep = sleep
	}
}

// Mailbox routes messages into per-user delay queues and tracks deliveries.
// The router lock only guards the ownership maps: queue operations and the
// delay wait happen outside of it.
type Mailbox struct {
	mu            sync.RWMutex
	log           *slog.Logger
	users         repositories.IUserRepository
	queues        map[uuid.UUID]*queue.DelayQueue
	subscriptions map[uuid.UUID]*feed.Subscriptions
	ledger        *ledger.Ledger
	source        feed.Source
	config        Config
	now           func() time.Time
	sleep         Sleeper
}

func NewMailbox(log *slog.Logger, users repositories.IUserRepository, source feed.Source,
	deliveries *ledger.Ledger, config Config, opts ...Option) (*Mailbox, error) {
	if config.Delay < 0 {
		return nil, errors.ErrInvalidDelay
	}
	m := &Mailbox{
		log:           log,
		users:         users,
		queues:        make(map[uuid.UUID]*queue.DelayQueue),
		subscriptions: make(map[uuid.UUID]*feed.Subscriptions),
		ledger:        deliveries,
		source:        source,
		config:        config,
		now:           time.Now,
		sleep:         sleep,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// session holds what an authenticated caller may touch.
type session struct {
	user          domain.User
	queue         *queue.DelayQueue
	subscriptions *feed.Subscriptions
}

// authenticate never tells an unknown user apart from a wrong password.
func (m *Mailbox) authenticate(username, passwordHash string) (session, bool) {
	user, err := m.users.GetUserByUsername(username)
	if err != nil {
		// same amount of work as a real comparison
		auth.MatchHash(passwordHash, passwordHash)
		return session{}, false
	}
	if !auth.MatchHash(user.PasswordHash, passwordHash) {
		return session{}, false
	}

	m.mu.RLock()
	q, ok := m.queues[user.ID]
	subscriptions := m.subscriptions[user.ID]
	m.mu.RUnlock()
	if ok {
		return session{user: user, queue: q, subscriptions: subscriptions}, true
	}
	return m.restore(user)
}

// restore opens an empty mailbox for a user stored by a previous run.
// The record is read again under the lock so a concurrent deregistration wins.
func (m *Mailbox) restore(user domain.User) (session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[user.ID]; ok {
		return session{user: user, queue: q, subscriptions: m.subscriptions[user.ID]}, true
	}
	stored, err := m.users.GetUserByUsername(user.Username)
	if err != nil || stored.ID != user.ID || !auth.MatchHash(stored.PasswordHash, user.PasswordHash) {
		return session{}, false
	}
	q, err := m.openLocked(user.ID)
	if err != nil {
		m.log.Error("Mailbox restore failed", "username", user.Username, "error", err)
		return session{}, false
	}
	m.log.Info("Mailbox restored", "username", user.Username, "user_id", user.ID)
	return session{user: user, queue: q, subscriptions: m.subscriptions[user.ID]}, true
}

// openLocked creates the empty queue and subscription set of id.
func (m *Mailbox) openLocked(id uuid.UUID) (*queue.DelayQueue, error) {
	q, err := queue.New(m.config.Delay, queue.WithClock(m.now))
	if err != nil {
		return nil, err
	}
	m.queues[id] = q
	m.subscriptions[id] = feed.NewSubscriptions(m.source, m.config.Limiter, m.config.FetchConcurrency, m.log)
	return q, nil
}

// RegisterUser opens a mailbox. It fails when the username or the id is taken.
func (m *Mailbox) RegisterUser(_ context.Context, id uuid.UUID, username, passwordHash string) bool {
	if id == uuid.Nil {
		return false
	}
	if err := auth.ValidateRegister(auth.RegisterRequest{Username: username, PasswordHash: passwordHash}); err != nil {
		m.log.Debug("Registration rejected", "username", username, "error", err)
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, taken := m.queues[id]; taken {
		return false
	}
	user := domain.User{ID: id, Username: username, PasswordHash: passwordHash}
	if err := m.users.CreateUser(user); err != nil {
		m.log.Debug("User creation failed", "username", username, "error", err)
		return false
	}

	stored, err := m.users.GetUserByUsername(username)
	if err != nil || stored.ID != id || !auth.MatchHash(stored.PasswordHash, passwordHash) {
		m.log.Error("Stored user does not match registration, rolling back", "username", username, "error", err)
		_ = m.users.DeleteUser(username)
		return false
	}

	if _, err := m.openLocked(id); err != nil {
		_ = m.users.DeleteUser(username)
		return false
	}
	m.log.Info("User registered", "username", username, "user_id", id)
	return true
}

// DeregisterUser removes the user along with its queue, subscriptions and deliveries.
func (m *Mailbox) DeregisterUser(_ context.Context, username, passwordHash string) bool {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// The username may have changed hands since authentication
	stored, err := m.users.GetUserByUsername(username)
	if err != nil || stored.ID != s.user.ID {
		m.log.Warn("User changed before deregistration", "username", username, "error", err)
		return false
	}
	if err := m.users.DeleteUser(username); err != nil {
		m.log.Warn("User deletion failed", "username", username, "error", err)
		return false
	}
	delete(m.queues, s.user.ID)
	delete(m.subscriptions, s.user.ID)
	m.ledger.Forget(s.user.ID)
	m.log.Info("User deregistered", "username", username, "user_id", s.user.ID)
	return true
}

func (m *Mailbox) IsUser(username string) bool {
	_, err := m.users.GetUserByUsername(username)
	return err == nil
}

func (m *Mailbox) Subscribe(ctx context.Context, username, passwordHash, account string) bool {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return false
	}
	added, err := s.subscriptions.Add(ctx, account)
	if err != nil {
		m.log.Warn("Subscription failed", "username", username, "account", account, "error", err)
	}
	return added
}

// SubscribePattern keeps only the items of account containing pattern, ignoring case.
func (m *Mailbox) SubscribePattern(ctx context.Context, username, passwordHash, account, pattern string) bool {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return false
	}
	added, err := s.subscriptions.AddPattern(ctx, account, pattern)
	if err != nil {
		m.log.Warn("Subscription failed", "username", username, "account", account, "pattern", pattern, "error", err)
	}
	return added
}

func (m *Mailbox) Unsubscribe(_ context.Context, username, passwordHash, account string) bool {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return false
	}
	return s.subscriptions.Cancel(account)
}

func (m *Mailbox) UnsubscribePattern(_ context.Context, username, passwordHash, account, pattern string) bool {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return false
	}
	return s.subscriptions.CancelPattern(account, pattern)
}

// Send pushes msg into the queue of every receiver and records it as targeted
// at the whole receiver set. Unknown receivers are skipped.
func (m *Mailbox) Send(_ context.Context, username, passwordHash string, msg domain.Message) bool {
	if _, ok := m.authenticate(username, passwordHash); !ok {
		return false
	}
	if err := domain.ValidateMessage(msg); err != nil {
		m.log.Debug("Message rejected", "username", username, "error", err)
		return false
	}

	m.mu.RLock()
	queues := lo.FilterMap(msg.ReceiverIDs, func(r uuid.UUID, _ int) (*queue.DelayQueue, bool) {
		q, ok := m.queues[r]
		if !ok {
			m.log.Warn("Unknown receiver, skipping", "message_id", msg.ID, "receiver_id", r)
		}
		return q, ok
	})
	m.mu.RUnlock()

	for _, q := range queues {
		q.Add(msg)
	}
	m.ledger.Target(msg.ID, msg.ReceiverIDs)
	return true
}

func (m *Mailbox) IsDelivered(messageID, receiver uuid.UUID) bool {
	return m.ledger.IsDelivered(messageID, receiver)
}

// IsDeliveredAll answers one boolean per receiver, nothing for an unknown message.
func (m *Mailbox) IsDeliveredAll(messageID uuid.UUID, receivers []uuid.UUID) []bool {
	return m.ledger.IsDeliveredAll(messageID, receivers)
}

// Next refreshes the user feeds then releases the next eligible message.
func (m *Mailbox) Next(ctx context.Context, username, passwordHash string) domain.Message {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return domain.NoMessage
	}
	if err := m.refresh(ctx, s); err != nil {
		return domain.NoMessage
	}
	msg := s.queue.Next()
	if !msg.IsNoMessage() {
		m.ledger.Confirm(msg.ID, s.user.ID)
	}
	return msg
}

// AllRecent refreshes the user feeds then drains every eligible message, oldest first.
func (m *Mailbox) AllRecent(ctx context.Context, username, passwordHash string) []domain.Message {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return nil
	}
	if err := m.refresh(ctx, s); err != nil {
		return nil
	}
	var messages []domain.Message
	for msg := s.queue.Next(); !msg.IsNoMessage(); msg = s.queue.Next() {
		m.ledger.Confirm(msg.ID, s.user.ID)
		messages = append(messages, msg)
	}
	return messages
}

// refresh queues the new feed items of the user. When some were queued it
// waits out the queue delay so the batch is not released early.
// Only a cancelled ctx is reported.
func (m *Mailbox) refresh(ctx context.Context, s session) error {
	items, err := s.subscriptions.FetchNew(ctx)
	if err != nil {
		m.log.Warn("Feed refresh incomplete", "username", s.user.Username, "error", err)
	}
	queued := 0
	for _, item := range items {
		if s.queue.Add(item.ToMessage(s.user.ID)) {
			queued++
		}
	}
	if queued == 0 {
		return ctx.Err()
	}
	m.log.Debug(fmt.Sprintf("%d feed items queued", queued), "username", s.user.Username)
	return m.sleep(ctx, s.queue.Delay())
}

// PeakLoad reports the busiest window of the caller queue.
func (m *Mailbox) PeakLoad(_ context.Context, username, passwordHash string, window time.Duration) (int, error) {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return 0, errors.ErrInvalidCredentials
	}
	return s.queue.PeakLoad(window)
}

// Timeline queries a feed account directly on behalf of the caller.
func (m *Mailbox) Timeline(ctx context.Context, username, passwordHash, account string, since time.Time) ([]domain.FeedItem, error) {
	s, ok := m.authenticate(username, passwordHash)
	if !ok {
		return nil, errors.ErrInvalidCredentials
	}
	return s.subscriptions.Timeline(ctx, account, since)
}

// Queues snapshots the current user queues.
func (m *Mailbox) Queues() map[uuid.UUID]*queue.DelayQueue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return lo.Assign(m.queues)
}
