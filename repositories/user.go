//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"pheme/domain"
	"pheme/errors"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// IUserRepository is the credential store of the mailbox.
type IUserRepository interface {
	CreateUser(user domain.User) error
	GetUserByUsername(username string) (domain.User, error)
	DeleteUser(username string) error
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// diskUser is the stored form of a user, keyed by "user:{username}".
type diskUser struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"password_hash"`
	CreatedAt    int64  `json:"created_at"`
}

func userKey(username string) []byte {
	return []byte("user:" + username)
}

// CreateUser persists the user, failing with ErrUserAlreadyExists when the username is taken.
func (u UserRepository) CreateUser(user domain.User) error {
	data, err := json.Marshal(diskUser{
		ID:           user.ID.String(),
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		CreatedAt:    time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal failed: %w", err)
	}

	return u.db.Update(func(txn *badger.Txn) error {
		key := userKey(user.Username)
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		} else if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, data)
	})
}

func (u UserRepository) GetUserByUsername(username string) (domain.User, error) {
	var stored diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(username))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &stored)
		})
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	return toDomainUser(stored)
}

func (u UserRepository) DeleteUser(username string) error {
	return u.db.Update(func(txn *badger.Txn) error {
		key := userKey(username)
		if _, err := txn.Get(key); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return errors.ErrUserNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
}

func toDomainUser(stored diskUser) (domain.User, error) {
	id, err := uuid.Parse(stored.ID)
	if err != nil {
		return domain.User{}, err
	}
	return domain.User{ID: id, Username: stored.Username, PasswordHash: stored.PasswordHash}, nil
}

// MemoryUserRepository keeps users in a map, for tests and ephemeral runs.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]domain.User)}
}

func (m *MemoryUserRepository) CreateUser(user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return errors.ErrUserAlreadyExists
	}
	m.users[user.Username] = user
	return nil
}

func (m *MemoryUserRepository) GetUserByUsername(username string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[username]
	if !ok {
		return domain.User{}, errors.ErrUserNotFound
	}
	return user, nil
}

func (m *MemoryUserRepository) DeleteUser(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return errors.ErrUserNotFound
	}
	delete(m.users, username)
	return nil
}
