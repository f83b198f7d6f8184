package auth

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserExists   = errors.New("user already exists")
)

type User struct {
	Username     string    `bson:"username"`
	PasswordHash []byte    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

// UserRepository stores user records. Create must fail with ErrUserExists when the username is taken.
type UserRepository interface {
	FindUser(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, user User) error
}

// LoginHistory receives successful logins and logouts.
type LoginHistory interface {
	RecordLogin(ctx context.Context, username string, connID int64, at time.Time) error
	RecordLogout(ctx context.Context, username string, connID int64, at time.Time) error
}

type MemoryUsers struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{users: make(map[string]User)}
}

func (m *MemoryUsers) FindUser(_ context.Context, username string) (User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[username]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (m *MemoryUsers) CreateUser(_ context.Context, user User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Username]; ok {
		return ErrUserExists
	}
	m.users[user.Username] = user
	return nil
}
