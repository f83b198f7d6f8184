package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

// Store is the contract the protocol engine authenticates against.
type Store interface {
	Login(connID int64, username, password string) (LoginStatus, error)
	Logout(connID int64)
}

type Options struct {
	BcryptCost       int
	OperationTimeout time.Duration
	History          LoginHistory
}

// Authenticator binds each username to at most one live connection and each connection to at most one username.
type Authenticator struct {
	users   UserRepository
	history LoginHistory
	cost    int
	timeout time.Duration

	mu     sync.Mutex
	byConn map[int64]string
	byUser map[string]int64
}

func NewAuthenticator(users UserRepository, opts Options) *Authenticator {
	cost := opts.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	timeout := opts.OperationTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Authenticator{
		users:   users,
		history: opts.History,
		cost:    cost,
		timeout: timeout,
		byConn:  make(map[int64]string),
		byUser:  make(map[string]int64),
	}
}

// Login checks in order: connection already bound, unknown user (created), wrong password,
// username bound elsewhere. The returned error is set only when the user repository fails.
func (a *Authenticator) Login(connID int64, username, password string) (LoginStatus, error) {
	if a.connected(connID) {
		return ClientAlreadyConnected, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	status, err := a.verify(ctx, username, password)
	if err != nil || !status.Success() {
		return status, err
	}

	a.mu.Lock()
	if _, ok := a.byConn[connID]; ok {
		a.mu.Unlock()
		return ClientAlreadyConnected, nil
	}
	if _, ok := a.byUser[username]; ok {
		a.mu.Unlock()
		return AlreadyLoggedIn, nil
	}
	a.byConn[connID] = username
	a.byUser[username] = connID
	a.mu.Unlock()

	logger.DebugF("[%d] Session bound to user %s (%s)", connID, username, status)
	if a.history != nil {
		if err := a.history.RecordLogin(ctx, username, connID, time.Now()); err != nil {
			logger.WarnF("[%d] Failed to record login of %s: %v", connID, username, err)
		}
	}
	return status, nil
}

func (a *Authenticator) verify(ctx context.Context, username, password string) (LoginStatus, error) {
	user, err := a.users.FindUser(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		hash, herr := bcrypt.GenerateFromPassword([]byte(password), a.cost)
		if herr != nil {
			return WrongPassword, fmt.Errorf("hashing password: %w", herr)
		}
		err = a.users.CreateUser(ctx, User{Username: username, PasswordHash: hash, CreatedAt: time.Now()})
		if err == nil {
			logger.InfoF("New user %s registered", username)
			return AddedNewUser, nil
		}
		if !errors.Is(err, ErrUserExists) {
			return WrongPassword, fmt.Errorf("creating user: %w", err)
		}
		// registered concurrently by another connection
		user, err = a.users.FindUser(ctx, username)
	}
	if err != nil {
		return WrongPassword, fmt.Errorf("looking up user: %w", err)
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)) != nil {
		return WrongPassword, nil
	}
	return LoggedIn, nil
}

func (a *Authenticator) connected(connID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.byConn[connID]
	return ok
}

// Logout releases the session of connID. Unknown ids are ignored.
func (a *Authenticator) Logout(connID int64) {
	a.mu.Lock()
	username, ok := a.byConn[connID]
	if ok {
		delete(a.byConn, connID)
		delete(a.byUser, username)
	}
	a.mu.Unlock()
	if !ok {
		return
	}

	logger.DebugF("[%d] User %s logged out", connID, username)
	if a.history != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.history.RecordLogout(ctx, username, connID, time.Now()); err != nil {
			logger.WarnF("[%d] Failed to record logout of %s: %v", connID, username, err)
		}
	}
}

// Username returns the user bound to connID.
func (a *Authenticator) Username(connID int64) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	username, ok := a.byConn[connID]
	return username, ok
}
