package database

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/auth"
)

// CachedUsers serves repeated lookups of the same user from an expiring LRU cache.
// Users are never modified once created, so entries are never invalidated.
type CachedUsers struct {
	next  auth.UserRepository
	cache *expirable.LRU[string, auth.User]
}

func NewCachedUsers(next auth.UserRepository, size int, ttl time.Duration) *CachedUsers {
	if size <= 0 {
		size = 256
	}
	return &CachedUsers{
		next:  next,
		cache: expirable.NewLRU[string, auth.User](size, nil, ttl),
	}
}

func (c *CachedUsers) FindUser(ctx context.Context, username string) (auth.User, error) {
	if user, ok := c.cache.Get(username); ok {
		return user, nil
	}
	user, err := c.next.FindUser(ctx, username)
	if err != nil {
		return user, err
	}
	c.cache.Add(username, user)
	return user, nil
}

func (c *CachedUsers) CreateUser(ctx context.Context, user auth.User) error {
	if err := c.next.CreateUser(ctx, user); err != nil {
		return err
	}
	c.cache.Add(user.Username, user)
	return nil
}

func (c *CachedUsers) Len() int {
	return c.cache.Len()
}
