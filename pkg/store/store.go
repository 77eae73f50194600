// Package store defines a common interface for key-value stores that can be
// used to persist the results of stressor runs for later collation.
package store

import (
	"context"
	"time"

	"github.com/gomodule/redigo/redis"
)

// Store defines an interface for a key-value implementation that can be used
// to keep the results of a run for subsequent lookup requests.
type Store interface {
	// Return the string that was set for key (or "" if unset) and an Error
	// if the implementation failed.
	// NOTE: a missing key *should not* return an error.
	GetValue(ctx context.Context, key string) (string, error)
	// Store the value string with the provided key, returning an error if
	// the implementation failed.
	SetValue(ctx context.Context, key string, value string) error
}

// NoopStore implements Store interface without keeping anything.
type NoopStore struct{}

// Always returns an empty string and no error for every key.
func (n *NoopStore) GetValue(ctx context.Context, key string) (string, error) {
	return "", nil
}

// Ignores the value and returns nil error.
func (n *NoopStore) SetValue(ctx context.Context, key string, value string) error {
	return nil
}

// Creates a no-operation Store implementation that satisfies the interface
// requirements without persisting anything. All values are silently
// dropped by SetValue and calls to GetValue always return an empty string.
func NewNoopStore() *NoopStore {
	return &NoopStore{}
}

// RedisStore implements Store interface backed by a Redis server.
type RedisStore struct {
	*redis.Pool
	// Prepended to every key.
	prefix string
	// Expiry applied to every value; zero keeps values forever.
	ttl time.Duration
}

type RedisStoreOption func(*RedisStore)

// Prepend prefix to every key read or written by the store.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// Expire every value written by the store after ttl.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(r *RedisStore) {
		r.ttl = ttl
	}
}

// Return a new Store implementation using Redis.
func NewRedisStore(ctx context.Context, endpoint string, options ...RedisStoreOption) *RedisStore {
	store := &RedisStore{
		Pool: &redis.Pool{
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", endpoint)
			},
			MaxIdle:     2,
			IdleTimeout: time.Minute,
		},
	}
	for _, option := range options {
		option(store)
	}
	return store
}

// Returns the string value stored in Redis under key, if present, or an empty string.
func (r *RedisStore) GetValue(ctx context.Context, key string) (string, error) {
	conn, err := r.GetContext(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	value, err := redis.String(conn.Do("GET", r.prefix+key))
	if err == redis.ErrNil {
		// A missing key is *NOT* an error to propagate
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Store the string key:value pair in Redis.
func (r *RedisStore) SetValue(ctx context.Context, key string, value string) error {
	conn, err := r.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	args := redis.Args{}.Add(r.prefix+key, value)
	if r.ttl > 0 {
		args = args.Add("PX", r.ttl.Milliseconds())
	}
	_, err = conn.Do("SET", args...)
	if err != nil {
		return err
	}
	return nil
}
