package sessionstate

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the keys of RedisStore.
const DefaultRedisPrefix = "webspider"

// RedisStore keeps session state in Redis.
type RedisStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) RedisOption {
	return func(r *RedisStore) {
		r.prefix = prefix
	}
}

// WithTTL expires stored states after ttl. Zero keeps them forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(r *RedisStore) {
		r.ttl = ttl
	}
}

// NewRedisStore creates a store on client.
func NewRedisStore(client goredis.UniversalClient, opts ...RedisOption) *RedisStore {
	r := &RedisStore{
		client: client,
		prefix: DefaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisStore) keySession(id string) string {
	return fmt.Sprintf("%s:sessions:%s", r.prefix, id)
}

func (r *RedisStore) keyLatest() string {
	return r.prefix + ":sessions:" + Latest
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Save implements Store. The state and the latest pointer are written in
// one transaction.
func (r *RedisStore) Save(ctx context.Context, id string, blob []byte) error {
	if err := validateID(id); err != nil {
		return err
	}
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, r.keySession(id), blob, r.ttl)
		pipe.Set(ctx, r.keyLatest(), id, r.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

// Load implements Store.
func (r *RedisStore) Load(ctx context.Context, id string) ([]byte, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	blob, err := r.client.Get(ctx, r.keySession(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", id, err)
	}
	return blob, nil
}

// LatestSession implements Store.
func (r *RedisStore) LatestSession(ctx context.Context) (string, []byte, error) {
	id, err := r.client.Get(ctx, r.keyLatest()).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil, ErrNotFound
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to read latest session: %w", err)
	}
	blob, err := r.Load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	return id, blob, nil
}
