package redisstore

import (
	"context"
	"time"

	apperrors "github.com/jrsteele09/go-billing-client/internal/errors"
	"github.com/jrsteele09/go-billing-client/storage"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultOpTimeout = 2 * time.Second

var _ storage.Storage = (*RedisStore)(nil)

// RedisStore keeps all keys of one client instance in a single redis hash, so
// several processes (a CLI and a daemon, say) can share one session.
type RedisStore struct {
	client    redis.UniversalClient
	hashKey   string
	opTimeout time.Duration
}

type Option func(*RedisStore)

func WithOpTimeout(d time.Duration) Option {
	return func(r *RedisStore) {
		r.opTimeout = d
	}
}

// New wraps an existing client. namespace becomes the hash key.
func New(client redis.UniversalClient, namespace string, options ...Option) *RedisStore {
	r := &RedisStore{
		client:    client,
		hashKey:   namespace + ":session",
		opTimeout: defaultOpTimeout,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int, namespace string, options ...Option) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(apperrors.ErrStorage, "redis ping %s: %v", addr, err)
	}
	return New(client, namespace, options...), nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Get(key string) (string, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	v, err := r.client.HGet(ctx, r.hashKey, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(apperrors.ErrStorage, "redis HGET %s: %v", key, err)
	}
	return v, nil
}

func (r *RedisStore) Set(key, value string) error {
	return r.SetMany(map[string]string{key: value})
}

// SetMany issues one HSET, which redis applies atomically.
func (r *RedisStore) SetMany(entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.HSet(ctx, r.hashKey, entries).Err(); err != nil {
		return errors.Wrapf(apperrors.ErrStorage, "redis HSET: %v", err)
	}
	return nil
}

func (r *RedisStore) Remove(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	ctx, cancel := r.opContext()
	defer cancel()

	if err := r.client.HDel(ctx, r.hashKey, keys...).Err(); err != nil {
		return errors.Wrapf(apperrors.ErrStorage, "redis HDEL: %v", err)
	}
	return nil
}

func (r *RedisStore) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.opTimeout)
}
