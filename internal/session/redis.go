package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// RedisStore shares conversation state between bot instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "session:",
		ttl:    ttl,
	}
}

// NewRedisStoreFromURL parses a redis:// URL and checks the connection.
func NewRedisStoreFromURL(ctx context.Context, rawURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "could not connect to redis")
	}
	return NewRedisStore(client, ttl), nil
}

func (r *RedisStore) key(k Key) string {
	return r.prefix + k.String()
}

func (r *RedisStore) Get(ctx context.Context, k Key) (State, error) {
	data, err := r.client.Get(ctx, r.key(k)).Bytes()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, errors.Wrapf(err, "could not get session %s", k)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, errors.Wrapf(err, "could not decode session %s", k)
	}
	return s, nil
}

func (r *RedisStore) Set(ctx context.Context, k Key, s State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "could not encode session")
	}
	if err := r.client.Set(ctx, r.key(k), data, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "could not save session %s", k)
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context, k Key) error {
	if err := r.client.Del(ctx, r.key(k)).Err(); err != nil {
		return errors.Wrapf(err, "could not clear session %s", k)
	}
	return nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
