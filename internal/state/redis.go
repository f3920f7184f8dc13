package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/logger"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "nexarchive:gradual_archive_state"

// redisClient is the part of redis.Cmdable the store needs.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore keeps the record under a single Redis key. It lets several
// hosts share one archive job record.
type RedisStore struct {
	client redisClient
	key    string
	logger *logger.Logger
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redisClient, key string, log *logger.Logger) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RedisStore{client: client, key: key, logger: log.Component("state_redis")}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, key string, log *logger.Logger) (*RedisStore, *redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, errors.Wrapf(err, "connect to redis at %s", addr)
	}
	return NewRedisStore(client, key, log), client, nil
}

func (s *RedisStore) Load(ctx context.Context) (*archive.Record, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "get %s", s.key)
	}
	return decodeRecord(data)
}

func (s *RedisStore) Save(ctx context.Context, rec *archive.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal state record")
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return errors.Wrapf(err, "set %s", s.key)
	}
	s.logger.Debug("state saved",
		logger.Field{Key: "key", Value: s.key},
		logger.Field{Key: "state", Value: rec.Status.State})
	return nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrapf(err, "del %s", s.key)
	}
	return nil
}
