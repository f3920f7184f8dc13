package builders

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/aatumaykin/nexarchive/internal/archive"
	"github.com/aatumaykin/nexarchive/internal/config"
	"github.com/aatumaykin/nexarchive/internal/logger"
	"github.com/aatumaykin/nexarchive/internal/state"
)

type StateBuilder struct {
	config *config.Config
	logger *logger.Logger
}

func NewStateBuilder(cfg *config.Config, log *logger.Logger) *StateBuilder {
	return &StateBuilder{config: cfg, logger: log}
}

// Build returns the store for the scheduler record. The closer is nil for
// the file backend.
func (b *StateBuilder) Build(ctx context.Context) (archive.StateStore, io.Closer, error) {
	switch b.config.State.Backend {
	case "", "file":
		store := state.NewFileStoreAt(b.config.StatePath(), b.logger)
		b.logger.Info("scheduler state stored in file", logger.Field{Key: "path", Value: store.Path()})
		return store, nil, nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: b.config.State.RedisAddr,
			DB:   b.config.State.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, errors.Wrapf(err, "failed to connect to redis at %s", b.config.State.RedisAddr)
		}
		b.logger.Info("scheduler state stored in redis",
			logger.Field{Key: "addr", Value: b.config.State.RedisAddr},
			logger.Field{Key: "key", Value: b.config.State.RedisKey})
		return state.NewRedisStore(client, b.config.State.RedisKey, b.logger), client, nil
	default:
		return nil, nil, errors.Newf("unsupported state backend: %s", b.config.State.Backend)
	}
}
