package flags

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const flagsTTL = 365 * 24 * time.Hour

// RedisStore keeps each installation's flags in one hash.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client, prefix: "spasi:flags"}
}

func (s *RedisStore) key(installation string) string {
	return fmt.Sprintf("%s:%s", s.prefix, installation)
}

func (s *RedisStore) Get(ctx context.Context, installation, key string) (bool, bool, error) {
	val, err := s.client.HGet(ctx, s.key(installation), key).Result()
	if err == redis.Nil {
		return false, false, nil
	}
	if err != nil {
		return false, false, errors.Wrapf(err, "reading flag %s", key)
	}
	return val == "1", true, nil
}

func (s *RedisStore) Set(ctx context.Context, installation, key string, value bool) error {
	v := "0"
	if value {
		v = "1"
	}
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(installation), key, v)
	pipe.Expire(ctx, s.key(installation), flagsTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrapf(err, "writing flag %s", key)
	}
	return nil
}
