//Package cache provides a redis read-through cache in front of a reaction-role store
package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const redisURLEnvVar string = "KOALA_REDIS_URL"

//Backend is the key-value store cached entries are kept in. Every key has a generation which is bumped
//when the key is invalidated, so that a value loaded before an invalidation is never written after it.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	//Generation returns the current generation of key
	Generation(ctx context.Context, key string) (int64, error)
	//SetIfGeneration stores value under key for ttl unless key has been invalidated since gen was read.
	//It reports whether the value was stored.
	SetIfGeneration(ctx context.Context, key, value string, gen int64, ttl time.Duration) (bool, error)
	//Invalidate removes keys and bumps their generations
	Invalidate(ctx context.Context, keys ...string) error
}

var errStaleGeneration = errors.New("cache key was invalidated during the load")

func generationKey(key string) string {
	return key + ":gen"
}

//RedisBackend stores cache entries in redis
type RedisBackend struct {
	rdb *redis.Client
}

//Connect opens a redis client for the URL in the environment. It returns nil without error when no
//URL is configured, in which case caching is disabled.
func Connect(ctx context.Context) (*RedisBackend, error) {
	url, exists := os.LookupEnv(redisURLEnvVar)
	if !exists || url == "" {
		logrus.Infof("`%v` was not set; running without a cache", redisURLEnvVar)
		return nil, nil
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse `%v`: %w", redisURLEnvVar, err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to reach redis at %v: %w", opt.Addr, err)
	}
	logrus.Infof("Connected to redis at %v", opt.Addr)
	return &RedisBackend{rdb: rdb}, nil
}

//NewRedisBackend wraps an existing redis client
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

//Get returns the value stored under key and whether it was present
func (b *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := b.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

//Generation returns the number of times key has been invalidated
func (b *RedisBackend) Generation(ctx context.Context, key string) (int64, error) {
	gen, err := b.rdb.Get(ctx, generationKey(key)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

//SetIfGeneration stores value under key for ttl if the key's generation is still gen. The generation is
//watched, so an invalidation racing the write aborts it.
func (b *RedisBackend) SetIfGeneration(ctx context.Context, key, value string, gen int64, ttl time.Duration) (bool, error) {
	genKey := generationKey(key)
	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, value, ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, errStaleGeneration) || errors.Is(err, redis.TxFailedErr) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

//Invalidate deletes keys and bumps their generations in a single transaction
func (b *RedisBackend) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
		}
		pipe.Del(ctx, keys...)
		return nil
	})
	return err
}

//Close shuts down the redis client
func (b *RedisBackend) Close() {
	logrus.Info("Closing redis connection...")
	_ = b.rdb.Close()
}
