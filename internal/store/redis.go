package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/oggyb/peer-match/internal/config"
)

// hsetIfExists sets a hash field only when the hash is still there, so a
// late writer cannot resurrect a deleted record.
var hsetIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

type RedisStore struct {
	Client *redis.Client
}

// NewRedisStore initializes the Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisStore(cfg *config.Config) *RedisStore {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}
	return &RedisStore{Client: redis.NewClient(opts)}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.Client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.Client.Close()
}

func (s *RedisStore) ListAppend(ctx context.Context, key, value string) error {
	return s.Client.RPush(ctx, key, value).Err()
}

func (s *RedisStore) ListRemove(ctx context.Context, key, value string) error {
	return s.Client.LRem(ctx, key, 0, value).Err()
}

func (s *RedisStore) ListRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return s.Client.LRange(ctx, key, start, stop).Result()
}

func (s *RedisStore) SetAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.Client.SAdd(ctx, key, toArgs(members)...).Err()
}

func (s *RedisStore) SetRemove(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return s.Client.SRem(ctx, key, toArgs(members)...).Err()
}

func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	return s.Client.SMembers(ctx, key).Result()
}

func (s *RedisStore) HashSet(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return s.Client.HSet(ctx, key, args...).Err()
}

func (s *RedisStore) HashSetIfExists(ctx context.Context, key, field, value string) (bool, error) {
	n, err := hsetIfExists.Run(ctx, s.Client, []string{key}, field, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.Client.HGetAll(ctx, key).Result()
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.Client.Del(ctx, keys...).Err()
}

func (s *RedisStore) TryAcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.Client.SetNX(ctx, key, "1", ttl).Result()
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	return s.Client.Del(ctx, key).Err()
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
