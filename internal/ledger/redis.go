package ledger

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// redisStore adapts *redis.Client to the store interface.  Scripts are
// wrapped in redis.Script once so repeated calls use EVALSHA after the
// first load.
type redisStore struct {
	rdb     *redis.Client
	scripts map[string]*redis.Script
}

// NewRedisStore wraps a Redis client for use by the ledger.
func NewRedisStore(rdb *redis.Client) *redisStore {
	scripts := make(map[string]*redis.Script, 4)
	for _, src := range []string{holdScript, extendScript, releaseScript, confirmScript} {
		scripts[src] = redis.NewScript(src)
	}
	return &redisStore{rdb: rdb, scripts: scripts}
}

func (s *redisStore) Eval(ctx context.Context, script string, keys []string, args ...interface{}) (int64, error) {
	if sc, ok := s.scripts[script]; ok {
		return sc.Run(ctx, s.rdb, keys, args...).Int64()
	}
	return s.rdb.Eval(ctx, script, keys, args...).Int64()
}

func (s *redisStore) Del(ctx context.Context, keys ...string) error {
	return s.rdb.Del(ctx, keys...).Err()
}

// ScanKeys collects all keys matching pattern using SCAN rather than
// KEYS so reconciliation and resets never block the server.
func (s *redisStore) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
