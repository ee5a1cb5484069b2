package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/datachat-core/server/internal/agent/model"
	errx "github.com/datachat-core/server/internal/core/error"
	logx "github.com/datachat-core/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RedisThreadRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisThreadRepository(rdb redis.Cmdable, ttl time.Duration) *RedisThreadRepository {
	return &RedisThreadRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisThreadRepository) threadKey(threadID string) string {
	return fmt.Sprintf("thread:%s:exchanges", threadID)
}

func (r *RedisThreadRepository) AppendExchange(ctx context.Context, threadID string, ex model.Exchange) error {
	b, err := json.Marshal(ex)
	if err != nil {
		logx.Error().Err(err).Str("threadID", threadID).Msg("failed to marshal exchange")
		return fmt.Errorf("marshal exchange: %w", err)
	}
	key := r.threadKey(threadID)

	// append exchange
	if err := r.rdb.RPush(ctx, key, b).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to push exchange to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on thread key")
		}
	}
	return nil
}

func (r *RedisThreadRepository) LoadHistory(ctx context.Context, threadID string) (*model.ThreadHistory, error) {
	key := r.threadKey(threadID)

	rows, err := r.rdb.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return &model.ThreadHistory{ThreadID: threadID, Exchanges: []model.Exchange{}}, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load thread history from redis")
		return nil, errx.WrapRedis(err)
	}

	exs := make([]model.Exchange, 0, len(rows))
	for i, s := range rows {
		var ex model.Exchange
		if err := json.Unmarshal([]byte(s), &ex); err != nil {
			logx.Error().Err(err).Str("threadID", threadID).Int("index", i).Msg("failed to unmarshal exchange")
			return nil, fmt.Errorf("unmarshal exchange at index %d: %w", i, err)
		}
		exs = append(exs, ex)
	}
	return &model.ThreadHistory{ThreadID: threadID, Exchanges: exs}, nil
}

func (r *RedisThreadRepository) ClearHistory(ctx context.Context, threadID string) error {
	key := r.threadKey(threadID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete thread history from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisThreadRepository) ExchangeCount(ctx context.Context, threadID string) (int, error) {
	key := r.threadKey(threadID)
	n, err := r.rdb.LLen(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to get exchange count from redis")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

var _ model.ThreadRepository = (*RedisThreadRepository)(nil)
