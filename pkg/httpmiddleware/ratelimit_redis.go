package httpmiddleware

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisLimiter is an exact sliding window shared by all API replicas. Each
// request is a member of a sorted set scored by its timestamp.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisLimiter stores windows under keys starting with prefix.
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Decision, error) {
	redisKey := l.prefix + key
	cutoff := strconv.FormatInt(now.Add(-window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "-inf", "("+cutoff)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: uuid.NewString()})
	card := pipe.ZCard(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, errors.Wrap(err, "redis sliding window")
	}

	count := int(card.Val())
	return Decision{
		Allowed:   count <= limit,
		Remaining: max(limit-count, 0),
		ResetAt:   now.Add(window),
	}, nil
}
