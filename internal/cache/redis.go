package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"
	tracingLog "github.com/opentracing/opentracing-go/log"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/customeros/mailgovernor/internal/tracing"
)

const healthScoreKeyPrefix = "governor:health:"

// HealthScoreCache is the hot-path view of account health scores. Writers are
// the health recompute workers; the rotation selector only reads.
type HealthScoreCache interface {
	Get(ctx context.Context, accountID string) (int, bool, error)
	GetMulti(ctx context.Context, accountIDs []string) (map[string]int, error)
	Set(ctx context.Context, accountID string, score int) error
	Delete(ctx context.Context, accountIDs ...string) error
}

type RedisHealthScoreCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient parses the url and pings the server once.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed parsing redis url")
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "failed connecting to redis")
	}
	return client, nil
}

func NewRedisHealthScoreCache(client *redis.Client, ttl time.Duration) *RedisHealthScoreCache {
	return &RedisHealthScoreCache{client: client, ttl: ttl}
}

func healthScoreKey(accountID string) string {
	return healthScoreKeyPrefix + accountID
}

func (c *RedisHealthScoreCache) Get(ctx context.Context, accountID string) (int, bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealthScoreCache.Get")
	defer span.Finish()
	tracing.TagComponentRedisCache(span)
	tracing.TagAccount(span, accountID)

	val, err := c.client.Get(ctx, healthScoreKey(accountID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		tracing.TraceErr(span, err)
		return 0, false, err
	}
	score, err := strconv.Atoi(val)
	if err != nil {
		// garbage in the key is a miss, the next recompute overwrites it
		return 0, false, nil
	}
	return score, true, nil
}

// GetMulti pipelines one GET per account. Missing keys are absent from the result.
func (c *RedisHealthScoreCache) GetMulti(ctx context.Context, accountIDs []string) (map[string]int, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealthScoreCache.GetMulti")
	defer span.Finish()
	tracing.TagComponentRedisCache(span)
	span.LogFields(tracingLog.Int("accounts", len(accountIDs)))

	result := make(map[string]int, len(accountIDs))
	if len(accountIDs) == 0 {
		return result, nil
	}

	pipe := c.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(accountIDs))
	for i, id := range accountIDs {
		cmds[i] = pipe.Get(ctx, healthScoreKey(id))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && !errors.Is(err, redis.Nil) {
		tracing.TraceErr(span, err)
		return nil, errors.Wrap(err, "failed to execute pipeline")
	}

	for i, cmd := range cmds {
		val, err := cmd.Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			tracing.TraceErr(span, err)
			return nil, errors.Wrapf(err, "failed to get score of %s", accountIDs[i])
		}
		if score, convErr := strconv.Atoi(val); convErr == nil {
			result[accountIDs[i]] = score
		}
	}
	span.LogFields(tracingLog.Int("hits", len(result)))
	return result, nil
}

func (c *RedisHealthScoreCache) Set(ctx context.Context, accountID string, score int) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "HealthScoreCache.Set")
	defer span.Finish()
	tracing.TagComponentRedisCache(span)
	tracing.TagAccount(span, accountID)

	if err := c.client.Set(ctx, healthScoreKey(accountID), score, c.ttl).Err(); err != nil {
		tracing.TraceErr(span, err)
		return err
	}
	return nil
}

func (c *RedisHealthScoreCache) Delete(ctx context.Context, accountIDs ...string) error {
	if len(accountIDs) == 0 {
		return nil
	}
	keys := make([]string, len(accountIDs))
	for i, id := range accountIDs {
		keys[i] = healthScoreKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}
