package classifier

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/observability"
)

const cacheKeyPrefix = "classifier:prediction:"

// Cache remembers successful classifications in Redis. Redis failures are
// logged and bypassed; the wrapped classifier is then called directly.
type Cache struct {
	next    Classifier
	rdb     redis.Cmdable
	ttl     time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewCache wraps next. A nil client or non-positive ttl returns next unchanged.
func NewCache(next Classifier, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger, metrics *observability.Metrics) Classifier {
	if rdb == nil || ttl <= 0 {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{next: next, rdb: rdb, ttl: ttl, logger: logger, metrics: metrics}
}

func (c *Cache) Classify(ctx context.Context, title, description string) (Result, error) {
	key := cacheKey(title, description)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached Result
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			cached.Cached = true
			c.metrics.RecordClassification("cache_hit", 0)
			return cached, nil
		}
		c.logger.Warn("discarding malformed cached prediction", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("prediction cache read failed", zap.Error(err))
	}

	result, err := c.next.Classify(ctx, title, description)
	if err != nil {
		return Result{}, err
	}

	payload, err := json.Marshal(result)
	if err == nil {
		err = c.rdb.Set(ctx, key, payload, c.ttl).Err()
	}
	if err != nil {
		c.logger.Warn("prediction cache write failed", zap.Error(err))
	}
	return result, nil
}

func cacheKey(title, description string) string {
	sum := sha256.Sum256([]byte(title + "\x00" + description))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}
