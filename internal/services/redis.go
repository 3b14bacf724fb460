package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"conversa-backend/internal/logger"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const rateLimitWindow = 60 * time.Second

// RedisService backs the fixed-window rate limiter and a small string cache.
// When Redis is unreachable at startup or at call time the limiter fails
// open and the cache degrades to a no-op.
type RedisService struct {
	client    *redis.Client
	perMinute int
}

func NewRedisService(ctx context.Context, url string, perMinute int) *RedisService {
	s := &RedisService{perMinute: perMinute}

	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Invalid Redis URL, rate limiting disabled")
		return s
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Redis unavailable, rate limiting disabled")
		_ = client.Close()
		return s
	}

	s.client = client
	return s
}

func (s *RedisService) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisService) Ping(ctx context.Context) bool {
	if s.client == nil {
		return false
	}
	return s.client.Ping(ctx).Err() == nil
}

// Allow reports whether clientKey may proceed under the per-minute limit.
// The counter is incremented and its 60 second expiry reset in one pipeline.
func (s *RedisService) Allow(ctx context.Context, clientKey string) bool {
	if s.client == nil {
		return true
	}

	key := fmt.Sprintf("rate:%s", clientKey)
	count, err := s.client.Get(ctx, key).Result()
	if err != nil && err != redis.Nil {
		// Fail open on store errors.
		return true
	}
	if count != "" {
		if n, convErr := strconv.Atoi(count); convErr == nil && n >= s.perMinute {
			return false
		}
	}

	pipe := s.client.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rateLimitWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.WithFields(logrus.Fields{
			"clientKey": clientKey,
			"error":     err.Error(),
		}).Warn("Rate limit pipeline failed")
	}
	return true
}

func (s *RedisService) CacheGet(ctx context.Context, key string) (string, bool) {
	if s.client == nil {
		return "", false
	}
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", false
	}
	return value, true
}

func (s *RedisService) CacheSet(ctx context.Context, key, value string, ttl time.Duration) {
	if s.client == nil {
		return
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logger.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Cache set failed")
	}
}
