package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-grader/internal/dto"
	"github.com/noah-isme/gema-exam-grader/internal/observability"
)

const examListCacheKey = "exams:list"

// ExamListCache stores the decoded exam listing between writes.
type ExamListCache interface {
	Get(ctx context.Context) ([]dto.ExamResponse, bool)
	Set(ctx context.Context, exams []dto.ExamResponse)
	Invalidate(ctx context.Context)
}

type redisExamListCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisExamListCache returns a redis backed listing cache, or nil when no
// client is configured.
func NewRedisExamListCache(client *redis.Client, ttl time.Duration, logger zerolog.Logger) ExamListCache {
	if client == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &redisExamListCache{
		client: client,
		ttl:    ttl,
		logger: logger.With().Str("component", "exam_list_cache").Logger(),
	}
}

func (c *redisExamListCache) Get(ctx context.Context) ([]dto.ExamResponse, bool) {
	cached, err := c.client.Get(ctx, examListCacheKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("failed to read exam list cache")
		}
		observability.ExamListCacheLookups().WithLabelValues("miss").Inc()
		return nil, false
	}

	var exams []dto.ExamResponse
	if err := json.Unmarshal([]byte(cached), &exams); err != nil {
		c.logger.Warn().Err(err).Msg("discarding unreadable exam list cache entry")
		observability.ExamListCacheLookups().WithLabelValues("miss").Inc()
		return nil, false
	}

	observability.ExamListCacheLookups().WithLabelValues("hit").Inc()
	return exams, true
}

func (c *redisExamListCache) Set(ctx context.Context, exams []dto.ExamResponse) {
	payload, err := json.Marshal(exams)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to encode exam list cache entry")
		return
	}
	if err := c.client.Set(ctx, examListCacheKey, payload, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to store exam list cache")
	}
}

func (c *redisExamListCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, examListCacheKey).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to invalidate exam list cache")
	}
}
