package feed

import (
	"context"
	"time"

	"github.com/wonny/lianban/internal/contracts"
	"github.com/wonny/lianban/pkg/logger"
	"github.com/wonny/lianban/pkg/redis"
)

// CachedSource wraps a Source with the Redis batch cache.
// Cache failures fall through to the inner source; ErrNoData is not cached.
type CachedSource struct {
	inner  Source
	cache  *redis.Cache
	name   string
	ttl    time.Duration
	logger *logger.Logger
}

// NewCachedSource caches inner's batches under batch:{name}:{date}
func NewCachedSource(inner Source, cache *redis.Cache, name string, ttl time.Duration, log *logger.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = redis.TTLDaily
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CachedSource{inner: inner, cache: cache, name: name, ttl: ttl, logger: log}
}

// Load implements Source
func (s *CachedSource) Load(ctx context.Context, date time.Time) (*contracts.DailyBatch, error) {
	key := redis.BatchKey(s.name, dateString(date))

	var batch contracts.DailyBatch
	found, err := s.cache.Get(ctx, key, &batch)
	if err != nil {
		s.logger.WithDate(date).WithError(err).Warn("Batch cache read failed")
	}
	if found {
		return &batch, nil
	}

	fresh, err := s.inner.Load(ctx, date)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, fresh, s.ttl); err != nil {
		s.logger.WithDate(date).WithError(err).Warn("Batch cache write failed")
	}
	return fresh, nil
}
