package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// leaderboardCacheCap is how many rows the cached leaderboard payload
// holds; requests up to this size are served from one cache entry.
const leaderboardCacheCap = 100

// CachedStore wraps a primary Store (PostgreSQL) with a Redis
// read-through cache. Writes go to the primary store and invalidate the
// cached leaderboard; reads check Redis first then fall back.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (s *CachedStore) SaveResult(ctx context.Context, result *model.EpisodeResult) error {
	if err := s.primary.SaveResult(ctx, result); err != nil {
		return err
	}
	// Invalidate the leaderboard; next read re-populates it. Cache the
	// fresh result for by-id reads.
	s.rdb.Del(ctx, leaderboardKey())
	s.cacheResult(ctx, result)
	return nil
}

func (s *CachedStore) Leaderboard(ctx context.Context, limit int) ([]model.EpisodeResult, error) {
	limit = normalizeLimit(limit)
	if limit > leaderboardCacheCap {
		return s.primary.Leaderboard(ctx, limit)
	}

	// Try cache.
	data, err := s.rdb.Get(ctx, leaderboardKey()).Bytes()
	if err == nil {
		var results []model.EpisodeResult
		if json.Unmarshal(data, &results) == nil {
			return clip(results, limit), nil
		}
	}

	// Cache miss: read the full cacheable payload from the primary.
	results, err := s.primary.Leaderboard(ctx, leaderboardCacheCap)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(results); err == nil {
		s.rdb.Set(ctx, leaderboardKey(), data, s.ttl)
	}
	return clip(results, limit), nil
}

func (s *CachedStore) Result(ctx context.Context, id string) (*model.EpisodeResult, error) {
	// Try cache.
	data, err := s.rdb.Get(ctx, resultKey(id)).Bytes()
	if err == nil {
		var r model.EpisodeResult
		if json.Unmarshal(data, &r) == nil {
			return &r, nil
		}
	}

	// Cache miss.
	r, err := s.primary.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheResult(ctx, r)
	return r, nil
}

func (s *CachedStore) Close() error {
	err := s.primary.Close()
	if rerr := s.rdb.Close(); err == nil {
		err = rerr
	}
	return err
}

func (s *CachedStore) cacheResult(ctx context.Context, r *model.EpisodeResult) {
	if data, err := json.Marshal(r); err == nil {
		s.rdb.Set(ctx, resultKey(r.ID), data, s.ttl)
	}
}

func clip(results []model.EpisodeResult, limit int) []model.EpisodeResult {
	if len(results) > limit {
		return results[:limit]
	}
	return results
}

func leaderboardKey() string        { return "leaderboard" }
func resultKey(id string) string    { return fmt.Sprintf("result:%s", id) }
