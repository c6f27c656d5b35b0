package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// MemoryStore implements Store with an in-memory map. Used for testing
// and for running the server without a database.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]model.EpisodeResult
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]model.EpisodeResult),
	}
}

func (s *MemoryStore) SaveResult(_ context.Context, result *model.EpisodeResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if result.ID == "" {
		result.ID = uuid.New().String()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	// Store a copy to avoid external mutation.
	s.results[result.ID] = *result
	return nil
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]model.EpisodeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]model.EpisodeResult, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if !results[i].MeanReward.Equal(results[j].MeanReward) {
			return results[i].MeanReward.GreaterThan(results[j].MeanReward)
		}
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.After(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})

	if limit = normalizeLimit(limit); len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryStore) Result(_ context.Context, id string) (*model.EpisodeResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.results[id]
	if !ok {
		return nil, ErrResultNotFound
	}
	return &r, nil
}

func (s *MemoryStore) Close() error { return nil }
