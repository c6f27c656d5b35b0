// Package store persists episode results and serves the leaderboard.
// Implementations include PostgreSQL (source of truth), Redis
// (read-through cache), and in-memory (for testing and the default
// server mode).
package store

import (
	"context"
	"errors"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// ErrResultNotFound is returned when no episode result exists for an id.
var ErrResultNotFound = errors.New("store: result not found")

// DefaultLeaderboardLimit caps leaderboard queries when the caller does
// not specify a limit.
const DefaultLeaderboardLimit = 20

// Store is the episode-result persistence interface.
type Store interface {
	// SaveResult persists one finished episode batch. A missing ID or
	// CreatedAt is filled in.
	SaveResult(ctx context.Context, result *model.EpisodeResult) error

	// Leaderboard returns up to limit results ordered by mean reward,
	// best first. A non-positive limit means DefaultLeaderboardLimit.
	Leaderboard(ctx context.Context, limit int) ([]model.EpisodeResult, error)

	// Result retrieves one result by id. ErrResultNotFound when absent.
	Result(ctx context.Context, id string) (*model.EpisodeResult, error)

	// Close releases the underlying connections.
	Close() error
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	return limit
}
