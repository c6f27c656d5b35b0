package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/agenttycoon/sim-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of
// truth. All monetary values are stored as NUMERIC for exact decimal
// precision and scanned back through TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the results table when it does not exist.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS episode_results (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			episodes INT NOT NULL,
			mean_reward NUMERIC NOT NULL,
			std_reward NUMERIC NOT NULL,
			final_nav NUMERIC NOT NULL,
			adaptability_score DOUBLE PRECISION NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("init episode_results: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`CREATE INDEX IF NOT EXISTS idx_episode_results_mean_reward
		 ON episode_results (mean_reward DESC)`)
	if err != nil {
		return fmt.Errorf("init episode_results index: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveResult(ctx context.Context, r *model.EpisodeResult) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO episode_results (id, agent_name, episodes, mean_reward, std_reward, final_nav, adaptability_score, notes, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7, $8, $9)`,
		r.ID, r.AgentName, r.Episodes,
		r.MeanReward.String(), r.StdReward.String(), r.FinalNAV.String(),
		r.AdaptabilityScore, r.Notes, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save result %s: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]model.EpisodeResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, agent_name, episodes,
		        mean_reward::TEXT, std_reward::TEXT, final_nav::TEXT,
		        adaptability_score, notes, created_at
		 FROM episode_results
		 ORDER BY mean_reward DESC, created_at DESC
		 LIMIT $1`, normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.EpisodeResult
	for rows.Next() {
		r, err := scanResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

func (s *PostgresStore) Result(ctx context.Context, id string) (*model.EpisodeResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, agent_name, episodes,
		        mean_reward::TEXT, std_reward::TEXT, final_nav::TEXT,
		        adaptability_score, notes, created_at
		 FROM episode_results WHERE id = $1`, id)

	r, err := scanResult(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get result %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanResult(scan func(dest ...any) error) (*model.EpisodeResult, error) {
	var r model.EpisodeResult
	var mean, std, nav string

	if err := scan(&r.ID, &r.AgentName, &r.Episodes,
		&mean, &std, &nav,
		&r.AdaptabilityScore, &r.Notes, &r.CreatedAt); err != nil {
		return nil, err
	}

	r.MeanReward, _ = decimal.NewFromString(mean)
	r.StdReward, _ = decimal.NewFromString(std)
	r.FinalNAV, _ = decimal.NewFromString(nav)
	return &r, nil
}
