package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

// New connects, pings and applies the schema.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS fusion_results (
			id UUID PRIMARY KEY,
			dominant TEXT NOT NULL,
			confidence DOUBLE PRECISION NOT NULL,
			mixture JSONB NOT NULL,
			contribution JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS fusion_inputs (
			fusion_id UUID NOT NULL REFERENCES fusion_results(id) ON DELETE CASCADE,
			modality TEXT NOT NULL,
			label TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (fusion_id, modality)
		);
		CREATE TABLE IF NOT EXISTS modality_predictions (
			id UUID PRIMARY KEY,
			modality TEXT NOT NULL,
			label TEXT NOT NULL,
			distribution JSONB,
			sentinel TEXT NOT NULL DEFAULT 'none',
			transcript TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS fusion_results_created_at_idx ON fusion_results (created_at DESC);
		CREATE INDEX IF NOT EXISTS modality_predictions_modality_idx ON modality_predictions (modality, created_at DESC);
	`)
	return err
}
