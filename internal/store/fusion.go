package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/fusion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// FusionRecord is a persisted fusion result.
type FusionRecord struct {
	ID           uuid.UUID                    `json:"id"`
	Dominant     string                       `json:"dominant"`
	Confidence   float64                      `json:"confidence"`
	Mixture      *emotion.Distribution        `json:"mixture"`
	Contribution map[emotion.Modality]float64 `json:"contribution"`
	Inputs       []FusionInput                `json:"inputs,omitempty"`
	CreatedAt    time.Time                    `json:"created_at"`
}

// FusionInput records which slot version fed a fusion.
type FusionInput struct {
	Modality  emotion.Modality `json:"modality"`
	Label     string           `json:"label"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// WriteFusionResult stores a result together with the slot versions it was
// computed from.
func (s *Store) WriteFusionResult(ctx context.Context, id uuid.UUID, r *fusion.Result, snap slots.Snapshot, at time.Time) error {
	mixture, err := json.Marshal(r.Mixture())
	if err != nil {
		return fmt.Errorf("marshal mixture: %w", err)
	}
	contribution, err := json.Marshal(r.Contribution())
	if err != nil {
		return fmt.Errorf("marshal contribution: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO fusion_results (id, dominant, confidence, mixture, contribution, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5::jsonb, $6)`,
		id, r.Dominant(), r.Confidence(), string(mixture), string(contribution), at,
	)
	if err != nil {
		return fmt.Errorf("insert fusion result: %w", err)
	}

	for _, m := range emotion.Modalities {
		slot := snap.Slot(m)
		_, err = tx.Exec(ctx, `
			INSERT INTO fusion_inputs (fusion_id, modality, label, updated_at)
			VALUES ($1, $2, $3, $4)`,
			id, string(m), slot.Label, slot.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert fusion input: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListFusionResults returns the most recent results, newest first.
func (s *Store) ListFusionResults(ctx context.Context, limit int) ([]FusionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, dominant, confidence, mixture, contribution, created_at
		FROM fusion_results
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fusion results: %w", err)
	}
	defer rows.Close()

	var out []FusionRecord
	for rows.Next() {
		rec, err := scanFusion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetFusionResult loads one result with its inputs.
func (s *Store) GetFusionResult(ctx context.Context, id uuid.UUID) (*FusionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, dominant, confidence, mixture, contribution, created_at
		FROM fusion_results WHERE id = $1`, id)
	rec, err := scanFusion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT modality, label, updated_at FROM fusion_inputs
		WHERE fusion_id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("query fusion inputs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var in FusionInput
		var modality string
		if err := rows.Scan(&modality, &in.Label, &in.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan fusion input: %w", err)
		}
		in.Modality = emotion.Modality(modality)
		rec.Inputs = append(rec.Inputs, in)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanFusion(row pgx.Row) (FusionRecord, error) {
	var rec FusionRecord
	var mixture, contribution []byte
	if err := row.Scan(&rec.ID, &rec.Dominant, &rec.Confidence, &mixture, &contribution, &rec.CreatedAt); err != nil {
		return rec, fmt.Errorf("scan fusion result: %w", err)
	}
	rec.Mixture = &emotion.Distribution{}
	if err := json.Unmarshal(mixture, rec.Mixture); err != nil {
		return rec, fmt.Errorf("decode mixture: %w", err)
	}
	if err := json.Unmarshal(contribution, &rec.Contribution); err != nil {
		return rec, fmt.Errorf("decode contribution: %w", err)
	}
	return rec, nil
}
