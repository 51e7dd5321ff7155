package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

// PredictionRecord is one persisted slot write.
type PredictionRecord struct {
	ID           uuid.UUID             `json:"id"`
	Modality     emotion.Modality      `json:"modality"`
	Label        string                `json:"label"`
	Distribution *emotion.Distribution `json:"distribution,omitempty"`
	Sentinel     slots.Sentinel        `json:"sentinel"`
	Transcript   string                `json:"transcript,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

// WritePrediction appends a slot write to the prediction log.
func (s *Store) WritePrediction(ctx context.Context, slot slots.Slot) (uuid.UUID, error) {
	var dist *string
	if slot.Distribution != nil {
		b, err := json.Marshal(slot.Distribution)
		if err != nil {
			return uuid.Nil, fmt.Errorf("marshal distribution: %w", err)
		}
		str := string(b)
		dist = &str
	}

	createdAt := slot.UpdatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	id := uuid.New()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO modality_predictions (id, modality, label, distribution, sentinel, transcript, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7)`,
		id, string(slot.Modality), slot.Label, dist, slot.Sentinel.String(), slot.Transcript, createdAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert prediction: %w", err)
	}
	return id, nil
}

// ListPredictions returns recent predictions for one modality, newest first.
func (s *Store) ListPredictions(ctx context.Context, m emotion.Modality, limit int) ([]PredictionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, modality, label, distribution, sentinel, transcript, created_at
		FROM modality_predictions
		WHERE modality = $1
		ORDER BY created_at DESC
		LIMIT $2`, string(m), limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	var out []PredictionRecord
	for rows.Next() {
		var rec PredictionRecord
		var modality, sentinel string
		var dist []byte
		if err := rows.Scan(&rec.ID, &modality, &rec.Label, &dist, &sentinel, &rec.Transcript, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		rec.Modality = emotion.Modality(modality)
		if rec.Sentinel, err = slots.ParseSentinel(sentinel); err != nil {
			return nil, err
		}
		if dist != nil {
			rec.Distribution = &emotion.Distribution{}
			if err := json.Unmarshal(dist, rec.Distribution); err != nil {
				return nil, fmt.Errorf("decode distribution: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
