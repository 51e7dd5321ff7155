package fusion

import (
	"fmt"
	"math"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
)

// Weights is the relative influence of each modality on the mixture.
type Weights map[emotion.Modality]float64

// DefaultWeights favours the face channel and de-weights audio.
func DefaultWeights() Weights {
	return Weights{
		emotion.Face:  0.5,
		emotion.Audio: 0.15,
		emotion.Text:  0.35,
	}
}

// Validate requires a finite, non-negative weight for every modality and a
// positive total.
func (w Weights) Validate() error {
	var total float64
	for _, m := range emotion.Modalities {
		v, ok := w[m]
		if !ok {
			return fmt.Errorf("weights: no weight for %s", m)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("weights: %s weight %g must be a non-negative number", m, v)
		}
		total += v
	}
	for m := range w {
		if _, err := emotion.ParseModality(string(m)); err != nil {
			return fmt.Errorf("weights: %w", err)
		}
	}
	if total <= 0 {
		return fmt.Errorf("weights: total weight must be positive")
	}
	return nil
}

// Normalized returns a copy scaled to sum to 1. Weights that already sum to 1
// within rounding are returned unchanged so configured constants stay exact.
func (w Weights) Normalized() (Weights, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	var total float64
	for _, m := range emotion.Modalities {
		total += w[m]
	}
	out := make(Weights, len(emotion.Modalities))
	for _, m := range emotion.Modalities {
		if math.Abs(total-1) <= 1e-9 {
			out[m] = w[m]
		} else {
			out[m] = w[m] / total
		}
	}
	return out, nil
}

// Percent expresses normalized weights as percentages.
func (w Weights) Percent() map[emotion.Modality]float64 {
	out := make(map[emotion.Modality]float64, len(w))
	for m, v := range w {
		out[m] = v * 100
	}
	return out
}
