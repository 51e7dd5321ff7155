package fusion

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

// IncompleteInputError is returned when any modality has no distribution.
// No partial fusion is ever produced.
type IncompleteInputError struct {
	Missing []emotion.Modality
}

func (e *IncompleteInputError) Error() string {
	names := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		names[i] = string(m)
	}
	return "fusion: incomplete input, missing " + strings.Join(names, ", ")
}

// MalformedDistributionError means a pipeline stored a distribution that
// cannot be fused. It points at an upstream contract violation.
type MalformedDistributionError struct {
	Modality emotion.Modality
	Reason   string
}

func (e *MalformedDistributionError) Error() string {
	return fmt.Sprintf("fusion: malformed %s distribution: %s", e.Modality, e.Reason)
}

// Result is one fused decision. It is immutable; accessors return copies.
type Result struct {
	dominant     string
	confidence   float64
	mixture      *emotion.Distribution
	contribution map[emotion.Modality]float64
}

func (r *Result) Dominant() string { return r.dominant }

func (r *Result) Confidence() float64 { return r.confidence }

// Mixture is the weighted distribution over the canonical space.
func (r *Result) Mixture() *emotion.Distribution {
	d, _ := emotion.NewDistribution(r.mixture.Labels(), r.mixture.Probs())
	return d
}

// Contribution is the configured influence of each modality in percent.
func (r *Result) Contribution() map[emotion.Modality]float64 {
	out := make(map[emotion.Modality]float64, len(r.contribution))
	for m, v := range r.contribution {
		out[m] = v
	}
	return out
}

func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Dominant     string                       `json:"dominant"`
		Confidence   float64                      `json:"confidence"`
		Mixture      *emotion.Distribution        `json:"mixture"`
		Contribution map[emotion.Modality]float64 `json:"contribution"`
	}{r.dominant, r.confidence, r.mixture, r.contribution})
}

// Engine fuses snapshots with a fixed weight table and registry.
type Engine struct {
	weights  Weights
	registry *emotion.Registry
}

// NewEngine validates and normalizes the weights once.
func NewEngine(w Weights, reg *emotion.Registry) (*Engine, error) {
	if reg == nil {
		return nil, fmt.Errorf("fusion: registry is required")
	}
	norm, err := w.Normalized()
	if err != nil {
		return nil, err
	}
	return &Engine{weights: norm, registry: reg}, nil
}

func (e *Engine) Weights() Weights {
	out := make(Weights, len(e.weights))
	for m, v := range e.weights {
		out[m] = v
	}
	return out
}

func (e *Engine) Registry() *emotion.Registry { return e.registry }

func (e *Engine) Fuse(snap slots.Snapshot) (*Result, error) {
	return fuse(snap, e.weights, e.registry)
}

// Fuse combines the three slots of snap into one decision. It reads nothing
// but its arguments and never mutates them.
func Fuse(snap slots.Snapshot, w Weights, reg *emotion.Registry) (*Result, error) {
	if reg == nil {
		return nil, fmt.Errorf("fusion: registry is required")
	}
	norm, err := w.Normalized()
	if err != nil {
		return nil, err
	}
	return fuse(snap, norm, reg)
}

func fuse(snap slots.Snapshot, w Weights, reg *emotion.Registry) (*Result, error) {
	if missing := slots.Missing(snap); len(missing) > 0 {
		return nil, &IncompleteInputError{Missing: missing}
	}

	canonical := reg.CanonicalSpace()
	mixture := make([]float64, len(canonical))
	for _, m := range emotion.Modalities {
		probs, err := canonicalize(reg, m, snap.Slot(m).Distribution)
		if err != nil {
			return nil, err
		}
		for i, p := range probs {
			mixture[i] += w[m] * p
		}
	}

	best := 0
	for i := 1; i < len(mixture); i++ {
		if mixture[i] > mixture[best] {
			best = i
		}
	}

	dist, err := emotion.NewDistribution(canonical, mixture)
	if err != nil {
		return nil, fmt.Errorf("fusion: build mixture: %w", err)
	}
	return &Result{
		dominant:     canonical[best],
		confidence:   mixture[best],
		mixture:      dist,
		contribution: w.Percent(),
	}, nil
}

// canonicalize projects d into the canonical space. Remapped distributions
// are always renormalized by their own mass; identity-mapped ones only when
// they drift outside tolerance.
func canonicalize(reg *emotion.Registry, m emotion.Modality, d *emotion.Distribution) ([]float64, error) {
	if err := d.Check(); err != nil {
		return nil, &MalformedDistributionError{Modality: m, Reason: err.Error()}
	}
	probs, err := reg.Remap(m, d)
	if err != nil {
		return nil, &MalformedDistributionError{Modality: m, Reason: err.Error()}
	}

	var sum float64
	for _, p := range probs {
		sum += p
	}
	if !(sum > 0) || math.IsInf(sum, 0) {
		return nil, &MalformedDistributionError{Modality: m, Reason: fmt.Sprintf("total mass %g is not positive", sum)}
	}

	if reg.IsIdentity(m) && math.Abs(sum-1) <= emotion.Tolerance {
		return probs, nil
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs, nil
}
