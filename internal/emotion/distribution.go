package emotion

import (
	"encoding/json"
	"fmt"
	"math"
)

// Tolerance is the slack allowed when checking that a distribution sums to 1.
const Tolerance = 1e-6

// Distribution is an ordered label -> probability mapping over one vocabulary.
// It is immutable once constructed; accessors hand out copies.
type Distribution struct {
	labels Vocabulary
	probs  []float64
}

// NewDistribution pairs probs with labels. The only structural check is that
// both have the same length; value checks belong to the consumer.
func NewDistribution(labels Vocabulary, probs []float64) (*Distribution, error) {
	if len(labels) != len(probs) {
		return nil, fmt.Errorf("distribution has %d probabilities for %d labels", len(probs), len(labels))
	}
	return &Distribution{
		labels: append(Vocabulary(nil), labels...),
		probs:  append([]float64(nil), probs...),
	}, nil
}

// OneHot returns a distribution with all mass on label.
func OneHot(labels Vocabulary, label string) (*Distribution, error) {
	i := labels.Index(label)
	if i < 0 {
		return nil, fmt.Errorf("label %q not in vocabulary", label)
	}
	probs := make([]float64, len(labels))
	probs[i] = 1
	return NewDistribution(labels, probs)
}

func (d *Distribution) Labels() Vocabulary { return append(Vocabulary(nil), d.labels...) }

func (d *Distribution) Probs() []float64 { return append([]float64(nil), d.probs...) }

func (d *Distribution) Len() int { return len(d.probs) }

// Prob returns the probability of label, or 0 if the label is not present.
func (d *Distribution) Prob(label string) float64 {
	if i := d.labels.Index(label); i >= 0 {
		return d.probs[i]
	}
	return 0
}

func (d *Distribution) Sum() float64 {
	var s float64
	for _, p := range d.probs {
		s += p
	}
	return s
}

// Argmax returns the first label holding the maximum probability.
func (d *Distribution) Argmax() (string, float64) {
	if len(d.probs) == 0 {
		return "", 0
	}
	best := 0
	for i := 1; i < len(d.probs); i++ {
		if d.probs[i] > d.probs[best] {
			best = i
		}
	}
	return d.labels[best], d.probs[best]
}

// Check reports the first value that is negative or not finite.
func (d *Distribution) Check() error {
	for i, p := range d.probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("probability for %q is not finite", d.labels[i])
		}
		if p < 0 {
			return fmt.Errorf("probability for %q is negative (%g)", d.labels[i], p)
		}
	}
	return nil
}

type distributionJSON struct {
	Labels []string  `json:"labels"`
	Probs  []float64 `json:"probs"`
}

func (d *Distribution) MarshalJSON() ([]byte, error) {
	return json.Marshal(distributionJSON{Labels: d.labels, Probs: d.probs})
}

func (d *Distribution) UnmarshalJSON(data []byte) error {
	var raw distributionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := NewDistribution(raw.Labels, raw.Probs)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
