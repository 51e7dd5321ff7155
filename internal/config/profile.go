package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/fusion"
)

// Profile tunes fusion without a rebuild. Omitted sections keep defaults.
//
//	weights:
//	  face: 0.5
//	  audio: 0.15
//	  text: 0.35
//	text_mapping:
//	  love: happy
//	icons:
//	  neutral: "🙂"
type Profile struct {
	Weights     map[string]float64 `yaml:"weights"`
	TextMapping map[string]string  `yaml:"text_mapping"`
	Icons       map[string]string  `yaml:"icons"`
}

// LoadProfile reads a YAML profile. An empty path yields the zero profile.
func LoadProfile(path string) (Profile, error) {
	if path == "" {
		return Profile{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return ParseProfile(data)
}

func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return Profile{}, fmt.Errorf("parse profile: %w", err)
	}
	return p, nil
}

// FusionWeights overlays configured weights on the defaults.
func (p Profile) FusionWeights() (fusion.Weights, error) {
	w := fusion.DefaultWeights()
	for name, v := range p.Weights {
		m, err := emotion.ParseModality(name)
		if err != nil {
			return nil, fmt.Errorf("profile weights: %w", err)
		}
		w[m] = v
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Registry builds the label registry. A text_mapping section replaces the
// whole default text mapping, so it must cover every text label.
func (p Profile) Registry() (*emotion.Registry, error) {
	return emotion.NewDefaultRegistry(p.TextMapping)
}
