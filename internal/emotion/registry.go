package emotion

import (
	"fmt"
	"slices"
)

// Modality is one of the independent emotion-sensing channels.
type Modality string

const (
	Face  Modality = "face"
	Audio Modality = "audio"
	Text  Modality = "text"
)

// Modalities lists every modality in fusion order.
var Modalities = []Modality{Face, Audio, Text}

// ParseModality validates a modality name.
func ParseModality(s string) (Modality, error) {
	m := Modality(s)
	if !slices.Contains(Modalities, m) {
		return "", fmt.Errorf("unknown modality %q", s)
	}
	return m, nil
}

// Vocabulary is an ordered label set.
type Vocabulary []string

// Index returns the position of label, or -1.
func (v Vocabulary) Index(label string) int {
	return slices.Index(v, label)
}

var (
	// CanonicalLabels is the fusion vocabulary; it is the face model's vocabulary.
	CanonicalLabels = Vocabulary{"angry", "disgust", "fear", "happy", "neutral", "sad", "surprise"}
	FaceLabels      = CanonicalLabels
	AudioLabels     = CanonicalLabels
	TextLabels      = Vocabulary{"anger", "joy", "sadness", "fear", "love", "surprise"}
)

// DefaultTextMapping projects the text model's labels into the canonical space.
// Nothing maps to disgust or neutral.
var DefaultTextMapping = map[string]string{
	"anger":    "angry",
	"joy":      "happy",
	"sadness":  "sad",
	"fear":     "fear",
	"love":     "happy",
	"surprise": "surprise",
}

// ConfigError reports a label space that cannot be used for fusion.
type ConfigError struct {
	Modality Modality
	Label    string
	Reason   string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Modality == "":
		return "label space: " + e.Reason
	case e.Label == "":
		return fmt.Sprintf("label space %s: %s", e.Modality, e.Reason)
	default:
		return fmt.Sprintf("label space %s: label %q %s", e.Modality, e.Label, e.Reason)
	}
}

// Registry maps each modality's native labels into the canonical space.
// Construction guarantees the mapping is total, so lookups of declared
// labels never fail at fusion time.
type Registry struct {
	canonical Vocabulary
	vocab     map[Modality]Vocabulary
	target    map[Modality][]int // native index -> canonical index
	identity  map[Modality]bool
}

// NewRegistry validates vocabularies and mappings. A modality without a
// mapping uses the identity mapping, which requires every native label to be
// canonical.
func NewRegistry(canonical Vocabulary, vocabs map[Modality]Vocabulary, mappings map[Modality]map[string]string) (*Registry, error) {
	if len(canonical) == 0 {
		return nil, &ConfigError{Reason: "canonical space is empty"}
	}
	if dup := firstDuplicate(canonical); dup != "" {
		return nil, &ConfigError{Label: dup, Reason: "canonical label " + dup + " is declared twice"}
	}

	r := &Registry{
		canonical: append(Vocabulary(nil), canonical...),
		vocab:     make(map[Modality]Vocabulary, len(Modalities)),
		target:    make(map[Modality][]int, len(Modalities)),
		identity:  make(map[Modality]bool, len(Modalities)),
	}

	for _, m := range Modalities {
		native, ok := vocabs[m]
		if !ok || len(native) == 0 {
			return nil, &ConfigError{Modality: m, Reason: "no vocabulary declared"}
		}
		if dup := firstDuplicate(native); dup != "" {
			return nil, &ConfigError{Modality: m, Label: dup, Reason: "is declared twice"}
		}

		mapping := mappings[m]
		targets := make([]int, len(native))
		identity := mapping == nil && slices.Equal(native, canonical)
		for i, label := range native {
			dest := label
			if mapping != nil {
				mapped, ok := mapping[label]
				if !ok {
					return nil, &ConfigError{Modality: m, Label: label, Reason: "has no canonical mapping"}
				}
				dest = mapped
			}
			idx := canonical.Index(dest)
			if idx < 0 {
				return nil, &ConfigError{Modality: m, Label: label, Reason: fmt.Sprintf("maps to %q which is not canonical", dest)}
			}
			targets[i] = idx
		}
		for label := range mapping {
			if native.Index(label) < 0 {
				return nil, &ConfigError{Modality: m, Label: label, Reason: "is mapped but not in the vocabulary"}
			}
		}

		r.vocab[m] = append(Vocabulary(nil), native...)
		r.target[m] = targets
		r.identity[m] = identity
	}
	return r, nil
}

// NewDefaultRegistry builds the registry for the shipped models, optionally
// overriding the text mapping.
func NewDefaultRegistry(textMapping map[string]string) (*Registry, error) {
	if textMapping == nil {
		textMapping = DefaultTextMapping
	}
	return NewRegistry(CanonicalLabels,
		map[Modality]Vocabulary{Face: FaceLabels, Audio: AudioLabels, Text: TextLabels},
		map[Modality]map[string]string{Text: textMapping},
	)
}

// DefaultRegistry panics if the built-in label spaces are inconsistent.
func DefaultRegistry() *Registry {
	r, err := NewDefaultRegistry(nil)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) CanonicalSpace() Vocabulary { return append(Vocabulary(nil), r.canonical...) }

func (r *Registry) Vocabulary(m Modality) Vocabulary { return append(Vocabulary(nil), r.vocab[m]...) }

// IsIdentity reports whether m's native space already is the canonical space.
func (r *Registry) IsIdentity(m Modality) bool { return r.identity[m] }

// Canonical returns the canonical label for a native label of m.
func (r *Registry) Canonical(m Modality, native string) (string, error) {
	vocab, ok := r.vocab[m]
	if !ok {
		return "", &ConfigError{Modality: m, Reason: "unknown modality"}
	}
	i := vocab.Index(native)
	if i < 0 {
		return "", &ConfigError{Modality: m, Label: native, Reason: "is not in the vocabulary"}
	}
	return r.canonical[r.target[m][i]], nil
}

// Remap sums d's mass into canonical buckets. d must be over m's vocabulary.
func (r *Registry) Remap(m Modality, d *Distribution) ([]float64, error) {
	vocab, ok := r.vocab[m]
	if !ok {
		return nil, &ConfigError{Modality: m, Reason: "unknown modality"}
	}
	if !slices.Equal(d.labels, vocab) {
		return nil, fmt.Errorf("distribution labels %v do not match %s vocabulary %v", d.labels, m, vocab)
	}
	out := make([]float64, len(r.canonical))
	targets := r.target[m]
	for i, p := range d.probs {
		out[targets[i]] += p
	}
	return out, nil
}

// Mapping is one row of the registry table.
type Mapping struct {
	Modality  Modality `json:"modality"`
	Native    string   `json:"native"`
	Canonical string   `json:"canonical"`
}

// Table lists every native -> canonical pair in modality and vocabulary order.
func (r *Registry) Table() []Mapping {
	var rows []Mapping
	for _, m := range Modalities {
		for i, label := range r.vocab[m] {
			rows = append(rows, Mapping{Modality: m, Native: label, Canonical: r.canonical[r.target[m][i]]})
		}
	}
	return rows
}

// Unreachable lists canonical labels that receive no mass from m.
func (r *Registry) Unreachable(m Modality) []string {
	hit := make([]bool, len(r.canonical))
	for _, t := range r.target[m] {
		hit[t] = true
	}
	var out []string
	for i, ok := range hit {
		if !ok {
			out = append(out, r.canonical[i])
		}
	}
	return out
}

func firstDuplicate(v Vocabulary) string {
	seen := make(map[string]bool, len(v))
	for _, l := range v {
		if seen[l] {
			return l
		}
		seen[l] = true
	}
	return ""
}
