package slots

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
)

// Sentinel classifies a slot that holds a label but no distribution.
type Sentinel int

const (
	SentinelNone Sentinel = iota
	SentinelUnavailable
	SentinelError
)

// Labels shown in place of an emotion when a pipeline could not predict.
const (
	LabelUnavailable = "Model not loaded"
	LabelError       = "Error"
)

func (s Sentinel) String() string {
	switch s {
	case SentinelUnavailable:
		return "unavailable"
	case SentinelError:
		return "error"
	default:
		return "none"
	}
}

// Label is the user-facing placeholder for a sentinel.
func (s Sentinel) Label() string {
	switch s {
	case SentinelUnavailable:
		return LabelUnavailable
	case SentinelError:
		return LabelError
	default:
		return ""
	}
}

func (s Sentinel) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Sentinel) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSentinel(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

func ParseSentinel(name string) (Sentinel, error) {
	switch name {
	case "", "none":
		return SentinelNone, nil
	case "unavailable":
		return SentinelUnavailable, nil
	case "error":
		return SentinelError, nil
	}
	return SentinelNone, fmt.Errorf("unknown sentinel %q", name)
}

// Slot is the latest completed prediction for one modality. A zero
// UpdatedAt means nothing has completed yet.
type Slot struct {
	Modality     emotion.Modality      `json:"modality"`
	Label        string                `json:"label,omitempty"`
	Distribution *emotion.Distribution `json:"distribution,omitempty"`
	Sentinel     Sentinel              `json:"sentinel"`
	Transcript   string                `json:"transcript,omitempty"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Ready reports whether the slot carries a distribution usable for fusion.
func (s Slot) Ready() bool { return s.Distribution != nil }

func (s Slot) Empty() bool { return s.UpdatedAt.IsZero() && s.Label == "" && s.Distribution == nil }

// Snapshot is every slot read in one critical section. Slots may carry
// different timestamps.
type Snapshot struct {
	Face    Slot      `json:"face"`
	Audio   Slot      `json:"audio"`
	Text    Slot      `json:"text"`
	TakenAt time.Time `json:"taken_at"`
}

// Slot returns the slot for m; unknown modalities yield an empty slot.
func (s Snapshot) Slot(m emotion.Modality) Slot {
	switch m {
	case emotion.Face:
		return s.Face
	case emotion.Audio:
		return s.Audio
	case emotion.Text:
		return s.Text
	}
	return Slot{Modality: m}
}

// IsComplete is true iff all three slots have a distribution.
func IsComplete(s Snapshot) bool {
	return len(Missing(s)) == 0
}

// Missing lists modalities without a distribution, in fusion order.
func Missing(s Snapshot) []emotion.Modality {
	var out []emotion.Modality
	for _, m := range emotion.Modalities {
		if !s.Slot(m).Ready() {
			out = append(out, m)
		}
	}
	return out
}

// Store holds one slot per modality. Writes replace a whole slot; the mutex
// is held only for the copy.
type Store struct {
	mu    sync.Mutex
	slots map[emotion.Modality]Slot
	now   func() time.Time
}

func New() *Store {
	s := &Store{
		slots: make(map[emotion.Modality]Slot, len(emotion.Modalities)),
		now:   time.Now,
	}
	for _, m := range emotion.Modalities {
		s.slots[m] = Slot{Modality: m}
	}
	return s
}

// SetResult overwrites m's slot. A nil dist stores the label alone.
func (s *Store) SetResult(m emotion.Modality, label string, dist *emotion.Distribution) (Slot, error) {
	return s.Set(Slot{Modality: m, Label: label, Distribution: dist})
}

// Set replaces the slot named by slot.Modality, stamping UpdatedAt.
func (s *Store) Set(slot Slot) (Slot, error) {
	if _, err := emotion.ParseModality(string(slot.Modality)); err != nil {
		return Slot{}, err
	}
	slot.UpdatedAt = s.now().UTC()

	s.mu.Lock()
	s.slots[slot.Modality] = slot
	s.mu.Unlock()
	return slot, nil
}

// SetTranscript attaches text to m's current slot. The prediction and its
// UpdatedAt are kept; an empty slot has nothing to attach to.
func (s *Store) SetTranscript(m emotion.Modality, text string) (Slot, error) {
	if _, err := emotion.ParseModality(string(m)); err != nil {
		return Slot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	slot := s.slots[m]
	if slot.Empty() {
		return Slot{}, fmt.Errorf("no %s prediction to attach a transcript to", m)
	}
	slot.Transcript = text
	s.slots[m] = slot
	return slot, nil
}

func (s *Store) Get(m emotion.Modality) Slot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slots[m]
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Face:    s.slots[emotion.Face],
		Audio:   s.slots[emotion.Audio],
		Text:    s.slots[emotion.Text],
		TakenAt: s.now().UTC(),
	}
}
