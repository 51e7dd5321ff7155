package hermes

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/fusion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

const (
	SubjectModalityUpdated = "swarm.empath.modality.updated"
	SubjectFusionCompleted = "swarm.empath.fusion.completed"
	SubjectFusionRefused   = "swarm.empath.fusion.refused"
	SubjectTextSubmitted   = "swarm.empath.text.submitted"
	SubjectRegistered      = "swarm.agent.empath.registered"
)

// ModalityUpdated is published after every slot write, including sentinel
// writes.
type ModalityUpdated struct {
	Modality     emotion.Modality      `json:"modality"`
	Label        string                `json:"label"`
	Sentinel     slots.Sentinel        `json:"sentinel"`
	Distribution *emotion.Distribution `json:"distribution,omitempty"`
	Transcript   string                `json:"transcript,omitempty"`
	Error        string                `json:"error,omitempty"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

func NewModalityUpdated(slot slots.Slot, predErr error) ModalityUpdated {
	ev := ModalityUpdated{
		Modality:     slot.Modality,
		Label:        slot.Label,
		Sentinel:     slot.Sentinel,
		Distribution: slot.Distribution,
		Transcript:   slot.Transcript,
		UpdatedAt:    slot.UpdatedAt,
	}
	if predErr != nil {
		ev.Error = predErr.Error()
	}
	return ev
}

type FusionCompleted struct {
	ID           string                       `json:"id"`
	Dominant     string                       `json:"dominant"`
	Confidence   float64                      `json:"confidence"`
	Mixture      *emotion.Distribution        `json:"mixture"`
	Contribution map[emotion.Modality]float64 `json:"contribution"`
	CreatedAt    time.Time                    `json:"created_at"`
}

func NewFusionCompleted(id string, r *fusion.Result, at time.Time) FusionCompleted {
	return FusionCompleted{
		ID:           id,
		Dominant:     r.Dominant(),
		Confidence:   r.Confidence(),
		Mixture:      r.Mixture(),
		Contribution: r.Contribution(),
		CreatedAt:    at,
	}
}

// Refusal reasons.
const (
	ReasonIncomplete = "incomplete"
	ReasonMalformed  = "malformed"
)

type FusionRefused struct {
	Reason   string             `json:"reason"`
	Missing  []emotion.Modality `json:"missing,omitempty"`
	Modality emotion.Modality   `json:"modality,omitempty"`
	Error    string             `json:"error"`
	At       time.Time          `json:"at"`
}

// NewFusionRefused classifies a fusion error. ok is false for errors that
// are neither incomplete nor malformed input.
func NewFusionRefused(err error, at time.Time) (FusionRefused, bool) {
	ev := FusionRefused{Error: err.Error(), At: at}

	var inc *fusion.IncompleteInputError
	var bad *fusion.MalformedDistributionError
	switch {
	case errors.As(err, &inc):
		ev.Reason = ReasonIncomplete
		ev.Missing = inc.Missing
	case errors.As(err, &bad):
		ev.Reason = ReasonMalformed
		ev.Modality = bad.Modality
	default:
		return ev, false
	}
	return ev, true
}

// TextSubmitted lets other agents feed the text modality.
type TextSubmitted struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

func DecodeTextSubmitted(data []byte) (TextSubmitted, error) {
	var ev TextSubmitted
	if err := json.Unmarshal(data, &ev); err != nil {
		return ev, err
	}
	if strings.TrimSpace(ev.Text) == "" {
		return ev, errors.New("text submission is empty")
	}
	return ev, nil
}
