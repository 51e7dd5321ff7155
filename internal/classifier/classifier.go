package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
)

// Model input limits.
const (
	FaceSide      = 48
	FacePixels    = FaceSide * FaceSide
	MaxTextTokens = 128
	AudioSampleHz = 16000
)

// ErrUnavailable marks a classifier whose model never loaded. Slots fed by it
// stay incomplete until restart.
var ErrUnavailable = errors.New("model not loaded")

// Input carries whichever field the classifier's modality consumes.
type Input struct {
	Image     []byte // FaceSide x FaceSide grayscale pixels, row-major
	AudioPath string // WAV recording
	Text      string
}

type Prediction struct {
	Label        string
	Distribution *emotion.Distribution
}

type Classifier interface {
	Modality() emotion.Modality
	Predict(ctx context.Context, in Input) (*Prediction, error)
}

// Unavailable stands in for a model that failed to load.
type Unavailable struct {
	modality emotion.Modality
	reason   string
}

func NewUnavailable(m emotion.Modality, reason string) *Unavailable {
	return &Unavailable{modality: m, reason: reason}
}

func (u *Unavailable) Modality() emotion.Modality { return u.modality }

func (u *Unavailable) Reason() string { return u.reason }

func (u *Unavailable) Predict(context.Context, Input) (*Prediction, error) {
	return nil, fmt.Errorf("%s classifier: %s: %w", u.modality, u.reason, ErrUnavailable)
}

// IsUnavailable reports whether c is a stand-in for a missing model.
func IsUnavailable(c Classifier) bool {
	_, ok := c.(*Unavailable)
	return ok
}

// ValidateFaceImage checks the fixed-size single-channel frame.
func ValidateFaceImage(img []byte) error {
	if len(img) != FacePixels {
		return fmt.Errorf("face image must be %dx%d grayscale (%d bytes), got %d bytes", FaceSide, FaceSide, FacePixels, len(img))
	}
	return nil
}

// TruncateTokens keeps the first n whitespace-separated tokens.
func TruncateTokens(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
