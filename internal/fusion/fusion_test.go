package fusion

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

const eps = 1e-9

func dist(t *testing.T, labels emotion.Vocabulary, probs ...float64) *emotion.Distribution {
	t.Helper()
	d, err := emotion.NewDistribution(labels, probs)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func hot(t *testing.T, labels emotion.Vocabulary, label string) *emotion.Distribution {
	t.Helper()
	d, err := emotion.OneHot(labels, label)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func snapshot(face, audio, text *emotion.Distribution) slots.Snapshot {
	return slots.Snapshot{
		Face:  slots.Slot{Modality: emotion.Face, Distribution: face},
		Audio: slots.Slot{Modality: emotion.Audio, Distribution: audio},
		Text:  slots.Slot{Modality: emotion.Text, Distribution: text},
	}
}

func TestFuse_AngryFaceAndVoiceJoyfulText(t *testing.T) {
	reg := emotion.DefaultRegistry()
	snap := snapshot(
		hot(t, emotion.FaceLabels, "angry"),
		hot(t, emotion.AudioLabels, "angry"),
		hot(t, emotion.TextLabels, "joy"),
	)

	res, err := Fuse(snap, DefaultWeights(), reg)
	if err != nil {
		t.Fatalf("Fuse failed: %v", err)
	}

	if res.Dominant() != "angry" {
		t.Errorf("dominant = %q, want angry", res.Dominant())
	}
	if math.Abs(res.Confidence()-0.65) > eps {
		t.Errorf("confidence = %f, want 0.65", res.Confidence())
	}

	mix := res.Mixture()
	for _, label := range emotion.CanonicalLabels {
		want := 0.0
		switch label {
		case "angry":
			want = 0.65
		case "happy":
			want = 0.35
		}
		if math.Abs(mix.Prob(label)-want) > eps {
			t.Errorf("mixture[%s] = %f, want %f", label, mix.Prob(label), want)
		}
	}

	contrib := res.Contribution()
	wantContrib := map[emotion.Modality]float64{emotion.Face: 50, emotion.Audio: 15, emotion.Text: 35}
	for m, want := range wantContrib {
		if math.Abs(contrib[m]-want) > eps {
			t.Errorf("contribution[%s] = %f, want %f", m, contrib[m], want)
		}
	}
}

func TestFuse_LoveAndJoyAreInterchangeable(t *testing.T) {
	reg := emotion.DefaultRegistry()
	face := hot(t, emotion.FaceLabels, "angry")
	audio := hot(t, emotion.AudioLabels, "angry")

	joy, err := Fuse(snapshot(face, audio, hot(t, emotion.TextLabels, "joy")), DefaultWeights(), reg)
	if err != nil {
		t.Fatal(err)
	}
	love, err := Fuse(snapshot(face, audio, hot(t, emotion.TextLabels, "love")), DefaultWeights(), reg)
	if err != nil {
		t.Fatal(err)
	}

	if joy.Dominant() != love.Dominant() || joy.Confidence() != love.Confidence() {
		t.Errorf("joy=%s/%f love=%s/%f", joy.Dominant(), joy.Confidence(), love.Dominant(), love.Confidence())
	}
	if !slices.Equal(joy.Mixture().Probs(), love.Mixture().Probs()) {
		t.Errorf("mixtures differ: %v vs %v", joy.Mixture().Probs(), love.Mixture().Probs())
	}
}

func TestFuse_SplitTextMassSumsIntoHappy(t *testing.T) {
	reg := emotion.DefaultRegistry()
	snap := snapshot(
		hot(t, emotion.FaceLabels, "neutral"),
		hot(t, emotion.AudioLabels, "neutral"),
		dist(t, emotion.TextLabels, 0, 0.5, 0, 0, 0.5, 0),
	)

	res, err := Fuse(snap, DefaultWeights(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Mixture().Prob("happy"); math.Abs(got-0.35) > eps {
		t.Errorf("happy = %f, want 0.35", got)
	}
	if res.Dominant() != "neutral" {
		t.Errorf("dominant = %q, want neutral", res.Dominant())
	}
}

func TestFuse_TieBreaksOnCanonicalOrder(t *testing.T) {
	reg := emotion.DefaultRegistry()
	w := Weights{emotion.Face: 0.5, emotion.Audio: 0.5, emotion.Text: 0}
	snap := snapshot(
		hot(t, emotion.FaceLabels, "sad"),
		hot(t, emotion.AudioLabels, "fear"),
		hot(t, emotion.TextLabels, "joy"),
	)

	for i := 0; i < 20; i++ {
		res, err := Fuse(snap, w, reg)
		if err != nil {
			t.Fatal(err)
		}
		// fear precedes sad in the canonical order
		if res.Dominant() != "fear" {
			t.Fatalf("run %d: dominant = %q, want fear", i, res.Dominant())
		}
	}
}

func TestFuse_IncompleteInput(t *testing.T) {
	reg := emotion.DefaultRegistry()
	face := hot(t, emotion.FaceLabels, "happy")
	audio := hot(t, emotion.AudioLabels, "happy")
	text := hot(t, emotion.TextLabels, "joy")

	tests := []struct {
		name    string
		snap    slots.Snapshot
		missing []emotion.Modality
	}{
		{"no face", snapshot(nil, audio, text), []emotion.Modality{emotion.Face}},
		{"no audio", snapshot(face, nil, text), []emotion.Modality{emotion.Audio}},
		{"no text", snapshot(face, audio, nil), []emotion.Modality{emotion.Text}},
		{"nothing", snapshot(nil, nil, nil), emotion.Modalities},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Fuse(tt.snap, DefaultWeights(), reg)
			if res != nil {
				t.Fatal("expected no result for incomplete input")
			}
			var inc *IncompleteInputError
			if !errors.As(err, &inc) {
				t.Fatalf("expected *IncompleteInputError, got %v", err)
			}
			if !slices.Equal(inc.Missing, tt.missing) {
				t.Errorf("missing = %v, want %v", inc.Missing, tt.missing)
			}
		})
	}
}

func TestFuse_SentinelSlotRefused(t *testing.T) {
	snap := snapshot(hot(t, emotion.FaceLabels, "happy"), hot(t, emotion.AudioLabels, "happy"), nil)
	snap.Text.Label = slots.LabelUnavailable
	snap.Text.Sentinel = slots.SentinelUnavailable

	_, err := Fuse(snap, DefaultWeights(), emotion.DefaultRegistry())
	var inc *IncompleteInputError
	if !errors.As(err, &inc) {
		t.Fatalf("expected *IncompleteInputError, got %v", err)
	}
}

func TestFuse_MalformedDistribution(t *testing.T) {
	reg := emotion.DefaultRegistry()
	face := hot(t, emotion.FaceLabels, "happy")
	audio := hot(t, emotion.AudioLabels, "happy")
	text := hot(t, emotion.TextLabels, "joy")

	tests := []struct {
		name     string
		snap     slots.Snapshot
		modality emotion.Modality
	}{
		{"all-zero text", snapshot(face, audio, dist(t, emotion.TextLabels, 0, 0, 0, 0, 0, 0)), emotion.Text},
		{"all-zero face", snapshot(dist(t, emotion.FaceLabels, 0, 0, 0, 0, 0, 0, 0), audio, text), emotion.Face},
		{"negative audio", snapshot(face, dist(t, emotion.AudioLabels, 1.5, -0.5, 0, 0, 0, 0, 0), text), emotion.Audio},
		{"nan text", snapshot(face, audio, dist(t, emotion.TextLabels, math.NaN(), 1, 0, 0, 0, 0)), emotion.Text},
		{"text stored as face vocabulary", snapshot(face, audio, hot(t, emotion.FaceLabels, "happy")), emotion.Text},
		{"short face vector", snapshot(dist(t, emotion.Vocabulary{"angry", "happy"}, 0.5, 0.5), audio, text), emotion.Face},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fuse(tt.snap, DefaultWeights(), reg)
			var bad *MalformedDistributionError
			if !errors.As(err, &bad) {
				t.Fatalf("expected *MalformedDistributionError, got %v", err)
			}
			if bad.Modality != tt.modality {
				t.Errorf("modality = %s, want %s", bad.Modality, tt.modality)
			}
			var inc *IncompleteInputError
			if errors.As(err, &inc) {
				t.Error("malformed input must not look like incomplete input")
			}
		})
	}
}

func TestFuse_IsPure(t *testing.T) {
	reg := emotion.DefaultRegistry()
	snap := snapshot(
		dist(t, emotion.FaceLabels, 0.1, 0.05, 0.2, 0.3, 0.15, 0.1, 0.1),
		dist(t, emotion.AudioLabels, 0.3, 0.1, 0.1, 0.1, 0.2, 0.1, 0.1),
		dist(t, emotion.TextLabels, 0.2, 0.2, 0.1, 0.3, 0.1, 0.1),
	)
	before := snap.Text.Distribution.Probs()

	first, err := Fuse(snap, DefaultWeights(), reg)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Fuse(snap, DefaultWeights(), reg)
	if err != nil {
		t.Fatal(err)
	}

	if first.Dominant() != second.Dominant() || first.Confidence() != second.Confidence() {
		t.Errorf("repeat fusion differs: %s/%v vs %s/%v", first.Dominant(), first.Confidence(), second.Dominant(), second.Confidence())
	}
	if !slices.Equal(before, snap.Text.Distribution.Probs()) {
		t.Error("fusion mutated the snapshot")
	}
}

func TestFuse_TextRemapPreservesMass(t *testing.T) {
	reg := emotion.DefaultRegistry()
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 200; i++ {
		probs := make([]float64, len(emotion.TextLabels))
		var sum float64
		for j := range probs {
			probs[j] = rng.Float64()
			sum += probs[j]
		}
		for j := range probs {
			probs[j] /= sum
		}

		mapped, err := canonicalize(reg, emotion.Text, dist(t, emotion.TextLabels, probs...))
		if err != nil {
			t.Fatal(err)
		}
		var total float64
		for _, p := range mapped {
			total += p
		}
		if math.Abs(total-1) > emotion.Tolerance {
			t.Fatalf("case %d: remapped mass = %f", i, total)
		}
		for _, unreachable := range reg.Unreachable(emotion.Text) {
			if mapped[reg.CanonicalSpace().Index(unreachable)] != 0 {
				t.Fatalf("case %d: %s received mass from text", i, unreachable)
			}
		}
	}
}

func TestFuse_ConfidenceWithinUnitInterval(t *testing.T) {
	reg := emotion.DefaultRegistry()
	// face sums to 2: identity slots drifting outside tolerance are renormalized
	snap := snapshot(
		dist(t, emotion.FaceLabels, 2, 0, 0, 0, 0, 0, 0),
		hot(t, emotion.AudioLabels, "angry"),
		hot(t, emotion.TextLabels, "anger"),
	)
	res, err := Fuse(snap, DefaultWeights(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Confidence()-1) > eps {
		t.Errorf("confidence = %f, want 1", res.Confidence())
	}
}

func TestNewEngine_NormalizesWeights(t *testing.T) {
	e, err := NewEngine(Weights{emotion.Face: 2, emotion.Audio: 1, emotion.Text: 1}, emotion.DefaultRegistry())
	if err != nil {
		t.Fatal(err)
	}
	w := e.Weights()
	if w[emotion.Face] != 0.5 || w[emotion.Audio] != 0.25 || w[emotion.Text] != 0.25 {
		t.Errorf("normalized weights = %v", w)
	}

	snap := snapshot(hot(t, emotion.FaceLabels, "sad"), hot(t, emotion.AudioLabels, "happy"), hot(t, emotion.TextLabels, "joy"))
	res, err := e.Fuse(snap)
	if err != nil {
		t.Fatal(err)
	}
	if res.Dominant() != "happy" || res.Contribution()[emotion.Face] != 50 {
		t.Errorf("unexpected result %s %v", res.Dominant(), res.Contribution())
	}
}

func TestWeights_Validate(t *testing.T) {
	tests := []struct {
		name string
		w    Weights
	}{
		{"zero total", Weights{emotion.Face: 0, emotion.Audio: 0, emotion.Text: 0}},
		{"negative", Weights{emotion.Face: -1, emotion.Audio: 1, emotion.Text: 1}},
		{"missing text", Weights{emotion.Face: 0.5, emotion.Audio: 0.5}},
		{"nan", Weights{emotion.Face: math.NaN(), emotion.Audio: 1, emotion.Text: 1}},
		{"unknown modality", Weights{emotion.Face: 1, emotion.Audio: 1, emotion.Text: 1, "smell": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewEngine(tt.w, emotion.DefaultRegistry()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
