package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MikeSquared-Agency/empath/internal/emotion"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPredict_Text(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/predict" {
			t.Errorf("expected /predict, got %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json, got %q", r.Header.Get("Content-Type"))
		}

		var req predictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if req.Text != "i feel great" {
			t.Errorf("expected text, got %q", req.Text)
		}
		if req.MaxLength != MaxTextTokens {
			t.Errorf("expected max_length %d, got %d", MaxTextTokens, req.MaxLength)
		}

		json.NewEncoder(w).Encode(predictResponse{
			Label:         "joy",
			Probabilities: []float64{0.05, 0.8, 0.05, 0.03, 0.05, 0.02},
		})
	}))
	defer server.Close()

	c := NewClient(emotion.Text, server.URL, emotion.TextLabels)
	pred, err := c.Predict(context.Background(), Input{Text: "  i feel   great "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.Label != "joy" {
		t.Errorf("expected joy, got %q", pred.Label)
	}
	if pred.Distribution.Prob("joy") != 0.8 {
		t.Errorf("expected joy=0.8, got %f", pred.Distribution.Prob("joy"))
	}
}

func TestPredict_FaceDerivesLabelFromArgmax(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Image) != FacePixels || req.Width != FaceSide || req.Height != FaceSide {
			t.Errorf("unexpected face payload: %d bytes %dx%d", len(req.Image), req.Width, req.Height)
		}
		json.NewEncoder(w).Encode(predictResponse{
			Labels:        emotion.FaceLabels,
			Probabilities: []float64{0, 0, 0.1, 0.1, 0.7, 0.1, 0},
		})
	}))
	defer server.Close()

	c := NewClient(emotion.Face, server.URL, emotion.FaceLabels)
	pred, err := c.Predict(context.Background(), Input{Image: make([]byte, FacePixels)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.Label != "neutral" {
		t.Errorf("expected neutral, got %q", pred.Label)
	}
}

func TestPredict_AudioSendsRecording(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "rec.wav")
	if err := os.WriteFile(wav, []byte("RIFFdata"), 0o600); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req predictRequest
		json.NewDecoder(r.Body).Decode(&req)
		if string(req.Audio) != "RIFFdata" || req.SampleRate != AudioSampleHz {
			t.Errorf("unexpected audio payload %q @ %d", req.Audio, req.SampleRate)
		}
		json.NewEncoder(w).Encode(predictResponse{Label: "sad", Probabilities: []float64{0, 0, 0, 0, 0, 1, 0}})
	}))
	defer server.Close()

	c := NewClient(emotion.Audio, server.URL, emotion.AudioLabels)
	pred, err := c.Predict(context.Background(), Input{AudioPath: wav})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pred.Label != "sad" {
		t.Errorf("expected sad, got %q", pred.Label)
	}
}

func TestPredict_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		wantErr string
	}{
		{"service error", http.StatusInternalServerError, errorResponse{Error: "cuda out of memory"}, "cuda out of memory"},
		{"wrong length", http.StatusOK, predictResponse{Label: "joy", Probabilities: []float64{1}}, "probabilities"},
		{"unknown label", http.StatusOK, predictResponse{Label: "bored", Probabilities: []float64{0, 1, 0, 0, 0, 0}}, "unknown label"},
		{"foreign vocabulary", http.StatusOK, predictResponse{Labels: emotion.FaceLabels[:6], Probabilities: []float64{0, 1, 0, 0, 0, 0}}, "do not match"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(tt.body)
			}))
			defer server.Close()

			c := NewClient(emotion.Text, server.URL, emotion.TextLabels)
			_, err := c.Predict(context.Background(), Input{Text: "hello"})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPredict_RejectsWrongFaceSize(t *testing.T) {
	c := NewClient(emotion.Face, "http://unused", emotion.FaceLabels)
	if _, err := c.Predict(context.Background(), Input{Image: make([]byte, 10)}); err == nil {
		t.Fatal("expected error for undersized frame")
	}
}

func TestLoad(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("expected /health, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	ctx := context.Background()
	logger := discardLogger()

	if c := Load(ctx, emotion.Face, healthy.URL, emotion.FaceLabels, logger); IsUnavailable(c) {
		t.Error("healthy service loaded as unavailable")
	}
	for name, url := range map[string]string{"unconfigured": "", "unhealthy": broken.URL} {
		c := Load(ctx, emotion.Audio, url, emotion.AudioLabels, logger)
		if !IsUnavailable(c) {
			t.Errorf("%s: expected Unavailable", name)
		}
		if c.Modality() != emotion.Audio {
			t.Errorf("%s: modality = %s", name, c.Modality())
		}
	}
}

func TestUnavailable_Predict(t *testing.T) {
	_, err := NewUnavailable(emotion.Text, "weights missing").Predict(context.Background(), Input{Text: "hi"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestTruncateTokens(t *testing.T) {
	long := strings.Repeat("word ", 200)
	got := TruncateTokens(long, MaxTextTokens)
	if n := len(strings.Fields(got)); n != MaxTextTokens {
		t.Errorf("expected %d tokens, got %d", MaxTextTokens, n)
	}
	if TruncateTokens("a b", 5) != "a b" {
		t.Error("short input should be unchanged")
	}
}
