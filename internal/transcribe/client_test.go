package transcribe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribe_UploadsFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcribe" {
			t.Errorf("expected /transcribe, got %s", r.URL.Path)
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "clip.wav" || string(data) != "RIFF....WAVE" {
			t.Errorf("unexpected upload %s: %q", hdr.Filename, data)
		}
		json.NewEncoder(w).Encode(response{Text: " I am fine thanks "})
	}))
	defer server.Close()

	got := NewClient(server.URL, discardLogger()).Transcribe(context.Background(), writeWAV(t))
	if got != "I am fine thanks" {
		t.Errorf("expected transcript, got %q", got)
	}
}

func TestTranscribe_JoinsSegments(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response{Segments: []Segment{
			{Start: 0, End: 1.2, Text: "not great"},
			{Start: 1.2, End: 2, Text: " "},
			{Start: 2, End: 3.5, Text: "honestly"},
		}})
	}))
	defer server.Close()

	got := NewClient(server.URL, discardLogger()).Transcribe(context.Background(), writeWAV(t))
	if got != "not great honestly" {
		t.Errorf("got %q", got)
	}
}

func TestTranscribe_FailuresYieldEmpty(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "could not understand audio", http.StatusUnprocessableEntity)
	}))
	defer failing.Close()

	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer garbage.Close()

	wav := writeWAV(t)
	tests := []struct {
		name string
		url  string
		path string
	}{
		{"service error", failing.URL, wav},
		{"bad body", garbage.URL, wav},
		{"missing file", failing.URL, filepath.Join(t.TempDir(), "gone.wav")},
		{"unreachable", "http://127.0.0.1:1", wav},
		{"unconfigured", "", wav},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewClient(tt.url, discardLogger()).Transcribe(context.Background(), tt.path); got != "" {
				t.Errorf("expected empty transcript, got %q", got)
			}
		})
	}
}
