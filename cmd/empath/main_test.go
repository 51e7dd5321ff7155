package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runWithProfile(t, "", args...)
}

// runWithProfile executes the CLI with EMPATH_FUSION_PROFILE set to profile.
func runWithProfile(t *testing.T, profile string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("EMPATH_FUSION_PROFILE", profile)
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

const angrySnapshot = `{
  "face":  {"label": "angry", "distribution": {"labels": ["angry","disgust","fear","happy","neutral","sad","surprise"], "probs": [1,0,0,0,0,0,0]}, "updated_at": "2026-01-01T12:00:00Z"},
  "audio": {"label": "angry", "distribution": {"labels": ["angry","disgust","fear","happy","neutral","sad","surprise"], "probs": [1,0,0,0,0,0,0]}, "updated_at": "2026-01-01T12:00:01Z"},
  "text":  {"label": "joy", "distribution": {"labels": ["anger","joy","sadness","fear","love","surprise"], "probs": [0,1,0,0,0,0]}, "updated_at": "2026-01-01T12:00:02Z"}
}`

func TestFuseCommand(t *testing.T) {
	path := writeFile(t, "snapshot.json", angrySnapshot)

	out, err := run(t, "fuse", path)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	for _, want := range []string{
		"Angry (Confidence: 65.0%)",
		"Combined Emotion: Angry 😡",
		"Face Contribution: 50%",
		"Audio Contribution: 15%",
		"Text Contribution: 35%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFuseCommand_Profile(t *testing.T) {
	snapshot := writeFile(t, "snapshot.json", angrySnapshot)
	profile := writeFile(t, "profile.yaml", "weights:\n  face: 0.2\n  audio: 0.2\n  text: 0.6\n")

	out, err := run(t, "fuse", "--profile", profile, snapshot)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	if !strings.Contains(out, "Happy (Confidence: 60.0%)") {
		t.Errorf("profile weights not applied:\n%s", out)
	}
}

func TestFuseCommand_ProfileFromEnvironment(t *testing.T) {
	snapshot := writeFile(t, "snapshot.json", angrySnapshot)
	profile := writeFile(t, "profile.yaml", "weights:\n  face: 0.2\n  audio: 0.2\n  text: 0.6\nicons:\n  happy: \"🙂\"\n")

	out, err := runWithProfile(t, profile, "fuse", snapshot)
	if err != nil {
		t.Fatalf("fuse failed: %v", err)
	}
	if !strings.Contains(out, "Combined Emotion: Happy 🙂") {
		t.Errorf("profile from environment not applied:\n%s", out)
	}

	// the flag wins over the environment
	if _, err := runWithProfile(t, filepath.Join(t.TempDir(), "missing.yaml"), "fuse", "--profile", profile, snapshot); err != nil {
		t.Errorf("--profile should override the environment: %v", err)
	}
}

func TestFuseCommand_Refusals(t *testing.T) {
	tests := []struct {
		name     string
		snapshot string
		want     string
	}{
		{"incomplete", `{"face": {"label": "angry"}}`, "audio"},
		{"malformed", `{
  "face":  {"distribution": {"labels": ["angry","disgust","fear","happy","neutral","sad","surprise"], "probs": [1,0,0,0,0,0,0]}},
  "audio": {"distribution": {"labels": ["angry","disgust","fear","happy","neutral","sad","surprise"], "probs": [-0.5,1.5,0,0,0,0,0]}},
  "text":  {"distribution": {"labels": ["anger","joy","sadness","fear","love","surprise"], "probs": [0,1,0,0,0,0]}}
}`, "audio"},
		{"not json", `{`, "parse snapshot"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, "fuse", writeFile(t, "snapshot.json", tt.snapshot))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestVocabCommand(t *testing.T) {
	out, err := run(t, "vocab")
	if err != nil {
		t.Fatalf("vocab failed: %v", err)
	}
	for _, want := range []string{"MODALITY", "love", "text never predicts: disgust, neutral"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
