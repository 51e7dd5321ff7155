package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port          int
	NatsURL       string
	NatsToken     string
	DatabaseURL   string
	LogLevel      string
	FaceModelURL  string
	AudioModelURL string
	TextModelURL  string
	TranscribeURL string
	APIToken      string
	AudioDir      string
	ProfilePath   string
	FaceInterval  time.Duration
	RecordLimit   time.Duration
}

func Load() Config {
	return Config{
		Port:          envInt("EMPATH_PORT", 8760),
		NatsURL:       envStr("NATS_URL", "nats://hermes:4222"),
		NatsToken:     envStr("NATS_TOKEN", ""),
		DatabaseURL:   envStr("DATABASE_URL", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		FaceModelURL:  envStr("FACE_MODEL_URL", ""),
		AudioModelURL: envStr("AUDIO_MODEL_URL", ""),
		TextModelURL:  envStr("TEXT_MODEL_URL", ""),
		TranscribeURL: envStr("TRANSCRIBE_URL", ""),
		APIToken:      envStr("EMPATH_API_TOKEN", ""),
		AudioDir:      envStr("EMPATH_AUDIO_DIR", os.TempDir()),
		ProfilePath:   ProfilePath(),
		FaceInterval:  time.Duration(envInt("EMPATH_FACE_INTERVAL_MS", 800)) * time.Millisecond,
		RecordLimit:   time.Duration(envInt("EMPATH_RECORD_SECONDS", 4)) * time.Second,
	}
}

// ProfilePath is the fusion profile location alone, for commands that need
// nothing else from the environment.
func ProfilePath() string {
	return envStr("EMPATH_FUSION_PROFILE", "")
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
