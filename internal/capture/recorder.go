package capture

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Recording format: 16 kHz mono 16-bit PCM in a canonical WAV container.
const (
	SampleRate     = 16000
	BytesPerSample = 2
	WAVHeaderSize  = 44
)

var (
	ErrRecordingInFlight = errors.New("a recording is already being analysed")
	ErrEmptyRecording    = errors.New("recording is empty")
	ErrNotWAV            = errors.New("recording is not a WAV file")
	ErrRecordingTooLong  = errors.New("recording exceeds the maximum duration")
)

// Recorder serialises recordings: at most one temp file exists at a time and
// the next Acquire is refused until the current Recording is released.
type Recorder struct {
	dir      string
	maxBytes int

	mu     sync.Mutex
	active *Recording
}

func NewRecorder(dir string, maxDuration time.Duration) *Recorder {
	if dir == "" {
		dir = os.TempDir()
	}
	samples := int(maxDuration.Seconds() * SampleRate)
	return &Recorder{
		dir:      dir,
		maxBytes: WAVHeaderSize + samples*BytesPerSample,
	}
}

// Recording owns one temp WAV file until Release.
type Recording struct {
	ID        uuid.UUID
	Path      string
	Duration  time.Duration
	CreatedAt time.Time

	rec  *Recorder
	once sync.Once
}

// Acquire validates data, writes it to a temp file and leases it to the
// caller.
func (r *Recorder) Acquire(data []byte) (*Recording, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecording
	}
	if len(data) < WAVHeaderSize || !bytes.Equal(data[0:4], []byte("RIFF")) || !bytes.Equal(data[8:12], []byte("WAVE")) {
		return nil, ErrNotWAV
	}
	if len(data) > r.maxBytes {
		return nil, fmt.Errorf("%w (%s)", ErrRecordingTooLong, duration(len(data)).Round(time.Millisecond))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrRecordingInFlight
	}

	id := uuid.New()
	path := filepath.Join(r.dir, "empath-"+id.String()+".wav")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write recording: %w", err)
	}

	rec := &Recording{
		ID:        id,
		Path:      path,
		Duration:  duration(len(data)),
		CreatedAt: time.Now().UTC(),
		rec:       r,
	}
	r.active = rec
	return rec, nil
}

// Release deletes the temp file and frees the recorder. Safe to call more
// than once.
func (rec *Recording) Release() error {
	var err error
	rec.once.Do(func() {
		if rmErr := os.Remove(rec.Path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = fmt.Errorf("remove recording: %w", rmErr)
		}
		rec.rec.mu.Lock()
		if rec.rec.active == rec {
			rec.rec.active = nil
		}
		rec.rec.mu.Unlock()
	})
	return err
}

// InFlight reports whether a recording is currently leased.
func (r *Recorder) InFlight() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func duration(n int) time.Duration {
	samples := max(n-WAVHeaderSize, 0) / BytesPerSample
	return time.Duration(samples) * time.Second / SampleRate
}
