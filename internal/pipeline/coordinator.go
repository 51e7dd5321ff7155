package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/empath/internal/capture"
	"github.com/MikeSquared-Agency/empath/internal/classifier"
	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

var (
	ErrNotRunning   = errors.New("pipeline coordinator is not running")
	ErrThrottled    = errors.New("face frame dropped: previous prediction too recent")
	ErrEmptyText    = errors.New("please enter some text")
	ErrInvalidInput = errors.New("invalid input")
)

// Transcriber turns a recording into text; failures yield "".
type Transcriber interface {
	Transcribe(ctx context.Context, path string) string
}

// Classifiers holds one model handle per modality.
type Classifiers struct {
	Face  classifier.Classifier
	Audio classifier.Classifier
	Text  classifier.Classifier
}

func (c Classifiers) For(m emotion.Modality) classifier.Classifier {
	switch m {
	case emotion.Face:
		return c.Face
	case emotion.Audio:
		return c.Audio
	case emotion.Text:
		return c.Text
	}
	return nil
}

// Observer is called on the coordinator goroutine after every slot write.
// It must not block.
type Observer func(Outcome)

// completion is one result handed to the coordinator. A transcript
// completion only updates the transcript of the existing slot. after runs on
// the coordinator once the store is written, before task completes.
type completion struct {
	task       *Task
	slot       slots.Slot
	err        error
	transcript bool
	pending    bool
	after      func()
}

// Coordinator runs classifier calls on worker goroutines and is the only
// writer of the slot store. Workers hand their results over a single
// unbuffered channel consumed by the coordinator goroutine.
type Coordinator struct {
	store        *slots.Store
	models       Classifiers
	transcriber  Transcriber
	recorder     *capture.Recorder
	faceInterval time.Duration
	logger       *slog.Logger
	now          func() time.Time

	results chan completion

	mu        sync.Mutex
	runCtx    context.Context
	lastFace  time.Time
	observers []Observer
}

func New(store *slots.Store, models Classifiers, tr Transcriber, rec *capture.Recorder, faceInterval time.Duration, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		store:        store,
		models:       models,
		transcriber:  tr,
		recorder:     rec,
		faceInterval: faceInterval,
		logger:       logger,
		now:          time.Now,
		results:      make(chan completion),
	}
}

// OnUpdate registers an observer. Register before Start.
func (c *Coordinator) OnUpdate(o Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, o)
	c.mu.Unlock()
}

// Start launches the coordinator goroutine, which consumes completions until
// ctx ends. Submissions are accepted as soon as Start returns.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()

	c.logger.Info("pipeline coordinator started")
	go c.run(ctx)
}

func (c *Coordinator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.runCtx = nil
			c.mu.Unlock()
			c.logger.Info("pipeline coordinator stopped")
			return
		case done := <-c.results:
			c.apply(done)
		}
	}
}

func (c *Coordinator) apply(done completion) {
	var written slots.Slot
	var err error
	if done.transcript {
		written, err = c.store.SetTranscript(done.slot.Modality, done.slot.Transcript)
	} else {
		written, err = c.store.Set(done.slot)
	}
	if done.after != nil {
		done.after()
	}
	if err != nil {
		c.logger.Error("failed to write slot", "modality", done.slot.Modality, "error", err)
		if done.task != nil {
			done.task.complete(Outcome{Slot: done.slot, Err: err})
		}
		return
	}

	out := Outcome{Slot: written, Err: done.err, Pending: done.pending}
	if done.task != nil {
		done.task.complete(out)
	}

	c.mu.Lock()
	observers := c.observers
	c.mu.Unlock()
	for _, o := range observers {
		o(out)
	}
}

// Snapshot reads all slots in one critical section.
func (c *Coordinator) Snapshot() slots.Snapshot {
	return c.store.Snapshot()
}

func (c *Coordinator) Recording() bool {
	return c.recorder.InFlight()
}

// Models exposes the injected classifiers, e.g. for status reporting.
func (c *Coordinator) Models() Classifiers { return c.models }

// SubmitFace predicts on one 48x48 grayscale frame. Frames arriving within
// the face interval of the previous accepted frame are dropped.
func (c *Coordinator) SubmitFace(img []byte) (*Task, error) {
	if err := classifier.ValidateFaceImage(img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	ctx, err := c.context()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	now := c.now()
	if !c.lastFace.IsZero() && now.Sub(c.lastFace) < c.faceInterval {
		c.mu.Unlock()
		return nil, ErrThrottled
	}
	c.lastFace = now
	c.mu.Unlock()

	frame := append([]byte(nil), img...)
	return c.spawn(ctx, func(ctx context.Context) (slots.Slot, error) {
		return c.predict(ctx, emotion.Face, classifier.Input{Image: frame})
	}), nil
}

// SubmitAudio takes ownership of one WAV recording, predicts on it, then
// transcribes it. The audio slot is written as soon as the prediction
// returns; the transcript follows in a second write. The task completes, and
// the temp file is released, once both are done.
func (c *Coordinator) SubmitAudio(wav []byte) (*Task, error) {
	ctx, err := c.context()
	if err != nil {
		return nil, err
	}
	rec, err := c.recorder.Acquire(wav)
	if err != nil {
		return nil, err
	}

	release := func() {
		if err := rec.Release(); err != nil {
			c.logger.Warn("failed to release recording", "recording", rec.ID, "error", err)
		}
	}

	task := newTask()
	go func() {
		defer release()

		slot, predErr := c.predict(ctx, emotion.Audio, classifier.Input{AudioPath: rec.Path})
		if !c.post(ctx, completion{slot: slot, err: predErr, pending: true}) {
			task.complete(Outcome{Slot: slot, Err: ctx.Err()})
			return
		}

		transcript := c.transcriber.Transcribe(ctx, rec.Path)
		c.logger.Debug("audio cycle finished", "recording", rec.ID, "duration", rec.Duration, "transcript_len", len(transcript))
		done := completion{
			task:       task,
			slot:       slots.Slot{Modality: emotion.Audio, Transcript: transcript},
			err:        predErr,
			transcript: true,
			after:      release,
		}
		if !c.post(ctx, done) {
			slot.Transcript = transcript
			task.complete(Outcome{Slot: slot, Err: ctx.Err()})
		}
	}()
	return task, nil
}

// SubmitText classifies typed text. Blank input is rejected.
func (c *Coordinator) SubmitText(text string) (*Task, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	ctx, err := c.context()
	if err != nil {
		return nil, err
	}
	return c.spawn(ctx, func(ctx context.Context) (slots.Slot, error) {
		return c.predict(ctx, emotion.Text, classifier.Input{Text: text})
	}), nil
}

func (c *Coordinator) context() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx == nil || c.runCtx.Err() != nil {
		return nil, ErrNotRunning
	}
	return c.runCtx, nil
}

func (c *Coordinator) spawn(ctx context.Context, work func(context.Context) (slots.Slot, error)) *Task {
	task := newTask()
	go func() {
		slot, err := work(ctx)
		if !c.post(ctx, completion{task: task, slot: slot, err: err}) {
			task.complete(Outcome{Slot: slot, Err: ctx.Err()})
		}
	}()
	return task
}

// post hands a completion to the coordinator. It reports false when the
// coordinator stopped first.
func (c *Coordinator) post(ctx context.Context, done completion) bool {
	select {
	case c.results <- done:
		return true
	case <-ctx.Done():
		return false
	}
}

// predict never fails the pipeline: errors become sentinel slots.
func (c *Coordinator) predict(ctx context.Context, m emotion.Modality, in classifier.Input) (slots.Slot, error) {
	model := c.models.For(m)
	if model == nil {
		model = classifier.NewUnavailable(m, "no classifier injected")
	}

	pred, err := model.Predict(ctx, in)
	if err != nil {
		sentinel := slots.SentinelError
		if errors.Is(err, classifier.ErrUnavailable) {
			sentinel = slots.SentinelUnavailable
		}
		c.logger.Warn("prediction failed", "modality", m, "sentinel", sentinel, "error", err)
		return slots.Slot{Modality: m, Label: sentinel.Label(), Sentinel: sentinel}, err
	}

	c.logger.Info("prediction complete", "modality", m, "label", pred.Label)
	return slots.Slot{Modality: m, Label: pred.Label, Distribution: pred.Distribution}, nil
}
