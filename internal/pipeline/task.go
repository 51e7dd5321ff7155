package pipeline

import (
	"context"

	"github.com/MikeSquared-Agency/empath/internal/slots"
)

// Outcome is what one prediction cycle wrote to its slot. Err is the
// prediction failure behind a sentinel slot, if any. Pending marks a write
// that a follow-up write for the same cycle will amend, such as an audio
// prediction still waiting for its transcript.
type Outcome struct {
	Slot    slots.Slot
	Err     error
	Pending bool
}

// Task is the future for one submitted prediction. It completes after the
// coordinator has written the slot.
type Task struct {
	done    chan struct{}
	outcome Outcome
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the slot is written or ctx ends. Abandoning the wait does
// not cancel the prediction.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (t *Task) complete(o Outcome) {
	t.outcome = o
	close(t.done)
}
