package reuse

import (
	"context"

	"github.com/RishiKendai/palimpsest/internal/models"
)

// Task is a run executing in its own goroutine. Progress values arrive on Progress
// and the result is available once from Wait.
type Task struct {
	progress chan int
	done     chan struct{}
	result   *models.RunResult
	err      error
}

// Stream starts req in the background. hooks.Progress, if set, is still called.
func (e *Engine) Stream(ctx context.Context, req models.RunRequest, hooks Hooks) *Task {
	t := &Task{
		// the reporter emits each value at most once, so the buffer never fills
		progress: make(chan int, progressEventsBuffer),
		done:     make(chan struct{}),
	}

	publish := func(value int) {
		select {
		case t.progress <- value:
		default:
		}
	}
	hooks.Progress = Fanout(hooks.Progress, publish)

	go func() {
		defer close(t.done)
		defer close(t.progress)
		t.result, t.err = e.Run(ctx, req, hooks)
	}()

	return t
}

// Progress returns the progress channel, closed when the run ends
func (t *Task) Progress() <-chan int {
	return t.progress
}

// Done is closed when the run ends
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the run ends
func (t *Task) Wait() (*models.RunResult, error) {
	<-t.done
	return t.result, t.err
}
