package task

import (
	"context"
	"sync"
	"time"

	"vidscribe/internal/queue"
	"vidscribe/internal/services"
)

// eventBuffer bounds the events one task can emit: progress only moves
// forward through 101 integer values and there are at most seven state
// changes, so sends never block.
const eventBuffer = 128

// Request is one transcription request.
type Request struct {
	URL     string
	Options Options
}

// Event is one progress notification.
type Event struct {
	TaskID   string
	State    State
	Progress int
	Message  string
	At       time.Time
}

// Result is the terminal outcome of a task. Exactly one of OutputPath, Err
// (with Kind) or a Cancelled state is meaningful.
type Result struct {
	TaskID     string
	URL        string
	Title      string
	State      State
	OutputPath string
	PathUsed   queue.PathUsed
	Segments   int
	Kind       services.Kind
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// OK reports whether the task produced an artifact.
func (r Result) OK() bool { return r.State == StateDone && r.Err == nil }

// Message is the caller-facing error description, empty on success.
func (r Result) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Task is one request moving through the pipeline.
type Task struct {
	id      string
	rawURL  string
	opts    Options
	created time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	url             string
	state           State
	progress        int
	cancelRequested bool
	events          chan Event
	result          Result
	done            chan struct{}
	// onTerminal runs under the task lock just before Done is closed.
	onTerminal      func(Result)
}

func newTask(parent context.Context, id string, req Request) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{
		id:      id,
		rawURL:  req.URL,
		opts:    req.Options,
		created: time.Now(),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateQueued,
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// ID returns the task identifier.
func (t *Task) ID() string { return t.id }

// URL returns the normalized source URL once known, else the raw input.
func (t *Task) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.url != "" {
		return t.url
	}
	return t.rawURL
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns the current overall progress in percent.
func (t *Task) Progress() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Events delivers progress notifications. The channel is closed after the
// terminal event.
func (t *Task) Events() <-chan Event { return t.events }

// Done is closed once the task reaches a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Cancel requests cooperative cancellation. Only the first call has any
// effect and calls after the task finished are ignored.
func (t *Task) Cancel() {
	t.mu.Lock()
	if t.cancelRequested || t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	t.cancelRequested = true
	t.mu.Unlock()
	t.cancel()
}

// CancelRequested reports whether Cancel was called or the parent context ended.
func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelRequested || t.ctx.Err() != nil
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Result, error) {
	select {
	case <-t.done:
		return t.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Result returns the terminal result, or a zero Result while running.
func (t *Task) Result() Result {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// advance moves to state to. It returns false when the move is illegal or
// cancellation was requested, in which case the caller must stop.
func (t *Task) advance(to State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelRequested || t.ctx.Err() != nil || !canTransition(t.state, to) {
		return false
	}
	t.state = to
	if to == StateTranscribing || to == StateFormatting {
		t.progress = max(t.progress, transcribeStart)
	}
	t.emitLocked("")
	return true
}

// report sets progress to percent when it moves forward. Reports outside
// the active band are clamped into it.
func (t *Task) report(percent, lo, hi int) bool {
	percent = min(max(percent, lo), hi)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.Terminal() || percent <= t.progress {
		return false
	}
	t.progress = percent
	t.emitLocked("")
	return true
}

// finish records the terminal result, emits the final event and closes the
// channel. A successful result is checked against cancellation under the
// task lock: a Cancel that arrived first turns it into Cancelled and runs
// rollback, one that arrives later is ignored.
func (t *Task) finish(res Result, rollback func()) Result {
	t.mu.Lock()
	if t.state.Terminal() {
		res = t.result
		t.mu.Unlock()
		return res
	}
	if res.State == StateDone && (t.cancelRequested || t.ctx.Err() != nil) {
		if rollback != nil {
			rollback()
		}
		res = Result{
			TaskID:    res.TaskID,
			URL:       res.URL,
			Title:     res.Title,
			State:     StateCancelled,
			Kind:      services.KindCancelled,
			Err:       services.Wrap(services.ErrCancelled, string(t.state), "finish", "cancelled before completion", context.Canceled),
			StartedAt: res.StartedAt,
		}
	}
	res.FinishedAt = time.Now()
	t.state = res.State
	message := res.Message()
	if res.State == StateDone {
		t.progress = complete
		message = res.OutputPath
	}
	t.result = res
	if t.onTerminal != nil {
		t.onTerminal(res)
	}
	t.emitLocked(message)
	close(t.events)
	close(t.done)
	t.mu.Unlock()
	t.cancel()
	return res
}

func (t *Task) emitLocked(message string) {
	t.events <- Event{TaskID: t.id, State: t.state, Progress: t.progress, Message: message, At: time.Now()}
}
