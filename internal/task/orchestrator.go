package task

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"vidscribe/internal/asr"
	"vidscribe/internal/fetcher"
	"vidscribe/internal/logging"
	"vidscribe/internal/queue"
	"vidscribe/internal/subtitles"
)

// Acquirer obtains a caption track or audio for a URL.
type Acquirer interface {
	Acquire(ctx context.Context, req fetcher.Request, progress fetcher.ProgressFunc) (fetcher.Acquisition, error)
	FetchAudio(ctx context.Context, req fetcher.Request, progress fetcher.ProgressFunc) (fetcher.AudioArtifact, error)
}

// Transcriber turns audio into segments.
type Transcriber interface {
	Transcribe(ctx context.Context, req asr.Request, progress asr.ProgressFunc) ([]subtitles.Segment, error)
}

// Recorder persists terminal results.
type Recorder interface {
	Record(ctx context.Context, rec queue.Record) error
}

// Dependencies are the collaborators an Orchestrator drives.
type Dependencies struct {
	Acquirer    Acquirer
	Transcriber Transcriber
	// History is optional.
	History Recorder
	// WorkDir holds one scratch directory per task.
	WorkDir       string
	KeepWorkFiles bool
	Logger        *slog.Logger
}

// ErrClosed is returned by Submit after Close.
var ErrClosed = errors.New("orchestrator closed")

// Orchestrator runs tasks. It is safe for concurrent use; each task runs on
// its own goroutine when submitted.
type Orchestrator struct {
	deps   Dependencies
	logger *slog.Logger
	newID  func() string

	mu      sync.Mutex
	closed  bool
	active  map[string]*Task
	results map[string]Result
	wg      sync.WaitGroup
}

// New builds an Orchestrator.
func New(deps Dependencies) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Orchestrator{
		deps:    deps,
		logger:  logging.NewComponentLogger(deps.Logger, "orchestrator"),
		newID:   uuid.NewString,
		active:  make(map[string]*Task),
		results: make(map[string]Result),
	}
}

// Submit starts req on a new goroutine and returns its Task. Cancelling ctx
// cancels the task.
func (o *Orchestrator) Submit(ctx context.Context, req Request) (*Task, error) {
	t, err := o.register(ctx, req)
	if err != nil {
		return nil, err
	}
	go func() {
		defer o.wg.Done()
		o.execute(t)
	}()
	return t, nil
}

// Run executes req on the calling goroutine and returns its terminal result.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	t, err := o.register(ctx, req)
	if err != nil {
		return Result{}, err
	}
	defer o.wg.Done()
	return o.execute(t), nil
}

func (o *Orchestrator) register(ctx context.Context, req Request) (*Task, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	t := newTask(ctx, o.newID(), req)
	t.onTerminal = o.retain
	o.active[t.id] = t
	o.wg.Add(1)
	return t, nil
}

// Get returns an in-flight task.
func (o *Orchestrator) Get(id string) (*Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	t, ok := o.active[id]
	return t, ok
}

// Active lists in-flight task ids in sorted order.
func (o *Orchestrator) Active() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Result returns the terminal result for id and releases it. Only the most
// recent terminal result per id is retained, and only until retrieved.
func (o *Orchestrator) Result(id string) (Result, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, ok := o.results[id]
	if ok {
		delete(o.results, id)
	}
	return res, ok
}

// Release drops a retained terminal result without returning it.
func (o *Orchestrator) Release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.results, id)
}

// Cancel requests cancellation of an in-flight task. It reports whether the
// task was found.
func (o *Orchestrator) Cancel(id string) bool {
	t, ok := o.Get(id)
	if ok {
		t.Cancel()
	}
	return ok
}

// Close cancels every in-flight task, waits for them to finish and rejects
// further submissions.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	tasks := make([]*Task, 0, len(o.active))
	for _, t := range o.active {
		tasks = append(tasks, t)
	}
	o.mu.Unlock()
	for _, t := range tasks {
		t.Cancel()
	}
	o.wg.Wait()
}

func (o *Orchestrator) retain(res Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, res.TaskID)
	o.results[res.TaskID] = res
}

func (o *Orchestrator) record(t *Task, res Result) {
	if o.deps.History == nil {
		return
	}
	outcome, ok := queue.ParseOutcome(string(res.State))
	if !ok {
		return
	}
	rec := queue.Record{
		TaskID:       res.TaskID,
		URL:          res.URL,
		Title:        res.Title,
		Outcome:      outcome,
		OutputPath:   res.OutputPath,
		ErrorKind:    string(res.Kind),
		ErrorMessage: strings.TrimSpace(res.Message()),
		Format:       t.opts.OutputFormat,
		Model:        t.opts.ModelSize,
		PathUsed:     res.PathUsed,
		StartedAt:    res.StartedAt,
		FinishedAt:   res.FinishedAt,
	}
	if err := o.deps.History.Record(context.WithoutCancel(t.ctx), rec); err != nil {
		logging.WarnIssue(logging.WithContext(t.ctx, o.logger), "failed to record task history", logging.Issue{
			Event:  "history_write_failed",
			Hint:   "check history.db_path permissions",
			Impact: "task is missing from `vidscribe history`",
			Err:    err,
		})
	}
}
