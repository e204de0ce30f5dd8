package task_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vidscribe/internal/asr"
	"vidscribe/internal/fetcher"
	"vidscribe/internal/logging"
	"vidscribe/internal/queue"
	"vidscribe/internal/subtitles"
	"vidscribe/internal/task"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:02,500
Hello there

2
00:00:02,500 --> 00:00:04,000
Hello there

3
00:00:04,000 --> 00:00:06,000
<i>General</i> Kenobi
`

type acquireFunc func(ctx context.Context, req fetcher.Request, progress fetcher.ProgressFunc) (fetcher.Acquisition, error)

type fakeAcquirer struct {
	acquire    acquireFunc
	mu         sync.Mutex
	requests   []fetcher.Request
	audioCalls int
}

func (f *fakeAcquirer) Acquire(ctx context.Context, req fetcher.Request, progress fetcher.ProgressFunc) (fetcher.Acquisition, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return f.acquire(ctx, req, progress)
}

func (f *fakeAcquirer) FetchAudio(_ context.Context, req fetcher.Request, _ fetcher.ProgressFunc) (fetcher.AudioArtifact, error) {
	f.mu.Lock()
	f.audioCalls++
	f.mu.Unlock()
	return writeAudio(req.Dir)
}

func (f *fakeAcquirer) lastRequest() fetcher.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return fetcher.Request{}
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeAcquirer) audioCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.audioCalls
}

func writeAudio(dir string) (fetcher.AudioArtifact, error) {
	path := filepath.Join(dir, "audio.mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		return fetcher.AudioArtifact{}, err
	}
	return fetcher.AudioArtifact{Path: path}, nil
}

// subtitleAcquirer returns a caption track with the given body, or audio
// when ForceAudio is set.
func subtitleAcquirer(body string) *fakeAcquirer {
	return &fakeAcquirer{acquire: func(_ context.Context, req fetcher.Request, progress fetcher.ProgressFunc) (fetcher.Acquisition, error) {
		info := fetcher.ProbeResult{Title: "Demo: Talk", Manual: []string{"en"}}
		if req.ForceAudio {
			audio, err := writeAudio(req.Dir)
			if err != nil {
				return nil, err
			}
			progress(1)
			return fetcher.AudioOnly{Info: info, Audio: audio, Reason: "speech recognition forced"}, nil
		}
		path := filepath.Join(req.Dir, "subtitle.en.srt")
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			return nil, err
		}
		progress(0.3)
		progress(1)
		return fetcher.SubtitlePresent{Info: info, Subtitle: fetcher.SubtitleArtifact{Path: path, Track: fetcher.Track{Language: "en"}, Ext: "srt"}}, nil
	}}
}

// audioAcquirer always returns downloaded audio.
func audioAcquirer() *fakeAcquirer {
	return &fakeAcquirer{acquire: func(_ context.Context, req fetcher.Request, progress fetcher.ProgressFunc) (fetcher.Acquisition, error) {
		audio, err := writeAudio(req.Dir)
		if err != nil {
			return nil, err
		}
		for _, f := range []float64{0.1, 0.6, 0.4, 1} {
			progress(f)
		}
		return fetcher.AudioOnly{Info: fetcher.ProbeResult{Title: "Audio Only"}, Audio: audio, Reason: "no caption tracks"}, nil
	}}
}

type fakeModel struct {
	segs  []subtitles.Segment
	err   error
	calls atomic.Int32
}

func (m *fakeModel) ConcurrentSafe() bool { return true }

func (m *fakeModel) Transcribe(ctx context.Context, _ string, _ asr.Options, progress asr.ProgressFunc) ([]subtitles.Segment, error) {
	m.calls.Add(1)
	progress(0.25)
	progress(0.75)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.segs, m.err
}

type fakeLoader struct {
	model *fakeModel
	gate  chan struct{}
	start chan struct{}
	once  sync.Once
}

func (l *fakeLoader) Load(ctx context.Context, _ asr.ModelKey) (asr.Model, error) {
	if l.start != nil {
		l.once.Do(func() { close(l.start) })
	}
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return l.model, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []queue.Record
}

func (h *memoryHistory) Record(_ context.Context, rec queue.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memoryHistory) all() []queue.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]queue.Record(nil), h.records...)
}

type harness struct {
	orch     *task.Orchestrator
	cache    *asr.Cache
	model    *fakeModel
	loader   *fakeLoader
	acquirer *fakeAcquirer
	history  *memoryHistory
	workDir  string
	output   string
}

func cpuOnly() asr.Device { return asr.DeviceCPU }

func newHarness(t *testing.T, acquirer *fakeAcquirer, model *fakeModel, mutate ...func(*task.Dependencies)) *harness {
	t.Helper()
	base := t.TempDir()
	h := &harness{
		model:    model,
		loader:   &fakeLoader{model: model},
		acquirer: acquirer,
		history:  &memoryHistory{},
		workDir:  filepath.Join(base, "work"),
		output:   filepath.Join(base, "out"),
	}
	h.cache = asr.NewCache(h.loader, logging.NewNop(), asr.WithDeviceDetector(cpuOnly))
	deps := task.Dependencies{
		Acquirer:    acquirer,
		Transcriber: asr.NewStage(h.cache, logging.NewNop()),
		History:     h.history,
		WorkDir:     h.workDir,
		Logger:      logging.NewNop(),
	}
	for _, m := range mutate {
		m(&deps)
	}
	h.orch = task.New(deps)
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) options() task.Options {
	return task.Options{
		OutputFormat:     "srt",
		ModelSize:        "tiny",
		Device:           "cpu",
		Language:         "auto",
		OutputDir:        h.output,
		SubtitlesEnabled: true,
		WithTimestamps:   true,
	}
}

func collectEvents(t *testing.T, tk *task.Task) []task.Event {
	t.Helper()
	var events []task.Event
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-tk.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("event channel not closed; got %+v", events)
		}
	}
}

func outputFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read output dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func segs(texts ...string) []subtitles.Segment {
	out := make([]subtitles.Segment, 0, len(texts))
	for i, text := range texts {
		start := float64(i) * 1.5
		out = append(out, subtitles.Segment{Start: start, End: start + 1.5, Text: text})
	}
	return out
}
