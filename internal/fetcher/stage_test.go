package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"vidscribe/internal/fetcher"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

type fakeFetcher struct {
	mu         sync.Mutex
	info       fetcher.ProbeResult
	probeErrs  []error
	subErrs    []error
	audioErrs  []error
	emptyAudio bool
	calls      []string
	onCall     func(op string)
}

func (f *fakeFetcher) next(op string, errs *[]error) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	var err error
	if len(*errs) > 0 {
		err = (*errs)[0]
		*errs = (*errs)[1:]
	}
	hook := f.onCall
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

func (f *fakeFetcher) Probe(_ context.Context, _ string, _ fetcher.Options) (fetcher.ProbeResult, error) {
	if err := f.next("probe", &f.probeErrs); err != nil {
		return fetcher.ProbeResult{}, err
	}
	return f.info, nil
}

func (f *fakeFetcher) FetchSubtitle(_ context.Context, _ string, track fetcher.Track, dir string, _ fetcher.Options, progress fetcher.ProgressFunc) (fetcher.SubtitleArtifact, error) {
	if err := f.next("subtitle", &f.subErrs); err != nil {
		return fetcher.SubtitleArtifact{}, err
	}
	path := filepath.Join(dir, "subtitle."+track.Language+".vtt")
	if err := os.WriteFile(path, []byte("WEBVTT\n"), 0o644); err != nil {
		return fetcher.SubtitleArtifact{}, err
	}
	progress(0.5)
	progress(1)
	return fetcher.SubtitleArtifact{Path: path, Ext: "vtt"}, nil
}

func (f *fakeFetcher) FetchAudio(_ context.Context, _, dir string, _ fetcher.Options, progress fetcher.ProgressFunc) (fetcher.AudioArtifact, error) {
	if err := f.next("audio", &f.audioErrs); err != nil {
		return fetcher.AudioArtifact{}, err
	}
	path := filepath.Join(dir, "audio.mp3")
	data := []byte("ID3")
	if f.emptyAudio {
		data = nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fetcher.AudioArtifact{}, err
	}
	progress(0.5)
	return fetcher.AudioArtifact{Path: path}, nil
}

func (f *fakeFetcher) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

func newRequest(t *testing.T) fetcher.Request {
	t.Helper()
	return fetcher.Request{
		URL:              "https://www.bilibili.com/video/BV1xx411c7mD",
		Platform:         "bilibili",
		Dir:              t.TempDir(),
		SubtitlesEnabled: true,
	}
}

func transient() error {
	return fmt.Errorf("%w: connection reset", services.ErrTransient)
}

func TestAcquirePrefersCaptionTrack(t *testing.T) {
	f := &fakeFetcher{info: fetcher.ProbeResult{Title: "Demo", Platform: "bilibili", Manual: []string{"en", "zh-Hans"}}}
	stage := fetcher.NewStage(f, logging.NewNop(), time.Millisecond)

	var reports []float64
	acq, err := stage.Acquire(context.Background(), newRequest(t), func(p float64) { reports = append(reports, p) })
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	sub, ok := acq.(fetcher.SubtitlePresent)
	if !ok {
		t.Fatalf("expected SubtitlePresent, got %T", acq)
	}
	if sub.Subtitle.Track.Language != "zh-Hans" || sub.Info.Title != "Demo" {
		t.Fatalf("unexpected acquisition %+v", sub)
	}
	if got := f.callLog(); !slices.Equal(got, []string{"probe", "subtitle"}) {
		t.Fatalf("unexpected calls %v", got)
	}
	if !slices.IsSorted(reports) || reports[len(reports)-1] != 1 {
		t.Fatalf("progress should rise to 1, got %v", reports)
	}
}

func TestAcquireFallsBackToAudio(t *testing.T) {
	tests := []struct {
		name       string
		fetcher    *fakeFetcher
		mutate     func(*fetcher.Request)
		wantCalls  []string
		wantReason string
	}{
		{
			name:       "no captions",
			fetcher:    &fakeFetcher{info: fetcher.ProbeResult{Title: "Demo"}},
			wantCalls:  []string{"probe", "audio"},
			wantReason: "no caption tracks",
		},
		{
			name:       "forced",
			fetcher:    &fakeFetcher{info: fetcher.ProbeResult{Manual: []string{"en"}}},
			mutate:     func(r *fetcher.Request) { r.ForceAudio = true },
			wantCalls:  []string{"audio"},
			wantReason: "speech recognition forced",
		},
		{
			name:       "subtitles disabled",
			fetcher:    &fakeFetcher{info: fetcher.ProbeResult{Manual: []string{"en"}}},
			mutate:     func(r *fetcher.Request) { r.SubtitlesEnabled = false },
			wantCalls:  []string{"audio"},
			wantReason: "subtitles disabled",
		},
		{
			name:    "language mismatch",
			fetcher: &fakeFetcher{info: fetcher.ProbeResult{Manual: []string{"en"}}},
			mutate: func(r *fetcher.Request) {
				r.Selection = fetcher.Selection{Requested: "ja", Mismatch: fetcher.ForceASR}
			},
			wantCalls:  []string{"probe", "audio"},
			wantReason: "no caption track in requested language ja",
		},
		{
			name: "caption download fails",
			fetcher: &fakeFetcher{
				info:    fetcher.ProbeResult{Manual: []string{"en"}},
				subErrs: []error{fmt.Errorf("%w: boom", services.ErrExternalTool)},
			},
			wantCalls:  []string{"probe", "subtitle", "audio"},
			wantReason: "caption download failed",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(t)
			if tt.mutate != nil {
				tt.mutate(&req)
			}
			stage := fetcher.NewStage(tt.fetcher, logging.NewNop(), time.Millisecond)
			acq, err := stage.Acquire(context.Background(), req, nil)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			audio, ok := acq.(fetcher.AudioOnly)
			if !ok {
				t.Fatalf("expected AudioOnly, got %T", acq)
			}
			if audio.Reason != tt.wantReason {
				t.Fatalf("reason = %q, want %q", audio.Reason, tt.wantReason)
			}
			if filepath.Dir(audio.Audio.Path) != req.Dir {
				t.Fatalf("audio written outside request dir: %s", audio.Audio.Path)
			}
			if got := tt.fetcher.callLog(); !slices.Equal(got, tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestAcquireRetriesTransientFailureOnce(t *testing.T) {
	f := &fakeFetcher{
		info:      fetcher.ProbeResult{Title: "Demo"},
		probeErrs: []error{transient()},
	}
	stage := fetcher.NewStage(f, logging.NewNop(), time.Millisecond)
	if _, err := stage.Acquire(context.Background(), newRequest(t), nil); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got := f.callLog(); !slices.Equal(got, []string{"probe", "probe", "audio"}) {
		t.Fatalf("unexpected calls %v", got)
	}
}

func TestAcquireFailureClassification(t *testing.T) {
	tests := []struct {
		name      string
		fetcher   *fakeFetcher
		wantClass error
		wantCalls []string
	}{
		{
			name:      "auth is not retried",
			fetcher:   &fakeFetcher{probeErrs: []error{fmt.Errorf("%w: sign in", services.ErrAuth)}},
			wantClass: services.ErrAuth,
			wantCalls: []string{"probe"},
		},
		{
			name:      "transient twice",
			fetcher:   &fakeFetcher{probeErrs: []error{transient(), transient()}},
			wantClass: services.ErrTransient,
			wantCalls: []string{"probe", "probe"},
		},
		{
			name: "audio timeout twice",
			fetcher: &fakeFetcher{
				info: fetcher.ProbeResult{Title: "Demo"},
				audioErrs: []error{
					fmt.Errorf("%w: slow", services.ErrTimeout),
					fmt.Errorf("%w: slow", services.ErrTimeout),
				},
			},
			wantClass: services.ErrTimeout,
			wantCalls: []string{"probe", "audio", "audio"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage := fetcher.NewStage(tt.fetcher, logging.NewNop(), time.Millisecond)
			_, err := stage.Acquire(context.Background(), newRequest(t), nil)
			if !errors.Is(err, services.ErrAcquisitionFailed) || !errors.Is(err, tt.wantClass) {
				t.Fatalf("expected acquisition failure wrapping %v, got %v", tt.wantClass, err)
			}
			if services.KindOf(err) != services.KindAcquisitionFailed {
				t.Fatalf("unexpected kind %q", services.KindOf(err))
			}
			if got := tt.fetcher.callLog(); !slices.Equal(got, tt.wantCalls) {
				t.Fatalf("calls = %v, want %v", got, tt.wantCalls)
			}
		})
	}
}

func TestAcquireNeitherAvailable(t *testing.T) {
	f := &fakeFetcher{
		info:      fetcher.ProbeResult{Title: "Slides only"},
		audioErrs: []error{fmt.Errorf("%w: requested format is not available", services.ErrNotFound)},
	}
	stage := fetcher.NewStage(f, logging.NewNop(), time.Millisecond)
	acq, err := stage.Acquire(context.Background(), newRequest(t), nil)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	neither, ok := acq.(fetcher.NeitherAvailable)
	if !ok {
		t.Fatalf("expected NeitherAvailable, got %T", acq)
	}
	if neither.Reason != "no caption tracks; no audio stream" {
		t.Fatalf("unexpected reason %q", neither.Reason)
	}
}

func TestFetchAudioRejectsEmptyFile(t *testing.T) {
	f := &fakeFetcher{emptyAudio: true}
	stage := fetcher.NewStage(f, logging.NewNop(), time.Millisecond)
	_, err := stage.FetchAudio(context.Background(), newRequest(t), nil)
	if !errors.Is(err, services.ErrAcquisitionFailed) {
		t.Fatalf("expected acquisition failure, got %v", err)
	}
}

func TestAcquireCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := &fakeFetcher{
		probeErrs: []error{transient()},
		onCall:    func(string) { cancel() },
	}
	stage := fetcher.NewStage(f, logging.NewNop(), time.Hour)

	done := make(chan error, 1)
	go func() {
		_, err := stage.Acquire(ctx, newRequest(t), nil)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, services.ErrCancelled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Acquire did not observe cancellation")
	}
}
