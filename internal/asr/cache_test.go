package asr_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vidscribe/internal/asr"
	"vidscribe/internal/services"
	"vidscribe/internal/subtitles"
)

type fakeModel struct {
	segs   []subtitles.Segment
	safe   bool
	delay  time.Duration
	err    error
	active atomic.Int32
	peak   atomic.Int32
	calls  atomic.Int32
}

func (m *fakeModel) ConcurrentSafe() bool { return m.safe }

func (m *fakeModel) Transcribe(ctx context.Context, _ string, _ asr.Options, progress asr.ProgressFunc) ([]subtitles.Segment, error) {
	m.calls.Add(1)
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		peak := m.peak.Load()
		if n <= peak || m.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if progress != nil {
		progress(0.5)
	}
	select {
	case <-time.After(m.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return m.segs, m.err
}

type fakeLoader struct {
	gate     chan struct{}
	model    asr.Model
	failures atomic.Int32 // number of leading loads that fail
	loads    atomic.Int32
	ctxErrs  chan error
}

func newFakeLoader(model asr.Model) *fakeLoader {
	return &fakeLoader{model: model, ctxErrs: make(chan error, 16)}
}

func (l *fakeLoader) Load(ctx context.Context, _ asr.ModelKey) (asr.Model, error) {
	n := l.loads.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	l.ctxErrs <- ctx.Err()
	if n <= l.failures.Load() {
		return nil, errors.New("weights corrupt")
	}
	return l.model, nil
}

func cpuOnly() asr.Device { return asr.DeviceCPU }

func TestAcquireConcurrentCallersShareOneLoad(t *testing.T) {
	loader := newFakeLoader(&fakeModel{safe: true})
	loader.gate = make(chan struct{})
	cache := asr.NewCache(loader, nil, asr.WithDeviceDetector(cpuOnly))
	key := asr.ModelKey{Size: asr.SizeTiny, Device: asr.DeviceCPU}

	const callers = 16
	handles := make([]*asr.Handle, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = cache.Acquire(context.Background(), key)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(loader.gate)
	wg.Wait()

	for i := range handles {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Fatalf("caller %d received a different handle", i)
		}
	}
	if got := loader.loads.Load(); got != 1 {
		t.Fatalf("expected exactly one load, got %d", got)
	}
	if got := cache.LoadCount(key); got != 1 {
		t.Fatalf("LoadCount = %d, want 1", got)
	}

	again, err := cache.Acquire(context.Background(), key)
	if err != nil || again != handles[0] {
		t.Fatalf("expected hot reuse, got %v %v", again, err)
	}
	if got := loader.loads.Load(); got != 1 {
		t.Fatalf("reuse triggered a reload: %d loads", got)
	}
}

func TestAcquireCancelledWaiterLeavesLoadRunning(t *testing.T) {
	loader := newFakeLoader(&fakeModel{safe: true})
	loader.gate = make(chan struct{})
	cache := asr.NewCache(loader, nil, asr.WithDeviceDetector(cpuOnly))
	key := asr.ModelKey{Size: asr.SizeBase, Device: asr.DeviceCPU}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() {
		_, err := cache.Acquire(ctx, key)
		result <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, services.ErrCancelled) {
			t.Fatalf("expected cancellation error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return promptly")
	}

	close(loader.gate)
	if err := <-loader.ctxErrs; err != nil {
		t.Fatalf("load context was cancelled with the caller: %v", err)
	}

	handle, err := cache.Acquire(context.Background(), key)
	if err != nil {
		t.Fatalf("Acquire after cancelled waiter: %v", err)
	}
	if handle.Key() != key {
		t.Fatalf("unexpected key %v", handle.Key())
	}
	if got := loader.loads.Load(); got != 1 {
		t.Fatalf("expected the original load to be reused, got %d loads", got)
	}
}

func TestAcquireRetriesFailedLoad(t *testing.T) {
	loader := newFakeLoader(&fakeModel{safe: true})
	loader.failures.Store(1)
	cache := asr.NewCache(loader, nil, asr.WithDeviceDetector(cpuOnly))
	key := asr.ModelKey{Size: asr.SizeSmall, Device: asr.DeviceCPU}

	_, err := cache.Acquire(context.Background(), key)
	if !errors.Is(err, services.ErrTranscriptionFailed) {
		t.Fatalf("expected transcription failure, got %v", err)
	}
	if len(cache.Loaded()) != 0 {
		t.Fatal("failed load must not be cached")
	}
	if _, err := cache.Acquire(context.Background(), key); err != nil {
		t.Fatalf("second acquire should reload: %v", err)
	}
	if got := cache.LoadCount(key); got != 2 {
		t.Fatalf("LoadCount = %d, want 2", got)
	}
	if loaded := cache.Loaded(); len(loaded) != 1 || loaded[0].Key != key {
		t.Fatalf("unexpected loaded models %+v", loaded)
	}
}

func TestAcquireResolvesAutoDeviceOnce(t *testing.T) {
	var probes atomic.Int32
	detector := func() asr.Device {
		probes.Add(1)
		return asr.DeviceCUDA
	}
	cache := asr.NewCache(newFakeLoader(&fakeModel{safe: true}), nil, asr.WithDeviceDetector(detector))

	for _, size := range []asr.Size{asr.SizeTiny, asr.SizeMedium} {
		handle, err := cache.Acquire(context.Background(), asr.ModelKey{Size: size, Device: asr.DeviceAuto})
		if err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		if handle.Key().Device != asr.DeviceCUDA {
			t.Fatalf("expected auto to resolve to cuda, got %s", handle.Key().Device)
		}
	}
	if probes.Load() != 1 {
		t.Fatalf("expected one device probe, got %d", probes.Load())
	}
}

func TestAcquireRejectsUnknownSize(t *testing.T) {
	cache := asr.NewCache(newFakeLoader(&fakeModel{}), nil, asr.WithDeviceDetector(cpuOnly))
	_, err := cache.Acquire(context.Background(), asr.ModelKey{Size: "huge", Device: asr.DeviceCPU})
	if !errors.Is(err, services.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestHandleSerializesUnsafeModels(t *testing.T) {
	model := &fakeModel{safe: false, delay: 20 * time.Millisecond}
	cache := asr.NewCache(newFakeLoader(model), nil, asr.WithDeviceDetector(cpuOnly))
	handle, err := cache.Acquire(context.Background(), asr.ModelKey{Size: asr.SizeTiny, Device: asr.DeviceCPU})
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := handle.Transcribe(context.Background(), "a.wav", asr.Options{}, nil); err != nil {
				t.Errorf("Transcribe: %v", err)
			}
		}()
	}
	wg.Wait()
	if model.calls.Load() != 4 {
		t.Fatalf("expected 4 calls, got %d", model.calls.Load())
	}
	if peak := model.peak.Load(); peak != 1 {
		t.Fatalf("expected serialized inference, peak concurrency %d", peak)
	}
}

func TestParseSizeAndDevice(t *testing.T) {
	if size, err := asr.ParseSize("Large-V3"); err != nil || size != asr.SizeLarge {
		t.Fatalf("ParseSize(Large-V3) = %q, %v", size, err)
	}
	if asr.SizeLarge.EngineModel() != "large-v3" || asr.SizeTiny.EngineModel() != "tiny" {
		t.Fatal("unexpected engine model names")
	}
	if _, err := asr.ParseSize("huge"); err == nil {
		t.Fatal("expected error for unknown size")
	}
	if device, err := asr.ParseDevice("gpu"); err != nil || device != asr.DeviceCUDA {
		t.Fatalf("ParseDevice(gpu) = %q, %v", device, err)
	}
	if asr.DeviceCUDA.ComputeType() != "float16" || asr.DeviceCPU.ComputeType() != "int8" {
		t.Fatal("unexpected compute types")
	}
	if len(asr.Models()) != 5 {
		t.Fatalf("expected 5 catalog entries, got %d", len(asr.Models()))
	}
}
