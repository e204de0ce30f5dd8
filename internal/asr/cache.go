package asr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/subtitles"
)

// Options tune one recognition run.
type Options struct {
	// Language is an ISO 639-1 code or empty/"auto" for detection.
	Language string
	BeamSize int
	// WorkDir receives engine output files. Defaults to the audio file's directory.
	WorkDir string
}

// ProgressFunc receives stage-local progress in [0, 1].
type ProgressFunc func(fraction float64)

// Model is a loaded recognizer.
type Model interface {
	Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) ([]subtitles.Segment, error)
	// ConcurrentSafe reports whether Transcribe may run concurrently on the
	// same model. When false, the Handle serializes calls.
	ConcurrentSafe() bool
}

// Loader produces a Model for a resolved key.
type Loader interface {
	Load(ctx context.Context, key ModelKey) (Model, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, key ModelKey) (Model, error)

func (f LoaderFunc) Load(ctx context.Context, key ModelKey) (Model, error) { return f(ctx, key) }

// Handle is a shared reference to a loaded model.
type Handle struct {
	key      ModelKey
	model    Model
	loadedAt time.Time
	slot     chan struct{} // nil when the model is concurrency safe
}

func newHandle(key ModelKey, model Model) *Handle {
	h := &Handle{key: key, model: model, loadedAt: time.Now()}
	if !model.ConcurrentSafe() {
		h.slot = make(chan struct{}, 1)
	}
	return h
}

// Key returns the resolved key the handle was loaded for.
func (h *Handle) Key() ModelKey { return h.key }

// LoadedAt returns when the load completed.
func (h *Handle) LoadedAt() time.Time { return h.loadedAt }

// Transcribe runs recognition, waiting for exclusive use of the model when
// it is not concurrency safe.
func (h *Handle) Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) ([]subtitles.Segment, error) {
	if h.slot != nil {
		select {
		case h.slot <- struct{}{}:
			defer func() { <-h.slot }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return h.model.Transcribe(ctx, audioPath, opts, progress)
}

type cacheEntry struct {
	done   chan struct{}
	handle *Handle
	err    error
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithDeviceDetector replaces the auto-device probe.
func WithDeviceDetector(detect DeviceDetector) CacheOption {
	return func(c *Cache) {
		if detect != nil {
			c.detect = detect
		}
	}
}

// Cache holds loaded models for the process lifetime. It is safe for
// concurrent use; each key is loaded at most once at a time, and a successful
// load is never repeated.
type Cache struct {
	loader Loader
	logger *slog.Logger
	detect DeviceDetector

	autoOnce   sync.Once
	autoDevice Device

	mu      sync.Mutex
	entries map[ModelKey]*cacheEntry
	loads   map[ModelKey]int
}

// NewCache builds a cache over loader.
func NewCache(loader Loader, logger *slog.Logger, opts ...CacheOption) *Cache {
	c := &Cache{
		loader:  loader,
		logger:  logging.NewComponentLogger(logger, "model-cache"),
		detect:  DetectDevice,
		entries: make(map[ModelKey]*cacheEntry),
		loads:   make(map[ModelKey]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Resolve replaces DeviceAuto with the detected device. The probe runs once
// per cache.
func (c *Cache) Resolve(key ModelKey) ModelKey {
	if key.Device == DeviceAuto || key.Device == "" {
		c.autoOnce.Do(func() {
			c.autoDevice = c.detect()
			c.logger.Info("compute device detected",
				logging.String("device", string(c.autoDevice)),
				logging.String("compute_type", c.autoDevice.ComputeType()),
			)
		})
		key.Device = c.autoDevice
	}
	return key
}

// Acquire returns the handle for key, loading it if necessary. Concurrent
// callers for the same key share one load. A caller whose ctx ends while
// waiting gets a cancellation error; the load itself keeps running and its
// result is cached for later callers. Failed loads are not cached.
func (c *Cache) Acquire(ctx context.Context, key ModelKey) (*Handle, error) {
	if _, ok := Info(key.Size); !ok {
		return nil, services.Wrap(services.ErrInvalidInput, "transcribing", "acquire model", fmt.Sprintf("unknown model size %q", key.Size), nil)
	}
	key = c.Resolve(key)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{done: make(chan struct{})}
		c.entries[key] = entry
		c.loads[key]++
		go c.load(context.WithoutCancel(ctx), key, entry)
	}
	c.mu.Unlock()

	if ok {
		select {
		case <-entry.done:
			return entry.result()
		default:
		}
		logging.WithContext(ctx, c.logger).Info("waiting for model load in progress", logging.String("model", key.String()))
	}

	select {
	case <-entry.done:
		return entry.result()
	case <-ctx.Done():
		return nil, services.Wrap(services.ErrCancelled, "transcribing", "acquire model", "cancelled while waiting for "+key.String(), ctx.Err())
	}
}

func (e *cacheEntry) result() (*Handle, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.handle, nil
}

func (c *Cache) load(ctx context.Context, key ModelKey, entry *cacheEntry) {
	logger := logging.WithContext(ctx, c.logger)
	started := time.Now()
	logger.Info("loading model",
		logging.String("model", key.String()),
		logging.String(logging.FieldEventType, "model_load_start"),
	)

	model, err := c.loader.Load(ctx, key)
	if err == nil && model == nil {
		err = fmt.Errorf("loader returned no model")
	}

	c.mu.Lock()
	if err != nil {
		entry.err = services.Wrap(services.ErrTranscriptionFailed, "transcribing", "load model", key.String(), err)
		delete(c.entries, key)
	} else {
		entry.handle = newHandle(key, model)
	}
	c.mu.Unlock()
	close(entry.done)

	if err != nil {
		logging.ErrorIssue(logger, "model load failed", logging.Issue{
			Event: "model_load_failed",
			Hint:  "check the engine command and model_dir permissions",
			Err:   err,
		}, logging.String("model", key.String()))
		return
	}
	logger.Info("model loaded",
		logging.String("model", key.String()),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "model_load_complete"),
	)
}

// LoadCount returns how many loads have been started for key.
func (c *Cache) LoadCount(key ModelKey) int {
	key = c.Resolve(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads[key]
}

// LoadedModel is one entry of Cache.Loaded.
type LoadedModel struct {
	Key      ModelKey
	LoadedAt time.Time
}

// Loaded returns the models that finished loading, ordered by key.
func (c *Cache) Loaded() []LoadedModel {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LoadedModel, 0, len(c.entries))
	for key, entry := range c.entries {
		if entry.handle != nil {
			out = append(out, LoadedModel{Key: key, LoadedAt: entry.handle.loadedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.String() < out[j].Key.String() })
	return out
}
