package asr

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/subtitles"
)

// Request describes one transcription.
type Request struct {
	AudioPath string
	Key       ModelKey
	Options   Options
}

// Stage runs recognition for the orchestrator: it acquires the model from the
// cache, runs it, and tidies the output into a valid segment sequence.
type Stage struct {
	cache  *Cache
	logger *slog.Logger
}

// NewStage builds a transcription stage over cache.
func NewStage(cache *Cache, logger *slog.Logger) *Stage {
	return &Stage{cache: cache, logger: logging.NewComponentLogger(logger, "transcriber")}
}

// Cache exposes the underlying model cache.
func (s *Stage) Cache() *Cache { return s.cache }

// Transcribe returns the recognized segments for req.AudioPath. An empty
// result is valid and means no speech was found. Progress reports are
// monotonic and end at 1 on success.
func (s *Stage) Transcribe(ctx context.Context, req Request, progress ProgressFunc) ([]subtitles.Segment, error) {
	logger := logging.WithContext(ctx, s.logger)
	report := monotonic(progress)

	handle, err := s.cache.Acquire(ctx, req.Key)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, services.Wrap(services.ErrCancelled, "transcribing", "recognize", "cancelled after model load", err)
	}

	started := time.Now()
	logger.Info("transcription started",
		logging.String("model", handle.Key().String()),
		logging.String("audio", filepath.Base(req.AudioPath)),
		logging.String("language", req.Options.Language),
	)
	raw, err := handle.Transcribe(ctx, req.AudioPath, req.Options, report)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, services.Wrap(services.ErrCancelled, "transcribing", "recognize", filepath.Base(req.AudioPath), err)
		}
		return nil, services.Wrap(services.ErrTranscriptionFailed, "transcribing", "recognize", filepath.Base(req.AudioPath), err)
	}

	segs, stats := subtitles.Tidy(raw)
	if stats.Dropped+stats.Duplicates+stats.Overlaps > 0 {
		logger.Debug("recognizer output tidied",
			logging.Int("dropped", stats.Dropped),
			logging.Int("duplicates", stats.Duplicates),
			logging.Int("clipped", stats.Clipped),
			logging.Int("overlaps", stats.Overlaps),
		)
	}
	report(1)
	logger.Info("transcription completed",
		logging.Int("segments", len(segs)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String(logging.FieldEventType, "transcription_complete"),
	)
	return segs, nil
}

// monotonic clamps reports to [0, 1] and suppresses regressions.
func monotonic(progress ProgressFunc) ProgressFunc {
	last := -1.0
	return func(fraction float64) {
		if progress == nil {
			return
		}
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		if fraction <= last {
			return
		}
		last = fraction
		progress(fraction)
	}
}
