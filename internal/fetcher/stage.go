package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/services"
)

const stageName = "downloading"

// DefaultRetryBackoff is the pause before the single retry of a transient failure.
const DefaultRetryBackoff = 2 * time.Second

// probeShare is the portion of stage progress attributed to the metadata probe.
const probeShare = 0.05

// Request describes one acquisition.
type Request struct {
	URL      string
	Platform string
	// Dir receives downloaded files. It must exist.
	Dir     string
	Options Options
	// SubtitlesEnabled allows the caption path. When false, or when
	// ForceAudio is set, the probe is skipped and audio is fetched directly.
	SubtitlesEnabled bool
	ForceAudio       bool
	Selection        Selection
}

// Stage implements the Download Stage on top of a Fetcher.
type Stage struct {
	fetcher Fetcher
	logger  *slog.Logger
	backoff time.Duration
}

// NewStage constructs a Stage. A non-positive backoff uses DefaultRetryBackoff.
func NewStage(f Fetcher, logger *slog.Logger, backoff time.Duration) *Stage {
	if backoff <= 0 {
		backoff = DefaultRetryBackoff
	}
	return &Stage{
		fetcher: f,
		logger:  logging.NewComponentLogger(logger, "fetcher"),
		backoff: backoff,
	}
}

// Acquire resolves req to exactly one Acquisition. Caption tracks are
// preferred; audio is fetched when captions are missing, disabled, rejected
// by the language policy, or fail to download. Transport errors come back
// wrapped in services.ErrAcquisitionFailed, cancellation in
// services.ErrCancelled.
func (s *Stage) Acquire(ctx context.Context, req Request, progress ProgressFunc) (Acquisition, error) {
	report := clamp(progress)
	logger := logging.WithContext(ctx, s.logger)

	if req.ForceAudio || !req.SubtitlesEnabled {
		reason := "subtitles disabled"
		if req.ForceAudio {
			reason = "speech recognition forced"
		}
		logging.Decision(logger, "skipping caption probe", "acquisition_path", "audio", reason)
		return s.audioOnly(ctx, req, ProbeResult{Platform: req.Platform}, reason, report, 0)
	}

	sub, info, reason, err := s.ProbeSubtitle(ctx, req, report)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		report(1)
		return SubtitlePresent{Info: info, Subtitle: *sub}, nil
	}
	return s.audioOnly(ctx, req, info, reason, report, probeShare)
}

// ProbeSubtitle probes req.URL and downloads the selected caption track. A
// nil artifact with a reason means no usable track; the caller should fetch
// audio instead.
func (s *Stage) ProbeSubtitle(ctx context.Context, req Request, progress ProgressFunc) (*SubtitleArtifact, ProbeResult, string, error) {
	report := clamp(progress)
	logger := logging.WithContext(ctx, s.logger)

	var info ProbeResult
	err := s.withRetry(ctx, "probe", func() error {
		var probeErr error
		info, probeErr = s.fetcher.Probe(ctx, req.URL, req.Options)
		return probeErr
	})
	if err != nil {
		return nil, ProbeResult{}, "", s.fail(ctx, "probe", "probe metadata", err)
	}
	if info.Platform == "" {
		info.Platform = req.Platform
	}
	report(probeShare)
	logger.Info("metadata probed",
		logging.String("title", info.Title),
		logging.Float64("duration_seconds", info.Duration),
		logging.Int("manual_tracks", len(info.Manual)),
		logging.Int("auto_tracks", len(info.Auto)),
	)

	track, ok, reason := SelectTrack(info, req.Selection)
	if !ok {
		logging.Decision(logger, "no usable caption track", "subtitle_selection", "none", reason)
		return nil, info, reason, nil
	}
	logging.Decision(logger, "caption track selected", "subtitle_selection", track.String(), reason,
		logging.String("language", track.Language))

	var artifact SubtitleArtifact
	err = s.withRetry(ctx, "fetch subtitle", func() error {
		var fetchErr error
		artifact, fetchErr = s.fetcher.FetchSubtitle(ctx, req.URL, track, req.Dir, req.Options, scaled(report, probeShare, 1))
		return fetchErr
	})
	if err != nil {
		if cancelled(ctx, err) {
			return nil, info, "", s.fail(ctx, "fetch subtitle", "download caption track", err)
		}
		logging.WarnIssue(logger, "caption download failed; falling back to audio", logging.Issue{
			Event:  "subtitle_fetch_failed",
			Hint:   "check network access or pass --force-asr",
			Impact: "transcript will come from speech recognition",
			Err:    err,
		})
		return nil, info, "caption download failed", nil
	}
	if artifact.Track.Language == "" {
		artifact.Track = track
	}
	return &artifact, info, reason, nil
}

// FetchAudio downloads the audio stream of req.URL.
func (s *Stage) FetchAudio(ctx context.Context, req Request, progress ProgressFunc) (AudioArtifact, error) {
	var artifact AudioArtifact
	err := s.withRetry(ctx, "fetch audio", func() error {
		var fetchErr error
		artifact, fetchErr = s.fetcher.FetchAudio(ctx, req.URL, req.Dir, req.Options, clamp(progress))
		return fetchErr
	})
	if err != nil {
		return AudioArtifact{}, s.fail(ctx, "fetch audio", "download audio", err)
	}
	if info, statErr := os.Stat(artifact.Path); statErr != nil || info.Size() == 0 {
		return AudioArtifact{}, services.Wrap(services.ErrAcquisitionFailed, stageName, "fetch audio",
			"downloaded audio missing or empty", services.ErrNotFound)
	}
	return artifact, nil
}

func (s *Stage) audioOnly(ctx context.Context, req Request, info ProbeResult, reason string, report ProgressFunc, from float64) (Acquisition, error) {
	audio, err := s.FetchAudio(ctx, req, scaled(report, from, 1))
	if err != nil {
		if errors.Is(err, services.ErrNotFound) && !errors.Is(err, services.ErrCancelled) && info.Title != "" {
			return NeitherAvailable{Info: info, Reason: joinReason(reason, "no audio stream")}, nil
		}
		return nil, err
	}
	report(1)
	return AudioOnly{Info: info, Audio: audio, Reason: reason}, nil
}

// withRetry runs fn, repeating it once after the backoff when the failure is
// transient.
func (s *Stage) withRetry(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !services.IsRetryable(err) || ctx.Err() != nil {
		return err
	}
	logging.WithContext(ctx, s.logger).Warn("retrying after transient failure",
		logging.String("operation", op),
		logging.Duration("backoff", s.backoff),
		logging.Error(err),
	)
	timer := time.NewTimer(s.backoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}
	return fn()
}

func (s *Stage) fail(ctx context.Context, op, msg string, err error) error {
	if cancelled(ctx, err) {
		return services.Wrap(services.ErrCancelled, stageName, op, msg, err)
	}
	return services.Wrap(services.ErrAcquisitionFailed, stageName, op, msg, err)
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, services.ErrCancelled)
}

func joinReason(parts ...string) string {
	kept := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "; ")
}

func clamp(progress ProgressFunc) ProgressFunc {
	return func(f float64) {
		if progress == nil {
			return
		}
		progress(min(max(f, 0), 1))
	}
}

// scaled maps [0, 1] onto [from, to] of report.
func scaled(report ProgressFunc, from, to float64) ProgressFunc {
	return func(f float64) {
		report(from + (to-from)*min(max(f, 0), 1))
	}
}
