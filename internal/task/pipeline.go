package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vidscribe/internal/asr"
	"vidscribe/internal/fetcher"
	"vidscribe/internal/logging"
	"vidscribe/internal/queue"
	"vidscribe/internal/services"
	"vidscribe/internal/subtitles"
	"vidscribe/internal/urlnorm"
)

// run carries per-execution state through the pipeline steps.
type run struct {
	task     *Task
	ctx      context.Context
	logger   *slog.Logger
	opts     resolved
	norm     urlnorm.Normalized
	workDir  string
	title    string
	pathUsed queue.PathUsed
	sampler  *logging.ProgressSampler
	started  time.Time
}

func (o *Orchestrator) execute(t *Task) Result {
	ctx := services.WithTaskID(t.ctx, t.id)
	r := &run{
		task:    t,
		ctx:     ctx,
		logger:  logging.WithContext(ctx, o.logger),
		sampler: logging.NewProgressSampler(10),
		started: time.Now(),
	}
	res := o.pipeline(r)
	o.record(t, res)
	return res
}

func (o *Orchestrator) pipeline(r *run) Result {
	t := r.task
	r.logger.Info("task queued", logging.String("url", t.rawURL), logging.String(logging.FieldEventType, "task_queued"))

	norm, err := urlnorm.Normalize(t.rawURL)
	if err != nil {
		return o.fail(r, err)
	}
	r.norm = norm
	t.mu.Lock()
	t.url = norm.URL
	t.mu.Unlock()

	opts, err := t.opts.resolve()
	if err != nil {
		return o.fail(r, err)
	}
	r.opts = opts

	if !o.enter(r, StateDownloading) {
		return o.cancelled(r, nil)
	}
	if err := o.prepareWorkDir(r); err != nil {
		return o.fail(r, services.Wrap(services.ErrPersistenceFailed, string(StateDownloading), "work dir", "", err))
	}
	defer o.cleanupWorkDir(r)

	acq, err := o.deps.Acquirer.Acquire(r.ctx, o.fetchRequest(r), func(f float64) {
		o.progress(r, downloadStart, downloadEnd, f)
	})
	if err != nil {
		return o.fail(r, err)
	}

	if !o.enter(r, StateDeciding) {
		return o.cancelled(r, nil)
	}
	segments, err := o.decide(r, acq)
	if err != nil {
		return o.fail(r, err)
	}

	if !o.enter(r, StateFormatting) {
		return o.cancelled(r, nil)
	}
	path, rollback, err := o.persist(r, segments)
	if err != nil {
		return o.fail(r, err)
	}

	res := t.finish(Result{
		TaskID:     t.id,
		URL:        r.norm.URL,
		Title:      r.title,
		State:      StateDone,
		OutputPath: path,
		PathUsed:   r.pathUsed,
		Segments:   len(segments),
		StartedAt:  r.started,
	}, rollback)
	if res.State == StateDone {
		r.logger.Info("task completed",
			logging.String(logging.FieldEventType, "task_complete"),
			logging.String("output", path),
			logging.String("path_used", string(r.pathUsed)),
			logging.Int("segments", len(segments)),
			logging.Duration("elapsed", res.FinishedAt.Sub(r.started)),
		)
	} else {
		r.logger.Info("task cancelled during completion", logging.String(logging.FieldEventType, "task_cancelled"))
	}
	return res
}

// decide matches the acquisition and produces the transcript segments.
func (o *Orchestrator) decide(r *run, acq fetcher.Acquisition) ([]subtitles.Segment, error) {
	switch a := acq.(type) {
	case fetcher.SubtitlePresent:
		r.title = a.Info.Title
		segments, err := o.decodeSubtitle(r, a.Subtitle)
		if err == nil {
			r.pathUsed = queue.PathSubtitle
			logging.Decision(r.logger, "using caption track", "transcript_source", "subtitle", "caption track available",
				logging.String("language", a.Subtitle.Track.Language),
				logging.Int("segments", len(segments)))
			return segments, nil
		}
		if !r.task.opts.FallbackToASR || r.task.CancelRequested() {
			return nil, err
		}
		logging.WarnIssue(r.logger, "caption track unusable; falling back to speech recognition", logging.Issue{
			Event:  "subtitle_decode_fallback",
			Hint:   "pass --force-asr to skip caption tracks",
			Impact: "transcript comes from speech recognition",
			Err:    err,
		})
		audio, err := o.deps.Acquirer.FetchAudio(r.ctx, o.fetchRequest(r), nil)
		if err != nil {
			return nil, err
		}
		return o.transcribe(r, audio.Path)

	case fetcher.AudioOnly:
		r.title = a.Info.Title
		logging.Decision(r.logger, "using speech recognition", "transcript_source", "asr", a.Reason)
		return o.transcribe(r, a.Audio.Path)

	case fetcher.NeitherAvailable:
		r.title = a.Info.Title
		return nil, services.Wrap(services.ErrAcquisitionFailed, string(StateDeciding), "decide",
			"neither a caption track nor audio is available", errors.New(a.Reason))

	default:
		return nil, services.Wrap(services.ErrAcquisitionFailed, string(StateDeciding), "decide",
			fmt.Sprintf("unexpected acquisition %T", acq), nil)
	}
}

func (o *Orchestrator) decodeSubtitle(r *run, artifact fetcher.SubtitleArtifact) ([]subtitles.Segment, error) {
	decoded, err := subtitles.DecodeFile(artifact.Path, "")
	if err != nil {
		var decodeErr *subtitles.DecodeError
		if errors.As(err, &decodeErr) {
			return nil, services.Wrap(decodeErr.Marker, string(StateDeciding), "decode subtitle", filepath.Base(artifact.Path), err)
		}
		return nil, services.Wrap(services.ErrAcquisitionFailed, string(StateDeciding), "read subtitle", "", err)
	}
	for _, w := range decoded.Warnings {
		r.logger.Debug("caption cue skipped", logging.String("warning", w.String()))
	}
	if len(decoded.Warnings) > 0 {
		r.logger.Info("caption cues dropped during decode",
			logging.Int("dropped", len(decoded.Warnings)),
			logging.Int("duplicates", decoded.Duplicates),
			logging.String("encoding", decoded.Encoding),
		)
	}
	return decoded.Segments, nil
}

func (o *Orchestrator) transcribe(r *run, audioPath string) ([]subtitles.Segment, error) {
	if !o.enter(r, StateTranscribing) {
		return nil, services.Wrap(services.ErrCancelled, string(StateDeciding), "transcribe", "cancelled before recognition", context.Canceled)
	}
	r.pathUsed = queue.PathASR
	req := asr.Request{
		AudioPath: audioPath,
		Key:       r.opts.key,
		Options: asr.Options{
			Language: r.opts.language,
			BeamSize: r.task.opts.BeamSize,
			WorkDir:  filepath.Join(r.workDir, "asr"),
		},
	}
	return o.deps.Transcriber.Transcribe(r.ctx, req, func(f float64) {
		o.progress(r, transcribeStart, transcribeEnd, f)
	})
}

func (o *Orchestrator) fetchRequest(r *run) fetcher.Request {
	opts := r.task.opts
	requested := r.opts.language
	return fetcher.Request{
		URL:      r.norm.URL,
		Platform: r.norm.Platform,
		Dir:      r.workDir,
		Options: fetcher.Options{
			Proxy:          opts.Proxy,
			UseCredentials: opts.UseCredentials,
		},
		SubtitlesEnabled: opts.SubtitlesEnabled,
		ForceAudio:       opts.ForceASR,
		Selection: fetcher.Selection{
			Priority:    opts.SubtitleLanguages,
			Requested:   requested,
			IncludeAuto: opts.IncludeAutoCaptions,
			Mismatch:    r.opts.mismatch,
		},
	}
}

// enter advances the task and logs the boundary. It returns false when the
// task must stop because cancellation was requested.
func (o *Orchestrator) enter(r *run, state State) bool {
	if !r.task.advance(state) {
		return false
	}
	r.ctx = services.WithStage(r.ctx, string(state))
	r.logger = logging.WithContext(r.ctx, o.logger)
	r.logger.Info("stage started", logging.String(logging.FieldEventType, "stage_start"))
	return true
}

func (o *Orchestrator) progress(r *run, lo, hi int, fraction float64) {
	percent := lo + int(float64(hi-lo)*min(max(fraction, 0), 1))
	if !r.task.report(percent, lo, hi) {
		return
	}
	if r.sampler.ShouldLog(float64(percent), string(r.task.State())) {
		r.logger.Info("progress", logging.Int(logging.FieldProgressPercent, percent))
	}
}

func (o *Orchestrator) prepareWorkDir(r *run) error {
	base := strings.TrimSpace(o.deps.WorkDir)
	if base == "" {
		base = os.TempDir()
	}
	r.workDir = filepath.Join(base, r.task.id)
	return os.MkdirAll(r.workDir, 0o755)
}

func (o *Orchestrator) cleanupWorkDir(r *run) {
	if r.workDir == "" {
		return
	}
	if o.deps.KeepWorkFiles && r.task.State() == StateFailed {
		r.logger.Info("keeping work files", logging.String("work_dir", r.workDir))
		return
	}
	if err := os.RemoveAll(r.workDir); err != nil {
		r.logger.Warn("failed to remove work dir", logging.String("work_dir", r.workDir), logging.Error(err))
	}
}

// fail ends the task as Failed, or as Cancelled when the failure stems from
// cancellation.
func (o *Orchestrator) fail(r *run, err error) Result {
	t := r.task
	if errors.Is(err, services.ErrCancelled) || errors.Is(err, context.Canceled) || t.CancelRequested() {
		return o.cancelled(r, err)
	}
	details := services.Details(err)
	kind := services.KindAt(string(t.State()), err)
	res := t.finish(Result{
		TaskID:    t.id,
		URL:       t.URL(),
		Title:     r.title,
		State:     StateFailed,
		PathUsed:  r.pathUsed,
		Kind:      kind,
		Err:       err,
		StartedAt: r.started,
	}, nil)
	logging.ErrorIssue(r.logger, "task failed", logging.Issue{Event: "task_failed", Hint: hintFor(kind), Err: err},
		logging.String("error_kind", string(kind)),
		logging.String("error_operation", details.Operation),
	)
	return res
}

func (o *Orchestrator) cancelled(r *run, cause error) Result {
	t := r.task
	if cause == nil {
		cause = context.Canceled
	}
	err := cause
	if !errors.Is(err, services.ErrCancelled) {
		err = services.Wrap(services.ErrCancelled, string(t.State()), "cancel", "cancelled on request", cause)
	}
	res := t.finish(Result{
		TaskID:    t.id,
		URL:       t.URL(),
		Title:     r.title,
		State:     StateCancelled,
		PathUsed:  r.pathUsed,
		Kind:      services.KindCancelled,
		Err:       err,
		StartedAt: r.started,
	}, nil)
	r.logger.Info("task cancelled", logging.String(logging.FieldEventType, "task_cancelled"))
	return res
}

func hintFor(kind services.Kind) string {
	switch kind {
	case services.KindInvalidInput:
		return "check the URL and the requested format, model and language"
	case services.KindAcquisitionFailed:
		return "check network access, proxy and browser cookies"
	case services.KindMalformedSubtitle, services.KindUnsupportedEncoding:
		return "retry with --force-asr to bypass the caption track"
	case services.KindTranscriptionFailed:
		return "run `vidscribe deps` and check the model and device settings"
	case services.KindPersistenceFailed:
		return "check output directory permissions and free space"
	default:
		return ""
	}
}
