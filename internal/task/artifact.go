package task

import (
	"context"
	"path/filepath"
	"strings"

	"vidscribe/internal/fileutil"
	"vidscribe/internal/logging"
	"vidscribe/internal/services"
	"vidscribe/internal/subtitles"
	"vidscribe/internal/textutil"
)

// shortIDLen is how much of the task id goes into artifact names.
const shortIDLen = 8

// ArtifactName returns "<sanitized-title>-<short-id>.<ext>".
func ArtifactName(title, taskID string, format subtitles.Format) string {
	short := taskID
	if len(short) > shortIDLen {
		short = short[:shortIDLen]
	}
	return textutil.DerivedName(title, short) + "." + format.Extension()
}

// render encodes segments in the requested format. Plain text without
// timestamps is rendered as paragraphs.
func render(segments []subtitles.Segment, format subtitles.Format, withTimestamps bool) ([]byte, error) {
	if format == subtitles.FormatText && !withTimestamps {
		if err := subtitles.Validate(segments); err != nil {
			return nil, err
		}
		return []byte(subtitles.RenderParagraphs(segments)), nil
	}
	return subtitles.Encode(segments, format)
}

// persist writes the transcript atomically into the output directory. The
// returned rollback removes the committed artifact.
func (o *Orchestrator) persist(r *run, segments []subtitles.Segment) (string, func(), error) {
	stage := string(StateFormatting)
	data, err := render(segments, r.opts.format, r.task.opts.WithTimestamps)
	if err != nil {
		return "", nil, services.Wrap(services.ErrPersistenceFailed, stage, "encode", string(r.opts.format), err)
	}

	title := strings.TrimSpace(r.title)
	if title == "" {
		title = r.norm.VideoID
	}
	dest := filepath.Join(r.opts.outputDir, ArtifactName(title, r.task.id, r.opts.format))

	pending, err := fileutil.CreatePending(dest, 0o644)
	if err != nil {
		return "", nil, services.Wrap(services.ErrPersistenceFailed, stage, "create artifact", dest, err)
	}
	if _, err := pending.Write(data); err != nil {
		_ = pending.Abort()
		return "", nil, services.Wrap(services.ErrPersistenceFailed, stage, "write artifact", dest, err)
	}
	if r.task.CancelRequested() {
		_ = pending.Abort()
		return "", nil, services.Wrap(services.ErrCancelled, stage, "write artifact", "cancelled before commit", context.Canceled)
	}
	if err := pending.Commit(); err != nil {
		return "", nil, services.Wrap(services.ErrPersistenceFailed, stage, "commit artifact", dest, err)
	}
	r.logger.Debug("artifact written", logging.String("path", dest), logging.Int("bytes", len(data)))

	rollback := func() {
		if err := fileutil.RemoveIfExists(dest); err != nil {
			r.logger.Warn("failed to remove cancelled artifact", logging.String("path", dest), logging.Error(err))
		}
	}
	return dest, rollback, nil
}
