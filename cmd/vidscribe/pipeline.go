package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"vidscribe/internal/asr"
	"vidscribe/internal/config"
	"vidscribe/internal/fetcher"
	"vidscribe/internal/logging"
	"vidscribe/internal/queue"
	"vidscribe/internal/task"
)

// processGrace bounds how long a cancelled yt-dlp or engine process may take
// to exit after SIGTERM.
const processGrace = 5 * time.Second

type pipeline struct {
	orch  *task.Orchestrator
	cache *asr.Cache
	store *queue.Store
}

func newEngine(cfg *config.Config, logger *slog.Logger) *asr.CLIEngine {
	return asr.NewCLIEngine(asr.EngineConfig{
		Command:     cfg.EngineBinary(),
		FFmpeg:      cfg.FFmpegBinary(),
		ModelDir:    cfg.Paths.ModelDir,
		ComputeType: cfg.Transcription.ComputeType,
		Grace:       processGrace,
	}, logger)
}

// buildPipeline wires the yt-dlp fetcher, the model cache and the history
// store into an orchestrator. An unavailable history store is logged and
// skipped; transcription still runs without it.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) *pipeline {
	ytdlp := fetcher.NewYTDLP(fetcher.YTDLPConfig{
		Binary:  cfg.FetcherBinary(),
		FFmpeg:  cfg.FFmpegBinary(),
		Browser: cfg.Download.CredentialBrowser,
		Timeout: time.Duration(cfg.Download.TimeoutSeconds) * time.Second,
		Grace:   processGrace,
	}, logger)
	backoff := time.Duration(cfg.Download.RetryBackoffMS) * time.Millisecond

	p := &pipeline{cache: asr.NewCache(newEngine(cfg, logger), logger)}
	deps := task.Dependencies{
		Acquirer:      fetcher.NewStage(ytdlp, logger, backoff),
		Transcriber:   asr.NewStage(p.cache, logger),
		WorkDir:       cfg.Paths.WorkDir,
		KeepWorkFiles: cfg.Paths.KeepWorkFiles,
		Logger:        logger,
	}

	store, err := queue.Open(cfg)
	switch {
	case err == nil:
		p.store = store
		deps.History = store
		pruneHistory(ctx, store, cfg.Logging.RetentionDays, logger)
	case errors.Is(err, queue.ErrDisabled):
	default:
		logging.WarnIssue(logger, "history store unavailable", logging.Issue{
			Event:  "history_open_failed",
			Hint:   "check history.db_path or set history.enabled = false",
			Impact: "this run is not recorded in `vidscribe history`",
			Err:    err,
		})
	}

	p.orch = task.New(deps)
	return p
}

func pruneHistory(ctx context.Context, store *queue.Store, retentionDays int, logger *slog.Logger) {
	if retentionDays <= 0 {
		return
	}
	removed, err := store.Prune(ctx, time.Now().AddDate(0, 0, -retentionDays))
	if err != nil {
		logger.Warn("history prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		logger.Debug("history pruned", logging.Int64("removed", removed))
	}
}

// Close cancels in-flight tasks, waits for them and closes the store.
func (p *pipeline) Close() {
	p.orch.Close()
	if p.store != nil {
		_ = p.store.Close()
	}
}
