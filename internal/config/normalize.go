package config

import (
	"fmt"
	"os"
	"strings"

	"vidscribe/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTranscription()
	c.normalizeDownload()
	c.normalizeSubtitles()
	c.normalizeLogging()
	return c.normalizeHistory()
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultCacheDir("work")
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ModelDir) == "" {
		c.Paths.ModelDir = defaultCacheDir("models")
	}
	if c.Paths.ModelDir, err = expandPath(c.Paths.ModelDir); err != nil {
		return fmt.Errorf("paths.model_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.OutputFormat = strings.ToLower(strings.TrimSpace(t.OutputFormat))
	switch t.OutputFormat {
	case "":
		t.OutputFormat = defaultOutputFormat
	case "txt", "plain", "plain-text":
		t.OutputFormat = "text"
	case "webvtt":
		t.OutputFormat = "vtt"
	}
	t.ModelSize = strings.ToLower(strings.TrimSpace(t.ModelSize))
	switch t.ModelSize {
	case "":
		t.ModelSize = defaultModelSize
	case "large-v3", "large-v2":
		t.ModelSize = "large"
	}
	t.Device = strings.ToLower(strings.TrimSpace(t.Device))
	switch t.Device {
	case "":
		t.Device = defaultDevice
	case "gpu":
		t.Device = "cuda"
	}
	t.Language = strings.TrimSpace(t.Language)
	if t.Language == "" || strings.EqualFold(t.Language, language.Auto) {
		t.Language = language.Auto
	} else if iso := language.ToISO2(t.Language); iso != "" {
		t.Language = iso
	}
	t.ComputeType = strings.ToLower(strings.TrimSpace(t.ComputeType))
	if t.BeamSize <= 0 {
		t.BeamSize = defaultBeamSize
	}
	t.EngineCommand = strings.TrimSpace(t.EngineCommand)
	if t.EngineCommand == "" {
		t.EngineCommand = defaultEngineCommand
	}
}

func (c *Config) normalizeDownload() {
	d := &c.Download
	d.Proxy = strings.TrimSpace(d.Proxy)
	if d.Proxy == "" {
		for _, key := range []string{"VIDSCRIBE_PROXY", "HTTPS_PROXY", "https_proxy"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				d.Proxy = strings.TrimSpace(value)
				break
			}
		}
	}
	if strings.EqualFold(d.Proxy, "none") {
		d.Proxy = ""
	}
	d.CredentialBrowser = strings.ToLower(strings.TrimSpace(d.CredentialBrowser))
	if d.CredentialBrowser == "" {
		d.CredentialBrowser = defaultCredentialBrowser
	}
	d.FetcherCommand = strings.TrimSpace(d.FetcherCommand)
	if d.FetcherCommand == "" {
		d.FetcherCommand = defaultFetcherCommand
	}
	d.FFmpegCommand = strings.TrimSpace(d.FFmpegCommand)
	if d.FFmpegCommand == "" {
		d.FFmpegCommand = defaultFFmpegCommand
	}
	if d.TimeoutSeconds <= 0 {
		d.TimeoutSeconds = defaultDownloadTimeout
	}
	if d.RetryBackoffMS < 0 {
		d.RetryBackoffMS = 0
	}
}

func (c *Config) normalizeSubtitles() {
	c.Subtitles.LanguagePriority = language.NormalizeList(c.Subtitles.LanguagePriority)
	c.Subtitles.LanguageMismatch = strings.ToLower(strings.TrimSpace(c.Subtitles.LanguageMismatch))
	c.Subtitles.LanguageMismatch = strings.ReplaceAll(c.Subtitles.LanguageMismatch, "-", "_")
	if c.Subtitles.LanguageMismatch == "" {
		c.Subtitles.LanguageMismatch = defaultLanguageMismatch
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeHistory() error {
	var err error
	if strings.TrimSpace(c.History.DBPath) == "" {
		c.History.DBPath = defaultDataDir(defaultHistoryDBName)
	}
	if c.History.DBPath, err = expandPath(c.History.DBPath); err != nil {
		return fmt.Errorf("history.db_path: %w", err)
	}
	return nil
}
