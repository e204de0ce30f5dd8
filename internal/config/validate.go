package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateSubtitles(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ModelDir) == "" {
		return errors.New("paths.model_dir must be set")
	}
	if c.History.Enabled && strings.TrimSpace(c.History.DBPath) == "" {
		return errors.New("history.db_path must be set when history.enabled is true")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	t := c.Transcription
	if err := ensureOneOf("transcription.output_format", t.OutputFormat, OutputFormats); err != nil {
		return err
	}
	if err := ensureOneOf("transcription.model_size", t.ModelSize, ModelSizes); err != nil {
		return err
	}
	if err := ensureOneOf("transcription.device", t.Device, Devices); err != nil {
		return err
	}
	switch t.ComputeType {
	case "", "int8", "int8_float16", "float16", "float32":
	default:
		return fmt.Errorf("transcription.compute_type must be one of int8, int8_float16, float16, float32 (got %q)", t.ComputeType)
	}
	if t.ComputeType == "float16" && t.Device == "cpu" {
		return errors.New("transcription.compute_type float16 requires device cuda or auto")
	}
	if t.BeamSize > 20 {
		return errors.New("transcription.beam_size must be between 1 and 20")
	}
	return nil
}

func (c *Config) validateDownload() error {
	d := c.Download
	if d.Proxy != "" {
		lower := strings.ToLower(d.Proxy)
		if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") &&
			!strings.HasPrefix(lower, "socks5://") && !strings.HasPrefix(lower, "socks5h://") {
			return fmt.Errorf("download.proxy must be an http(s) or socks5 URL (got %q)", d.Proxy)
		}
	}
	if d.RetryBackoffMS > 60000 {
		return errors.New("download.retry_backoff_ms must be at most 60000")
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	return ensureOneOf("subtitles.language_mismatch", c.Subtitles.LanguageMismatch, LanguageMismatches)
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error (got %q)", c.Logging.Level)
	}
}

func ensureOneOf(key, value string, allowed []string) error {
	if slices.Contains(allowed, value) {
		return nil
	}
	return fmt.Errorf("%s must be one of %s (got %q)", key, strings.Join(allowed, ", "), value)
}
