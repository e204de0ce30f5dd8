package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	OutputDir     string `toml:"output_dir"`
	WorkDir       string `toml:"work_dir"`
	LogDir        string `toml:"log_dir"`
	ModelDir      string `toml:"model_dir"`
	KeepWorkFiles bool   `toml:"keep_work_files"`
}

// Transcription contains output and speech recognition settings.
type Transcription struct {
	OutputFormat   string `toml:"output_format"`
	ModelSize      string `toml:"model_size"`
	Device         string `toml:"device"`
	Language       string `toml:"language"`
	ComputeType    string `toml:"compute_type"`
	BeamSize       int    `toml:"beam_size"`
	EngineCommand  string `toml:"engine_command"`
	WithTimestamps bool   `toml:"with_timestamps"`
}

// Download contains media fetcher settings.
type Download struct {
	Proxy             string `toml:"proxy"`
	UseCredentials    bool   `toml:"use_credentials"`
	CredentialBrowser string `toml:"credential_browser"`
	FetcherCommand    string `toml:"fetcher_command"`
	FFmpegCommand     string `toml:"ffmpeg_command"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	RetryBackoffMS    int    `toml:"retry_backoff_ms"`
}

// Subtitles contains the subtitle-priority policy.
type Subtitles struct {
	Enabled                    bool     `toml:"enabled"`
	LanguagePriority           []string `toml:"language_priority"`
	IncludeAutoCaptions        bool     `toml:"include_auto_captions"`
	LanguageMismatch           string   `toml:"language_mismatch"`
	FallbackToASROnDecodeError bool     `toml:"fallback_to_asr_on_decode_error"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// History contains configuration for the terminal-result store.
type History struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// Config encapsulates all configuration values for vidscribe.
//
// Configuration sections by subsystem:
//   - Paths: output, scratch, log, and model directories
//   - Transcription: output format and ASR model selection
//   - Download: proxy, credential import, and fetcher binaries
//   - Subtitles: subtitle-priority and language policy
//   - Logging: log format, level, and retention
//   - History: sqlite record of finished tasks
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Download      Download      `toml:"download"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Logging       Logging       `toml:"logging"`
	History       History       `toml:"history"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			var strict *toml.StrictMissingError
			if errors.As(err, &strict) {
				return nil, "", false, fmt.Errorf("parse config: %s", strings.TrimSpace(strict.String()))
			}
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vidscribe.toml")
	if err != nil {
		return "", false, err
	}

	for _, candidate := range []string{defaultPath, projectPath} {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories a run writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.OutputDir, c.Paths.WorkDir, c.Paths.LogDir, c.Paths.ModelDir}
	if c.History.Enabled {
		dirs = append(dirs, filepath.Dir(c.History.DBPath))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FetcherBinary returns the media fetcher executable name.
func (c *Config) FetcherBinary() string {
	if cmd := strings.TrimSpace(c.Download.FetcherCommand); cmd != "" {
		return cmd
	}
	return defaultFetcherCommand
}

// FFmpegBinary returns the transcoder executable the fetcher hands audio to.
func (c *Config) FFmpegBinary() string {
	if cmd := strings.TrimSpace(c.Download.FFmpegCommand); cmd != "" {
		return cmd
	}
	return defaultFFmpegCommand
}

// EngineBinary returns the ASR engine launcher executable name.
func (c *Config) EngineBinary() string {
	if cmd := strings.TrimSpace(c.Transcription.EngineCommand); cmd != "" {
		return cmd
	}
	return defaultEngineCommand
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultDataDir(sub string) string {
	if base, ok := os.LookupEnv("XDG_DATA_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "vidscribe", sub)
	}
	return "~/.local/share/vidscribe/" + sub
}

func defaultCacheDir(sub string) string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "vidscribe", sub)
	}
	return "~/.cache/vidscribe/" + sub
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
