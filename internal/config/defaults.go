package config

const (
	defaultConfigPath        = "~/.config/vidscribe/config.toml"
	defaultOutputDir         = "~/Transcripts"
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultOutputFormat      = "text"
	defaultModelSize         = "base"
	defaultDevice            = "auto"
	defaultLanguage          = "auto"
	defaultBeamSize          = 5
	defaultEngineCommand     = "uvx"
	defaultFetcherCommand    = "yt-dlp"
	defaultFFmpegCommand     = "ffmpeg"
	defaultCredentialBrowser = "chrome"
	defaultDownloadTimeout   = 1800
	defaultRetryBackoffMS    = 2000
	defaultLanguageMismatch  = "prefer_subtitle"
	defaultHistoryDBName     = "history.db"
)

// Recognized enumerations, shared with validation and the CLI.
var (
	OutputFormats      = []string{"text", "srt", "vtt"}
	ModelSizes         = []string{"tiny", "base", "small", "medium", "large"}
	Devices            = []string{"auto", "cpu", "cuda"}
	LanguageMismatches = []string{"prefer_subtitle", "force_asr"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			OutputDir: defaultOutputDir,
			WorkDir:   defaultCacheDir("work"),
			LogDir:    defaultDataDir("logs"),
			ModelDir:  defaultCacheDir("models"),
		},
		Transcription: Transcription{
			OutputFormat:   defaultOutputFormat,
			ModelSize:      defaultModelSize,
			Device:         defaultDevice,
			Language:       defaultLanguage,
			BeamSize:       defaultBeamSize,
			EngineCommand:  defaultEngineCommand,
			WithTimestamps: true,
		},
		Download: Download{
			UseCredentials:    true,
			CredentialBrowser: defaultCredentialBrowser,
			FetcherCommand:    defaultFetcherCommand,
			FFmpegCommand:     defaultFFmpegCommand,
			TimeoutSeconds:    defaultDownloadTimeout,
			RetryBackoffMS:    defaultRetryBackoffMS,
		},
		Subtitles: Subtitles{
			Enabled:             true,
			IncludeAutoCaptions: true,
			LanguageMismatch:    defaultLanguageMismatch,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		History: History{
			Enabled: true,
			DBPath:  defaultDataDir(defaultHistoryDBName),
		},
	}
}
