package task

import (
	"fmt"
	"strings"

	"vidscribe/internal/asr"
	"vidscribe/internal/config"
	"vidscribe/internal/fetcher"
	"vidscribe/internal/language"
	"vidscribe/internal/services"
	"vidscribe/internal/subtitles"
)

// Options are the per-request settings.
type Options struct {
	OutputFormat   string
	ModelSize      string
	Device         string
	Language       string
	BeamSize       int
	Proxy          string
	UseCredentials bool
	OutputDir      string
	// ForceASR skips the caption path regardless of availability.
	ForceASR bool
	// SubtitlesEnabled allows caption tracks to be used at all.
	SubtitlesEnabled    bool
	SubtitleLanguages   []string
	IncludeAutoCaptions bool
	LanguageMismatch    string
	// FallbackToASR re-acquires audio when a caption track cannot be decoded.
	FallbackToASR bool
	// WithTimestamps selects "[start -> end] text" lines for plain-text
	// output; when false, plain text is rendered as paragraphs.
	WithTimestamps bool
}

// OptionsFromConfig seeds Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		d := config.Default()
		cfg = &d
	}
	return Options{
		OutputFormat:        cfg.Transcription.OutputFormat,
		ModelSize:           cfg.Transcription.ModelSize,
		Device:              cfg.Transcription.Device,
		Language:            cfg.Transcription.Language,
		BeamSize:            cfg.Transcription.BeamSize,
		Proxy:               cfg.Download.Proxy,
		UseCredentials:      cfg.Download.UseCredentials,
		OutputDir:           cfg.Paths.OutputDir,
		SubtitlesEnabled:    cfg.Subtitles.Enabled,
		SubtitleLanguages:   append([]string(nil), cfg.Subtitles.LanguagePriority...),
		IncludeAutoCaptions: cfg.Subtitles.IncludeAutoCaptions,
		LanguageMismatch:    cfg.Subtitles.LanguageMismatch,
		FallbackToASR:       cfg.Subtitles.FallbackToASROnDecodeError,
		WithTimestamps:      cfg.Transcription.WithTimestamps,
	}
}

// resolved is Options after parsing, ready for the stages.
type resolved struct {
	format    subtitles.Format
	key       asr.ModelKey
	language  string
	mismatch  fetcher.MismatchPolicy
	outputDir string
}

func (o Options) resolve() (resolved, error) {
	var r resolved
	invalid := func(op string, err error) error {
		return services.Wrap(services.ErrInvalidInput, "queued", op, "", err)
	}

	format, err := subtitles.ParseFormat(o.OutputFormat)
	if err != nil {
		return r, invalid("output format", err)
	}
	size, err := asr.ParseSize(o.ModelSize)
	if err != nil {
		return r, invalid("model size", err)
	}
	device, err := asr.ParseDevice(o.Device)
	if err != nil {
		return r, invalid("device", err)
	}
	lang := strings.TrimSpace(o.Language)
	if lang == "" || strings.EqualFold(lang, language.Auto) {
		lang = language.Auto
	} else if iso := language.ToISO2(lang); iso != "" {
		lang = iso
	} else {
		return r, invalid("language", fmt.Errorf("unrecognized language %q", o.Language))
	}
	mismatch := fetcher.PreferSubtitle
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(o.LanguageMismatch)), "-", "_") {
	case "", string(fetcher.PreferSubtitle):
	case string(fetcher.ForceASR):
		mismatch = fetcher.ForceASR
	default:
		return r, invalid("language mismatch", fmt.Errorf("unknown policy %q", o.LanguageMismatch))
	}
	outputDir := strings.TrimSpace(o.OutputDir)
	if outputDir == "" {
		return r, invalid("output dir", fmt.Errorf("output directory is required"))
	}

	r.format = format
	r.key = asr.ModelKey{Size: size, Device: device}
	r.language = lang
	r.mismatch = mismatch
	r.outputDir = outputDir
	return r, nil
}
