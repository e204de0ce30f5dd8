package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"vidscribe/internal/logging"
	"vidscribe/internal/proc"
	"vidscribe/internal/services"
	"vidscribe/internal/urlnorm"
)

// Output file stems inside the request directory.
const (
	SubtitleStem = "subtitle"
	AudioStem    = "audio"
	AudioFormat  = "mp3"
	AudioQuality = "192K"
)

// YTDLPConfig holds the binaries and limits for the yt-dlp fetcher.
type YTDLPConfig struct {
	Binary string
	// FFmpeg is passed as --ffmpeg-location unless it is the bare default.
	FFmpeg string
	// Browser names the cookie source for --cookies-from-browser.
	Browser string
	// Timeout bounds a single yt-dlp invocation; zero means no limit.
	Timeout time.Duration
	Grace   time.Duration
}

// Runner executes name with args, delivering stdout and stderr line by line.
type Runner func(ctx context.Context, onStdout, onStderr func(string), name string, args ...string) error

// YTDLP implements Fetcher with the yt-dlp command-line downloader.
type YTDLP struct {
	cfg    YTDLPConfig
	logger *slog.Logger
	runner Runner
}

// NewYTDLP constructs the fetcher.
func NewYTDLP(cfg YTDLPConfig, logger *slog.Logger) *YTDLP {
	if strings.TrimSpace(cfg.Binary) == "" {
		cfg.Binary = "yt-dlp"
	}
	if strings.TrimSpace(cfg.Browser) == "" {
		cfg.Browser = "chrome"
	}
	y := &YTDLP{cfg: cfg, logger: logging.NewComponentLogger(logger, "yt-dlp")}
	y.runner = y.exec
	return y
}

// WithRunner replaces the process runner (for testing).
func (y *YTDLP) WithRunner(runner Runner) {
	if runner != nil {
		y.runner = runner
	}
}

type probePayload struct {
	ID                string                     `json:"id"`
	Title             string                     `json:"title"`
	Duration          float64                    `json:"duration"`
	WebpageURL        string                     `json:"webpage_url"`
	ExtractorKey      string                     `json:"extractor_key"`
	Subtitles         map[string]json.RawMessage `json:"subtitles"`
	AutomaticCaptions map[string]json.RawMessage `json:"automatic_captions"`
}

// Probe reads video metadata and the available caption tracks.
func (y *YTDLP) Probe(ctx context.Context, url string, opts Options) (ProbeResult, error) {
	var payload []byte
	args := append(y.baseArgs(opts), "--dump-single-json", "--skip-download", "--no-playlist", url)
	onStdout := func(line string) {
		if strings.HasPrefix(line, "{") {
			payload = []byte(line)
		}
	}
	if err := y.run(ctx, "probe", onStdout, nil, args...); err != nil {
		return ProbeResult{}, err
	}
	if payload == nil {
		return ProbeResult{}, fmt.Errorf("%w: yt-dlp printed no metadata", services.ErrExternalTool)
	}
	var parsed probePayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return ProbeResult{}, fmt.Errorf("%w: parse metadata: %v", services.ErrExternalTool, err)
	}

	platform := urlnorm.DetectPlatform(url)
	if platform == urlnorm.PlatformGeneric && parsed.WebpageURL != "" {
		platform = urlnorm.DetectPlatform(parsed.WebpageURL)
	}
	return ProbeResult{
		ID:         parsed.ID,
		Title:      strings.TrimSpace(parsed.Title),
		Duration:   parsed.Duration,
		Platform:   platform,
		WebpageURL: parsed.WebpageURL,
		Manual:     sortedKeys(parsed.Subtitles),
		Auto:       sortedKeys(parsed.AutomaticCaptions),
	}, nil
}

// FetchSubtitle downloads one caption track into dir, preferring WebVTT.
func (y *YTDLP) FetchSubtitle(ctx context.Context, url string, track Track, dir string, opts Options, progress ProgressFunc) (SubtitleArtifact, error) {
	args := y.baseArgs(opts)
	if track.Auto {
		args = append(args, "--write-auto-subs")
	} else {
		args = append(args, "--write-subs")
	}
	args = append(args,
		"--sub-langs", track.Language,
		"--sub-format", "vtt/srt/best",
		"--skip-download",
		"--no-playlist",
		"-o", filepath.Join(dir, SubtitleStem+".%(ext)s"),
		url,
	)
	parse := progressParser(progress)
	if err := y.run(ctx, "fetch subtitle", parse, parse, args...); err != nil {
		return SubtitleArtifact{}, err
	}

	matches, _ := filepath.Glob(filepath.Join(dir, SubtitleStem+".*"))
	for _, ext := range []string{"vtt", "srt"} {
		for _, path := range matches {
			if strings.EqualFold(filepath.Ext(path), "."+ext) {
				return SubtitleArtifact{Path: path, Track: track, Ext: ext}, nil
			}
		}
	}
	return SubtitleArtifact{}, fmt.Errorf("%w: caption track %s was not written", services.ErrNotFound, track)
}

// FetchAudio downloads the best audio stream and converts it to mp3.
func (y *YTDLP) FetchAudio(ctx context.Context, url, dir string, opts Options, progress ProgressFunc) (AudioArtifact, error) {
	var printed string
	parse := progressParser(progress)
	onStdout := func(line string) {
		if filepath.IsAbs(line) {
			printed = line
			return
		}
		parse(line)
	}
	args := append(y.baseArgs(opts),
		"-f", "bestaudio/best",
		"-x",
		"--audio-format", AudioFormat,
		"--audio-quality", AudioQuality,
		"--no-playlist",
		"--no-simulate",
		"--progress",
		"--print", "after_move:filepath",
		"-o", filepath.Join(dir, AudioStem+".%(ext)s"),
		url,
	)
	if err := y.run(ctx, "fetch audio", onStdout, parse, args...); err != nil {
		return AudioArtifact{}, err
	}

	path := printed
	if path == "" {
		path = filepath.Join(dir, AudioStem+"."+AudioFormat)
	}
	if _, err := os.Stat(path); err != nil {
		return AudioArtifact{}, fmt.Errorf("%w: audio file not produced: %v", services.ErrNotFound, err)
	}
	return AudioArtifact{Path: path}, nil
}

func (y *YTDLP) baseArgs(opts Options) []string {
	args := []string{
		"--newline",
		"--no-color",
		"--progress-template", "download:[progress] %(progress._percent_str)s",
	}
	if proxy := strings.TrimSpace(opts.Proxy); proxy != "" {
		args = append(args, "--proxy", proxy)
	}
	if opts.UseCredentials {
		args = append(args, "--cookies-from-browser", y.cfg.Browser)
	}
	if ffmpeg := strings.TrimSpace(y.cfg.FFmpeg); ffmpeg != "" && ffmpeg != "ffmpeg" {
		args = append(args, "--ffmpeg-location", ffmpeg)
	}
	return args
}

// run executes one yt-dlp invocation under the configured timeout and maps
// its failure to a transport class.
func (y *YTDLP) run(ctx context.Context, op string, onStdout, onStderr func(string), args ...string) error {
	runCtx := ctx
	if y.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, y.cfg.Timeout)
		defer cancel()
	}

	started := time.Now()
	var stderr []string
	collect := func(line string) {
		stderr = append(stderr, line)
		if len(stderr) > 40 {
			stderr = stderr[1:]
		}
		if onStderr != nil {
			onStderr(line)
		}
	}
	err := y.runner(runCtx, onStdout, collect, y.cfg.Binary, args...)
	logger := logging.WithContext(ctx, y.logger)
	if err == nil {
		logger.Debug("yt-dlp finished", logging.String("operation", op), logging.Duration("elapsed", time.Since(started)))
		return nil
	}

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case runCtx.Err() != nil:
		return fmt.Errorf("%w: %s exceeded %s", services.ErrTimeout, op, y.cfg.Timeout)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s not found on PATH", services.ErrConfiguration, y.cfg.Binary)
	}
	message := lastError(stderr)
	class := Classify(strings.Join(stderr, "\n"))
	logger.Debug("yt-dlp failed",
		logging.String("operation", op),
		logging.String("class", class.Error()),
		logging.String("detail", message),
	)
	return fmt.Errorf("%w: %s: %s", class, op, message)
}

func (y *YTDLP) exec(ctx context.Context, onStdout, onStderr func(string), name string, args ...string) error {
	stdout := &proc.LineWriter{OnLine: onStdout}
	stderr := &proc.LineWriter{OnLine: onStderr}
	cmd := proc.Command(ctx, y.cfg.Grace, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()
	return err
}

var progressPattern = regexp.MustCompile(`^\[(?:progress|download)\]\s+([0-9]+(?:\.[0-9]+)?)%`)

// progressParser turns yt-dlp progress lines into fractions. The returned
// func may be shared by the stdout and stderr readers.
func progressParser(progress ProgressFunc) func(string) {
	var mu sync.Mutex
	return func(line string) {
		if progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		match := progressPattern.FindStringSubmatch(strings.TrimSpace(line))
		if match == nil {
			return
		}
		if pct, err := strconv.ParseFloat(match[1], 64); err == nil {
			progress(pct / 100)
		}
	}
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func lastError(lines []string) string {
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.HasPrefix(lines[i], "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(lines[i], "ERROR:"))
		}
	}
	if len(lines) > 0 {
		return lines[len(lines)-1]
	}
	return "exited with an error"
}
