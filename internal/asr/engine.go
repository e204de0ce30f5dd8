package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"vidscribe/internal/fileutil"
	"vidscribe/internal/language"
	"vidscribe/internal/logging"
	"vidscribe/internal/proc"
	"vidscribe/internal/subtitles"
)

// Engine launcher defaults.
const (
	UVXCommand     = "uvx"
	CUDAIndexURL   = "https://download.pytorch.org/whl/cu128"
	PypiIndexURL   = "https://pypi.org/simple"
	BatchSize      = "4"
	VADMethod      = "silero"
	DefaultBeam    = 5
	warmupSeconds  = "1"
	readyMarkerExt = ".ready"
)

// EngineConfig captures the settings the WhisperX launcher needs.
type EngineConfig struct {
	// Command is the launcher binary, normally uvx.
	Command string
	// FFmpeg renders the warm-up clip used to pull model weights.
	FFmpeg string
	// ModelDir holds downloaded weights and per-model ready markers.
	ModelDir string
	// ComputeType overrides the device default when set.
	ComputeType string
	// Grace bounds how long a cancelled engine may take to exit.
	Grace time.Duration
}

// CommandRunner executes name with args. onLine receives every output line.
type CommandRunner func(ctx context.Context, onLine func(string), name string, args ...string) error

// CLIEngine loads and runs WhisperX through its command-line interface.
type CLIEngine struct {
	cfg    EngineConfig
	logger *slog.Logger
	runner CommandRunner
}

// NewCLIEngine constructs the engine.
func NewCLIEngine(cfg EngineConfig, logger *slog.Logger) *CLIEngine {
	if strings.TrimSpace(cfg.Command) == "" {
		cfg.Command = UVXCommand
	}
	if strings.TrimSpace(cfg.FFmpeg) == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	e := &CLIEngine{cfg: cfg, logger: logging.NewComponentLogger(logger, "whisperx")}
	e.runner = e.exec
	return e
}

// WithCommandRunner sets a custom command runner (for testing).
func (e *CLIEngine) WithCommandRunner(runner CommandRunner) {
	if runner != nil {
		e.runner = runner
	}
}

// Load makes sure the model weights for key are present in ModelDir. The
// first load for a model runs the engine on a one second silent clip, which
// downloads the weights, and leaves a ready marker. An exclusive file lock
// keeps concurrent vidscribe processes from downloading the same model.
func (e *CLIEngine) Load(ctx context.Context, key ModelKey) (Model, error) {
	model := &cliModel{engine: e, key: key}
	if e.cfg.ModelDir == "" {
		return model, nil
	}
	if err := os.MkdirAll(e.cfg.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure model dir: %w", err)
	}

	lock := flock.New(filepath.Join(e.cfg.ModelDir, "."+key.Size.EngineModel()+".lock"))
	locked, err := lock.TryLockContext(ctx, 250*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("lock model dir: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock model dir: not acquired")
	}
	defer func() { _ = lock.Unlock() }()

	marker := e.readyMarker(key)
	if _, err := os.Stat(marker); err == nil {
		e.logger.Debug("model weights present", logging.String("model", key.String()))
		return model, nil
	}

	warmDir, err := os.MkdirTemp(e.cfg.ModelDir, "warmup-")
	if err != nil {
		return nil, fmt.Errorf("create warm-up dir: %w", err)
	}
	defer os.RemoveAll(warmDir)

	clip := filepath.Join(warmDir, "silence.wav")
	if err := e.runner(ctx, nil, e.cfg.FFmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "lavfi", "-i", "anullsrc=r=16000:cl=mono",
		"-t", warmupSeconds, clip,
	); err != nil {
		return nil, fmt.Errorf("render warm-up clip: %w", err)
	}

	e.logger.Info("fetching model weights",
		logging.String("model", key.Size.EngineModel()),
		logging.String("model_dir", e.cfg.ModelDir),
	)
	if err := e.runner(ctx, nil, e.cfg.Command, e.buildArgs(key, clip, warmDir, Options{})...); err != nil {
		return nil, fmt.Errorf("warm up %s: %w", key.Size.EngineModel(), err)
	}
	if err := fileutil.WriteFileAtomic(marker, []byte(time.Now().UTC().Format(time.RFC3339)+"\n"), 0o644); err != nil {
		return nil, fmt.Errorf("write ready marker: %w", err)
	}
	return model, nil
}

// Cached reports whether weights for size were fetched into ModelDir on any
// device.
func (e *CLIEngine) Cached(size Size) bool {
	if e.cfg.ModelDir == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(e.cfg.ModelDir, size.EngineModel()+readyMarkerExt))
	return err == nil
}

func (e *CLIEngine) readyMarker(key ModelKey) string {
	return filepath.Join(e.cfg.ModelDir, key.Size.EngineModel()+readyMarkerExt)
}

func (e *CLIEngine) computeType(device Device) string {
	if ct := strings.TrimSpace(e.cfg.ComputeType); ct != "" {
		return ct
	}
	return device.ComputeType()
}

// buildArgs constructs the launcher arguments for one WhisperX run.
func (e *CLIEngine) buildArgs(key ModelKey, source, outputDir string, opts Options) []string {
	args := make([]string, 0, 32)
	if key.Device == DeviceCUDA {
		args = append(args, "--index-url", CUDAIndexURL, "--extra-index-url", PypiIndexURL)
	} else {
		args = append(args, "--index-url", PypiIndexURL)
	}

	beam := opts.BeamSize
	if beam <= 0 {
		beam = DefaultBeam
	}
	args = append(args,
		"whisperx",
		source,
		"--model", key.Size.EngineModel(),
		"--batch_size", BatchSize,
		"--output_dir", outputDir,
		"--output_format", "json",
		"--vad_method", VADMethod,
		"--beam_size", strconv.Itoa(beam),
		"--device", string(key.Device),
		"--compute_type", e.computeType(key.Device),
		"--print_progress", "True",
	)
	if e.cfg.ModelDir != "" {
		args = append(args, "--model_dir", e.cfg.ModelDir)
	}
	if lang := language.ToISO2(opts.Language); lang != "" {
		args = append(args, "--language", lang)
	}
	return args
}

// exec runs a command in its own process group, streaming combined output
// line by line.
func (e *CLIEngine) exec(ctx context.Context, onLine func(string), name string, args ...string) error {
	out := &proc.LineWriter{OnLine: onLine}
	cmd := proc.Command(ctx, e.cfg.Grace, name, args...)
	// Torch 2.6 changed torch.load to weights_only=true, which breaks WhisperX checkpoints.
	if os.Getenv("TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD") == "" {
		cmd.Env = append(os.Environ(), "TORCH_FORCE_NO_WEIGHTS_ONLY_LOAD=1")
	}
	cmd.Stdout = out
	cmd.Stderr = out
	err := cmd.Run()
	out.Flush()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s: %w: %s", filepath.Base(name), err, out.Tail())
	}
	return nil
}

type cliModel struct {
	engine *CLIEngine
	key    ModelKey
}

// ConcurrentSafe is false on CUDA so that two engine processes never compete
// for GPU memory.
func (m *cliModel) ConcurrentSafe() bool { return m.key.Device != DeviceCUDA }

var progressLine = regexp.MustCompile(`Progress:\s*([0-9]+(?:\.[0-9]+)?)%`)

func (m *cliModel) Transcribe(ctx context.Context, audioPath string, opts Options, progress ProgressFunc) ([]subtitles.Segment, error) {
	if strings.TrimSpace(audioPath) == "" {
		return nil, errors.New("transcribe: audio path required")
	}
	outputDir := opts.WorkDir
	if outputDir == "" {
		outputDir = filepath.Join(filepath.Dir(audioPath), "asr")
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcribe: ensure output dir: %w", err)
	}

	onLine := func(line string) {
		match := progressLine.FindStringSubmatch(line)
		if match == nil || progress == nil {
			return
		}
		if pct, err := strconv.ParseFloat(match[1], 64); err == nil {
			progress(pct / 100)
		}
	}
	args := m.engine.buildArgs(m.key, audioPath, outputDir, opts)
	if err := m.engine.runner(ctx, onLine, m.engine.cfg.Command, args...); err != nil {
		return nil, err
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	raw, err := LoadSegments(filepath.Join(outputDir, base+".json"))
	if err != nil {
		return nil, err
	}
	segs := make([]subtitles.Segment, 0, len(raw))
	for _, seg := range raw {
		segs = append(segs, subtitles.Segment{Start: seg.Start, End: seg.End, Text: seg.Text})
	}
	return segs, nil
}

// Word is a single word with timing from WhisperX output.
type Word struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is a transcribed segment from WhisperX JSON output.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Words []Word  `json:"words"`
}

type whisperXPayload struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language"`
}

// LoadSegments loads segments from a WhisperX JSON file.
func LoadSegments(jsonPath string) ([]Segment, error) {
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read whisperx json: %w", err)
	}
	var payload whisperXPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisperx json: %w", err)
	}
	return payload.Segments, nil
}
