package asr_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"vidscribe/internal/asr"
	"vidscribe/internal/subtitles"
	"vidscribe/internal/testsupport"
)

type recordedCall struct {
	name string
	args []string
}

type fakeRunner struct {
	mu    sync.Mutex
	calls []recordedCall
	lines []string
	json  string
}

func (r *fakeRunner) run(_ context.Context, onLine func(string), name string, args ...string) error {
	r.mu.Lock()
	r.calls = append(r.calls, recordedCall{name: name, args: append([]string(nil), args...)})
	r.mu.Unlock()

	if name == "ffmpeg" {
		return os.WriteFile(args[len(args)-1], []byte("RIFF"), 0o644)
	}
	for _, line := range r.lines {
		if onLine != nil {
			onLine(line)
		}
	}
	source := args[slices.Index(args, "whisperx")+1]
	outDir := args[slices.Index(args, "--output_dir")+1]
	base := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	payload := r.json
	if payload == "" {
		payload = `{"segments":[]}`
	}
	return os.WriteFile(filepath.Join(outDir, base+".json"), []byte(payload), 0o644)
}

func argValue(args []string, flag string) string {
	if i := slices.Index(args, flag); i >= 0 && i+1 < len(args) {
		return args[i+1]
	}
	return ""
}

func TestCLIEngineLoadWarmsModelOnce(t *testing.T) {
	modelDir := t.TempDir()
	runner := &fakeRunner{}
	engine := asr.NewCLIEngine(asr.EngineConfig{ModelDir: modelDir}, nil)
	engine.WithCommandRunner(runner.run)
	key := asr.ModelKey{Size: asr.SizeLarge, Device: asr.DeviceCUDA}

	if engine.Cached(asr.SizeLarge) {
		t.Fatal("expected model not cached before load")
	}
	model, err := engine.Load(context.Background(), key)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if model.ConcurrentSafe() {
		t.Fatal("expected cuda models to be serialized")
	}
	if len(runner.calls) != 2 || runner.calls[0].name != "ffmpeg" || runner.calls[1].name != asr.UVXCommand {
		t.Fatalf("unexpected warm-up calls %+v", runner.calls)
	}
	warm := runner.calls[1].args
	if argValue(warm, "--model") != "large-v3" || argValue(warm, "--compute_type") != "float16" {
		t.Fatalf("unexpected warm-up args %v", warm)
	}
	if argValue(warm, "--index-url") != asr.CUDAIndexURL || argValue(warm, "--model_dir") != modelDir {
		t.Fatalf("unexpected warm-up args %v", warm)
	}
	if !engine.Cached(asr.SizeLarge) {
		t.Fatal("expected ready marker after load")
	}

	if _, err := engine.Load(context.Background(), key); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if len(runner.calls) != 2 {
		t.Fatalf("expected no warm-up on second load, got %d calls", len(runner.calls))
	}
	entries, _ := os.ReadDir(modelDir)
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), "warmup-") {
			t.Fatalf("warm-up dir %s left behind", entry.Name())
		}
	}
}

func TestCLIModelTranscribeReportsProgressAndSegments(t *testing.T) {
	runner := &fakeRunner{
		lines: []string{"Performing transcription...", "Progress: 25.00%...", "Progress: 100.00%..."},
		json:  `{"segments":[{"start":0.5,"end":1.75,"text":" hello world","words":[{"word":"hello","start":0.5,"end":1.0}]}],"language":"zh"}`,
	}
	engine := asr.NewCLIEngine(asr.EngineConfig{}, nil)
	engine.WithCommandRunner(runner.run)
	model, err := engine.Load(context.Background(), asr.ModelKey{Size: asr.SizeTiny, Device: asr.DeviceCPU})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	audio := filepath.Join(t.TempDir(), "audio.mp3")
	testsupport.WriteFile(t, audio, 16)
	var reports []float64
	segs, err := model.Transcribe(context.Background(), audio, asr.Options{Language: "Chinese", BeamSize: 3}, func(f float64) {
		reports = append(reports, f)
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	want := []subtitles.Segment{{Start: 0.5, End: 1.75, Text: " hello world"}}
	if !slices.Equal(segs, want) {
		t.Fatalf("unexpected segments %+v", segs)
	}
	if !slices.Equal(reports, []float64{0.25, 1}) {
		t.Fatalf("unexpected progress %v", reports)
	}

	args := runner.calls[len(runner.calls)-1].args
	if argValue(args, "--language") != "zh" || argValue(args, "--beam_size") != "3" {
		t.Fatalf("unexpected args %v", args)
	}
	if argValue(args, "--device") != "cpu" || argValue(args, "--compute_type") != "int8" {
		t.Fatalf("unexpected device args %v", args)
	}
	if slices.Contains(args, "--model_dir") {
		t.Fatalf("model_dir should be omitted when unset: %v", args)
	}
}

func TestCLIEngineRunsExternalCommand(t *testing.T) {
	dir := t.TempDir()
	script := testsupport.WriteScript(t, dir, "fake-uvx", `out=""; src=""
while [ $# -gt 0 ]; do
  case "$1" in
    --output_dir) out="$2"; shift 2;;
    whisperx) src="$2"; shift 2;;
    *) shift;;
  esac
done
base=$(basename "$src"); base="${base%.*}"
echo "Progress: 40.00%..."
echo "Progress: 100.00%..." >&2
printf '{"segments":[{"start":0.0,"end":1.5,"text":"hello"}]}' > "$out/$base.json"
`)
	engine := asr.NewCLIEngine(asr.EngineConfig{Command: script}, nil)
	model, err := engine.Load(context.Background(), asr.ModelKey{Size: asr.SizeBase, Device: asr.DeviceCPU})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	audio := filepath.Join(dir, "clip.wav")
	testsupport.WriteFile(t, audio, 16)

	var last float64
	segs, err := model.Transcribe(context.Background(), audio, asr.Options{}, func(f float64) { last = f })
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if len(segs) != 1 || segs[0].Text != "hello" {
		t.Fatalf("unexpected segments %+v", segs)
	}
	if last != 1 {
		t.Fatalf("expected final progress 1, got %v", last)
	}

	failing := testsupport.WriteScript(t, dir, "broken-uvx", "echo 'CUDA out of memory' >&2\nexit 1\n")
	engine = asr.NewCLIEngine(asr.EngineConfig{Command: failing}, nil)
	model, _ = engine.Load(context.Background(), asr.ModelKey{Size: asr.SizeBase, Device: asr.DeviceCPU})
	if _, err := model.Transcribe(context.Background(), audio, asr.Options{}, nil); err == nil || !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("expected engine stderr in error, got %v", err)
	}
}
