package main

import (
	"strings"
	"testing"

	"vidscribe/internal/testsupport"
)

func TestDepsCommand(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithStubbedBinaries())

	out, _, err := runCLI(t, []string{"deps"}, env.configPath)
	if err != nil {
		t.Fatalf("deps: %v\n%s", err, out)
	}
	if line := lineContaining(out, "yt-dlp"); !strings.Contains(line, "ok") {
		t.Fatalf("expected yt-dlp available, got %q", line)
	}

	env.cfg.Transcription.EngineCommand = "vidscribe-missing-engine"
	env.writeConfig(t)
	out, _, err = runCLI(t, []string{"deps"}, env.configPath)
	if err == nil {
		t.Fatal("expected missing engine to fail")
	}
	requireContains(t, err.Error(), "WhisperX launcher")
	requireContains(t, out, "MISSING")
}
