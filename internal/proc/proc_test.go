package proc_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/proc"
)

func TestLineWriterSplitsOnNewlineAndCarriageReturn(t *testing.T) {
	var got []string
	w := &proc.LineWriter{OnLine: func(line string) { got = append(got, line) }, Keep: 2}
	fmt.Fprint(w, "first\n[download]  10.0%\r[download]  20.0%\r\n\npartial")
	w.Flush()

	want := []string{"first", "[download]  10.0%", "[download]  20.0%", "partial"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("unexpected lines %q", got)
	}
	if tail := w.Tail(); tail != "[download]  20.0%\npartial" {
		t.Fatalf("unexpected tail %q", tail)
	}
}

func TestCommandCancelStopsProcessGroup(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "terminated")
	script := filepath.Join(dir, "slow.sh")
	body := "#!/bin/sh\ntrap 'touch " + marker + "; exit 143' TERM\nsleep 30 &\nwait\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := proc.Command(ctx, 2*time.Second, script)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(200 * time.Millisecond)
	started := time.Now()
	cancel()
	if err := cmd.Wait(); err == nil {
		t.Fatal("expected error from cancelled command")
	}
	if elapsed := time.Since(started); elapsed > 5*time.Second {
		t.Fatalf("cancellation took %s", elapsed)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Fatalf("expected TERM trap to run before exit: %v", err)
	}
}
