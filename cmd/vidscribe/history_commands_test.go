package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"vidscribe/internal/queue"
	"vidscribe/internal/testsupport"
)

func seedHistory(t *testing.T, env *cliTestEnv) {
	t.Helper()
	store := testsupport.MustOpenStore(t, env.cfg)
	now := time.Now().UTC()
	records := []queue.Record{
		{
			TaskID: "aaaa1111-0000-4000-8000-000000000001", URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
			Title: "Demo Talk", Outcome: queue.OutcomeDone, OutputPath: "/tmp/Demo Talk-aaaa1111.srt",
			Format: "srt", Model: "base", PathUsed: queue.PathSubtitle,
			StartedAt: now.Add(-2 * time.Minute), FinishedAt: now.Add(-time.Minute),
		},
		{
			TaskID: "bbbb2222-0000-4000-8000-000000000002", URL: "https://www.bilibili.com/video/BV1xx411c7mD",
			Title: "Members Only", Outcome: queue.OutcomeFailed, ErrorKind: "AcquisitionFailed",
			ErrorMessage: "auth: probe: sign in required", Format: "text", Model: "base",
			StartedAt: now.Add(-30 * time.Second), FinishedAt: now,
		},
	}
	for _, rec := range records {
		if err := store.Record(context.Background(), rec); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}
}

func TestHistoryListAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env)

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "2 tasks: 1 done, 1 failed, 0 cancelled")
	if strings.Index(out, "bbbb2222") > strings.Index(out, "aaaa1111") {
		t.Fatalf("expected newest task first:\n%s", out)
	}
	if line := lineContaining(out, "bbbb2222"); !strings.Contains(line, "AcquisitionFailed") {
		t.Fatalf("expected error kind for failed task, got %q", line)
	}

	out, _, err = runCLI(t, []string{"history", "--limit", "1"}, env.configPath)
	if err != nil {
		t.Fatalf("history --limit: %v", err)
	}
	if strings.Contains(out, "aaaa1111") {
		t.Fatalf("expected limit to drop the older task:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"history", "show", "aaaa"}, env.configPath)
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	requireContains(t, out, "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	requireContains(t, out, "subtitle")
	requireContains(t, out, "Elapsed:")

	if _, _, err := runCLI(t, []string{"history", "show", "zzzz"}, env.configPath); err == nil {
		t.Fatal("expected unknown id to fail")
	}
}

func TestHistoryRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	seedHistory(t, env)

	out, _, err := runCLI(t, []string{"history", "rm", "bbbb2222"}, env.configPath)
	if err != nil {
		t.Fatalf("history rm: %v", err)
	}
	requireContains(t, out, "Removed bbbb2222-0000-4000-8000-000000000002")

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if strings.Contains(out, "bbbb2222") {
		t.Fatalf("expected removed task gone:\n%s", out)
	}
}

func TestHistoryDisabled(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithHistoryDisabled())
	if _, _, err := runCLI(t, []string{"history"}, env.configPath); err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Fatalf("expected disabled error, got %v", err)
	}
}
