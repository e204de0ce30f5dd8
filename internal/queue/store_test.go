package queue_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vidscribe/internal/queue"
	"vidscribe/internal/testsupport"
)

func sampleRecord(id string, outcome queue.Outcome, finished time.Time) queue.Record {
	return queue.Record{
		TaskID:     id,
		URL:        "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Title:      "Demo",
		Outcome:    outcome,
		Format:     "srt",
		Model:      "base",
		PathUsed:   queue.PathASR,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestRecordAndGet(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	finished := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rec := sampleRecord("task-1", queue.OutcomeDone, finished)
	rec.OutputPath = "/tmp/Demo-task1.srt"
	if err := store.Record(ctx, rec); err != nil {
		t.Fatalf("Record: %v", err)
	}

	got, err := store.Get(ctx, "task-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected stored record")
	}
	if got.OutputPath != rec.OutputPath || got.PathUsed != queue.PathASR || got.Outcome != queue.OutcomeDone {
		t.Fatalf("unexpected record %+v", got)
	}
	if !got.FinishedAt.Equal(finished) || got.Elapsed() != time.Minute {
		t.Fatalf("timestamps not preserved: %+v", got)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("expected nil record for unknown id, got %+v err=%v", missing, err)
	}
}

func TestRecordKeepsLatestResultPerTask(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now()

	failed := sampleRecord("task-1", queue.OutcomeFailed, now)
	failed.ErrorKind = "AcquisitionFailed"
	failed.ErrorMessage = "connection reset"
	if err := store.Record(ctx, failed); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	done := sampleRecord("task-1", queue.OutcomeDone, now.Add(time.Second))
	if err := store.Record(ctx, done); err != nil {
		t.Fatalf("Record done: %v", err)
	}

	records, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	if records[0].Outcome != queue.OutcomeDone || records[0].ErrorKind != "" {
		t.Fatalf("expected latest result to replace earlier one, got %+v", records[0])
	}
}

func TestRecordRejectsNonTerminalOutcome(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	rec := sampleRecord("task-1", queue.Outcome("transcribing"), time.Now())
	if err := store.Record(context.Background(), rec); err == nil {
		t.Fatal("expected error for non-terminal outcome")
	}
	rec = sampleRecord("", queue.OutcomeDone, time.Now())
	if err := store.Record(context.Background(), rec); err == nil {
		t.Fatal("expected error for empty task id")
	}
}

func TestListOrdersNewestFirstAndSummarizes(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, outcome := range []queue.Outcome{queue.OutcomeDone, queue.OutcomeFailed, queue.OutcomeCancelled, queue.OutcomeDone} {
		id := "task-" + string(rune('a'+i))
		if err := store.Record(ctx, sampleRecord(id, outcome, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	records, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 2 || records[0].TaskID != "task-d" || records[1].TaskID != "task-c" {
		t.Fatalf("unexpected order %+v", records)
	}

	summary, err := store.Summarize(ctx)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary != (queue.Summary{Total: 4, Done: 2, Failed: 1, Cancelled: 1}) {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestFindByPrefix(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"3f2a9c10-aaaa", "3f2b0000-bbbb", "7c00_ffff"} {
		if err := store.Record(ctx, sampleRecord(id, queue.OutcomeDone, time.Now())); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	rec, err := store.FindByPrefix(ctx, "3f2a")
	if err != nil || rec == nil || rec.TaskID != "3f2a9c10-aaaa" {
		t.Fatalf("expected unique prefix match, got %+v err=%v", rec, err)
	}
	if _, err := store.FindByPrefix(ctx, "3f2"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("expected ambiguity error, got %v", err)
	}
	if rec, err := store.FindByPrefix(ctx, "7c00%"); err != nil || rec != nil {
		t.Fatalf("expected LIKE wildcards to be literal, got %+v err=%v", rec, err)
	}
	if rec, err := store.FindByPrefix(ctx, "7c00_"); err != nil || rec == nil {
		t.Fatalf("expected literal underscore prefix to match, got %+v err=%v", rec, err)
	}
}

func TestDeleteAndPrune(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()
	now := time.Now()

	if err := store.Record(ctx, sampleRecord("old", queue.OutcomeDone, now.AddDate(0, 0, -30))); err != nil {
		t.Fatalf("Record old: %v", err)
	}
	if err := store.Record(ctx, sampleRecord("new", queue.OutcomeDone, now)); err != nil {
		t.Fatalf("Record new: %v", err)
	}

	removed, err := store.Prune(ctx, now.AddDate(0, 0, -7))
	if err != nil || removed != 1 {
		t.Fatalf("Prune removed %d err=%v", removed, err)
	}
	deleted, err := store.Delete(ctx, "new")
	if err != nil || !deleted {
		t.Fatalf("Delete = %v err=%v", deleted, err)
	}
	deleted, err = store.Delete(ctx, "new")
	if err != nil || deleted {
		t.Fatalf("second Delete = %v err=%v", deleted, err)
	}
}

func TestOpenDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryDisabled())
	if _, err := queue.Open(cfg); !errors.Is(err, queue.ErrDisabled) {
		t.Fatalf("expected ErrDisabled, got %v", err)
	}
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "history.db")
	store, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	if err := store.Record(context.Background(), sampleRecord("task-1", queue.OutcomeCancelled, time.Now())); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := queue.OpenPath(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	rec, err := reopened.Get(context.Background(), "task-1")
	if err != nil || rec == nil || rec.Outcome != queue.OutcomeCancelled {
		t.Fatalf("expected persisted record, got %+v err=%v", rec, err)
	}
}

func TestConcurrentRecords(t *testing.T) {
	store := testsupport.MustOpenStore(t, testsupport.NewConfig(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			errs <- store.Record(ctx, sampleRecord("task-"+string(rune('A'+n)), queue.OutcomeDone, time.Now()))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent Record: %v", err)
		}
	}
	summary, err := store.Summarize(ctx)
	if err != nil || summary.Total != 20 {
		t.Fatalf("expected 20 records, got %+v err=%v", summary, err)
	}
}
