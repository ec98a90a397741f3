package jobstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.JobStoreConfig{RetentionMode: "ephemeral"}
	js, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = js.Close() })

	// everything is a no-op, nothing may fail
	if err := js.CreateJob(ctx, "job-1", "voice", 10); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := js.AppendEvent(ctx, Event{JobID: "job-1", Type: "job.done"}); err != nil {
		t.Fatalf("append event: %v", err)
	}
}

func TestJobLifecycle(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JobStoreConfig{Path: filepath.Join(tmp, "jobs.db"), RetentionMode: "session"}
	js, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = js.Close() })
	ctx := context.Background()

	if err := js.CreateJob(ctx, "job-42", "v2/en_speaker_1", 512); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := js.MarkRunning(ctx, "job-42", 3); err != nil {
		t.Fatalf("mark running: %v", err)
	}

	job, err := js.GetJob(ctx, "job-42")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.State != StateRunning || job.Segments != 3 || job.TextChars != 512 {
		t.Fatalf("unexpected job %+v", job)
	}

	if err := js.MarkDone(ctx, "job-42", "/data/audio/job-42.wav"); err != nil {
		t.Fatalf("mark done: %v", err)
	}
	job, err = js.GetJob(ctx, "job-42")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.State != StateDone || job.OutputPath != "/data/audio/job-42.wav" {
		t.Fatalf("unexpected job after done %+v", job)
	}

	if _, err := js.GetJob(ctx, "no-such-job"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestJobFailureRecorded(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JobStoreConfig{Path: filepath.Join(tmp, "jobs.db"), RetentionMode: "session"}
	js, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = js.Close() })
	ctx := context.Background()

	if err := js.CreateJob(ctx, "job-x", "voice", 42); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := js.MarkFailed(ctx, "job-x", "sample rate mismatch between chunks"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	job, err := js.GetJob(ctx, "job-x")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.State != StateFailed || job.Error == "" {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestAppendAndListEvents(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JobStoreConfig{Path: filepath.Join(tmp, "jobs.db"), RetentionMode: "session"}
	js, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = js.Close() })
	ctx := context.Background()

	if err := js.CreateJob(ctx, "job-7", "voice", 64); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := js.AppendEvent(ctx, Event{JobID: "job-7", Type: "job.running", Payload: []byte("{}")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := js.AppendEvent(ctx, Event{JobID: "job-7", Type: "job.done", Payload: []byte("{}")}); err != nil {
		t.Fatalf("append event: %v", err)
	}

	events, err := js.ListJobEvents(ctx, "job-7", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type != "job.running" || events[1].Type != "job.done" {
		t.Fatalf("events out of order: %v", events)
	}
}

func TestPruneByDaysAndJobs(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.JobStoreConfig{Path: filepath.Join(tmp, "jobs.db"), RetentionMode: "persistent", RetentionDays: 1, MaxJobs: 1}
	js, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = js.Close() })
	ctx := context.Background()

	js.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := js.CreateJob(ctx, "old-job", "voice", 1); err != nil {
		t.Fatalf("create job: %v", err)
	}

	js.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := js.CreateJob(ctx, "new-job", "voice", 1); err != nil {
		t.Fatalf("create job: %v", err)
	}
	if err := js.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	if _, err := js.GetJob(ctx, "old-job"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected old job to be pruned, got %v", err)
	}
	if _, err := js.GetJob(ctx, "new-job"); err != nil {
		t.Fatalf("new job should survive prune: %v", err)
	}
}
