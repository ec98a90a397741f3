package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/bus"
	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/jobstore"
	"github.com/chekaru-labs/chekaru-voice/internal/natsserver"
	"github.com/chekaru-labs/chekaru-voice/internal/pipeline"
	"github.com/chekaru-labs/chekaru-voice/internal/protocol"
	"github.com/chekaru-labs/chekaru-voice/internal/synth"
	"github.com/chekaru-labs/chekaru-voice/internal/voices"
	"github.com/nats-io/nats.go"
)

const testBusPort = 43224

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startService(t *testing.T) (*Service, *bus.Client, config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.Bus.Port = testBusPort
	cfg.Bus.StoreDir = t.TempDir()
	cfg.Bus.Servers = []string{"nats://127.0.0.1:43224"}
	cfg.Output.Directory = t.TempDir()
	cfg.Chunker.MaxSegmentChars = 40
	cfg.JobStore.RetentionMode = "ephemeral"

	embedded, err := natsserver.Start(cfg.Bus, newLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(embedded.Shutdown)

	busClient, err := bus.Connect(context.Background(), cfg.Bus, newLogger())
	if err != nil {
		t.Fatalf("connect bus: %v", err)
	}
	t.Cleanup(busClient.Close)

	jobs, err := jobstore.Open(context.Background(), cfg.JobStore, newLogger())
	if err != nil {
		t.Fatalf("open job store: %v", err)
	}
	t.Cleanup(func() { _ = jobs.Close() })

	gen := pipeline.New(synth.NewMockSynth(cfg.Synth.SampleRate, cfg.Synth.Channels), cfg, newLogger())
	svc := New(context.Background(), cfg, busClient, gen, jobs, voices.New(nil), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)

	return svc, busClient, cfg
}

func TestServiceGeneratesFromBusRequest(t *testing.T) {
	_, busClient, _ := startService(t)

	done := make(chan protocol.JobStatus, 8)
	sub, err := busClient.Conn().Subscribe(protocol.SubjectJobDone, func(msg *nats.Msg) {
		var status protocol.JobStatus
		if err := json.Unmarshal(msg.Data, &status); err == nil {
			done <- status
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Drain()

	req := protocol.GenerateRequest{
		JobID: "bus-job-1",
		Text:  "First sentence for the bus. Second sentence for the bus.",
		Voice: "v2/en_speaker_1",
	}
	data, _ := json.Marshal(req)
	if err := busClient.Conn().Publish(protocol.SubjectGenerateRequest, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case status := <-done:
		if status.JobID != "bus-job-1" {
			t.Fatalf("unexpected job id %q", status.JobID)
		}
		if status.State != protocol.JobDone {
			t.Fatalf("job did not complete: %+v", status)
		}
		if _, err := os.Stat(status.OutputPath); err != nil {
			t.Fatalf("output file missing: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
}

func TestServiceReportsUnknownVoice(t *testing.T) {
	_, busClient, _ := startService(t)

	done := make(chan protocol.JobStatus, 8)
	sub, err := busClient.Conn().Subscribe(protocol.SubjectJobDone, func(msg *nats.Msg) {
		var status protocol.JobStatus
		if err := json.Unmarshal(msg.Data, &status); err == nil {
			done <- status
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Drain()

	req := protocol.GenerateRequest{JobID: "bad-voice", Text: "Hello.", Voice: "does-not-exist"}
	data, _ := json.Marshal(req)
	if err := busClient.Conn().Publish(protocol.SubjectGenerateRequest, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case status := <-done:
		if status.State != protocol.JobFailed {
			t.Fatalf("expected failure, got %+v", status)
		}
		if !strings.Contains(status.Error, "unknown voice") {
			t.Fatalf("unexpected error %q", status.Error)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for failure status")
	}
}

func TestServicePreviewRequestReply(t *testing.T) {
	_, busClient, _ := startService(t)

	req, _ := json.Marshal(protocol.PreviewRequest{Voice: "v2/en_speaker_2"})
	msg, err := busClient.Conn().Request(protocol.SubjectPreviewRequest, req, 15*time.Second)
	if err != nil {
		t.Fatalf("preview request: %v", err)
	}

	var reply protocol.PreviewReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.Error != "" {
		t.Fatalf("preview failed: %s", reply.Error)
	}
	wavData, err := base64.StdEncoding.DecodeString(reply.WAVBase64)
	if err != nil {
		t.Fatalf("decode wav: %v", err)
	}
	if !strings.HasPrefix(string(wavData), "RIFF") {
		t.Fatal("preview is not a RIFF container")
	}
}
