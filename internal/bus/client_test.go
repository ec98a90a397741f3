package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/natsserver"
	"github.com/chekaru-labs/chekaru-voice/internal/protocol"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startBus(t *testing.T) *Client {
	t.Helper()

	cfg := config.BusConfig{
		Embedded:       true,
		Port:           43226,
		StoreDir:       t.TempDir(),
		Servers:        []string{"nats://127.0.0.1:43226"},
		ConnectTimeout: 2000,
	}

	embedded, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(embedded.Shutdown)

	client, err := Connect(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestClientHealthy(t *testing.T) {
	client := startBus(t)
	if !client.Healthy() {
		t.Fatal("connected client should report healthy")
	}

	var nilClient *Client
	if nilClient.Healthy() {
		t.Fatal("nil client should not report healthy")
	}
}

func TestPublishStatusAndDone(t *testing.T) {
	client := startBus(t)

	statuses := make(chan protocol.JobStatus, 4)
	for _, subject := range []string{protocol.SubjectJobStatus, protocol.SubjectJobDone} {
		sub, err := client.Conn().Subscribe(subject, func(msg *nats.Msg) {
			var status protocol.JobStatus
			if err := json.Unmarshal(msg.Data, &status); err == nil {
				statuses <- status
			}
		})
		if err != nil {
			t.Fatalf("subscribe %s: %v", subject, err)
		}
		defer sub.Drain()
	}

	want := protocol.JobStatus{JobID: "job-1", State: protocol.JobRunning, SegmentsDone: 1, SegmentsTotal: 3}
	if err := client.PublishStatus(want); err != nil {
		t.Fatalf("publish status: %v", err)
	}
	if err := client.PublishDone(protocol.JobStatus{JobID: "job-1", State: protocol.JobDone}); err != nil {
		t.Fatalf("publish done: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case got := <-statuses:
			if got.JobID != "job-1" {
				t.Fatalf("unexpected job id %q", got.JobID)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for published status")
		}
	}
}

func TestRespondJSON(t *testing.T) {
	client := startBus(t)

	sub, err := client.Conn().Subscribe("echo.request", func(msg *nats.Msg) {
		reply := protocol.PreviewReply{SampleRate: 24000, Channels: 1}
		if err := client.RespondJSON(msg, reply); err != nil {
			t.Errorf("respond: %v", err)
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Drain()

	msg, err := client.Conn().Request("echo.request", nil, 5*time.Second)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	var reply protocol.PreviewReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if reply.SampleRate != 24000 {
		t.Fatalf("unexpected reply %+v", reply)
	}
}
