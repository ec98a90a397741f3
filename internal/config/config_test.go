package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Synth.Mode != "mock" {
		t.Fatalf("expected default synth mode mock, got %q", cfg.Synth.Mode)
	}
	if cfg.Chunker.MaxSegmentChars != 200 {
		t.Fatalf("expected default max segment chars 200, got %d", cfg.Chunker.MaxSegmentChars)
	}
	if cfg.Merge.GapMS != 0 {
		t.Fatalf("expected no inter-chunk silence by default, got %d", cfg.Merge.GapMS)
	}
}

func TestLoadFromFile(t *testing.T) {
	yaml := `
synth:
  mode: exec
  command: "tts-runner --model ./model.bin"
  sample_rate: 22050
  channels: 1
  default_voice: v2/en_speaker_4
chunker:
  max_segment_chars: 250
merge:
  gap_ms: 200
voices:
  - id: v2/en_speaker_4
    name: Calm Narrator
`
	path := filepath.Join(t.TempDir(), "chekaru.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synth.Mode != "exec" || cfg.Synth.Command == "" {
		t.Fatalf("synth section not applied: %+v", cfg.Synth)
	}
	if cfg.Chunker.MaxSegmentChars != 250 {
		t.Fatalf("expected max segment chars 250, got %d", cfg.Chunker.MaxSegmentChars)
	}
	if cfg.Merge.GapMS != 200 {
		t.Fatalf("expected gap 200ms, got %d", cfg.Merge.GapMS)
	}
	if len(cfg.Voices) != 1 || cfg.Voices[0].ID != "v2/en_speaker_4" {
		t.Fatalf("voices not applied: %v", cfg.Voices)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHEKARU_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("CHEKARU_BUS_USERNAME", "alice")
	t.Setenv("CHEKARU_BUS_PASSWORD", "secret")
	t.Setenv("CHEKARU_SYNTH_MODE", "http")
	t.Setenv("CHEKARU_SYNTH_ENDPOINT", "http://localhost:5002/synthesize")
	t.Setenv("CHEKARU_SYNTH_SAMPLE_RATE", "48000")
	t.Setenv("CHEKARU_CHUNKER_MAX_SEGMENT_CHARS", "120")
	t.Setenv("CHEKARU_MERGE_GAP_MS", "150")
	t.Setenv("CHEKARU_OUTPUT_DIRECTORY", "/tmp/audio")
	t.Setenv("CHEKARU_JOB_STORE_PATH", "./tmp.db")
	t.Setenv("CHEKARU_JOB_STORE_RETENTION_MODE", "persistent")
	t.Setenv("CHEKARU_JOB_STORE_MAX_JOBS", "123")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Synth.Mode != "http" || cfg.Synth.Endpoint == "" {
		t.Fatalf("expected synth override, got %+v", cfg.Synth)
	}
	if cfg.Synth.SampleRate != 48000 {
		t.Fatalf("expected sample rate override, got %d", cfg.Synth.SampleRate)
	}
	if cfg.Chunker.MaxSegmentChars != 120 {
		t.Fatalf("expected chunker override, got %d", cfg.Chunker.MaxSegmentChars)
	}
	if cfg.Merge.GapMS != 150 {
		t.Fatalf("expected merge gap override, got %d", cfg.Merge.GapMS)
	}
	if cfg.Output.Directory != "/tmp/audio" {
		t.Fatalf("expected output override, got %q", cfg.Output.Directory)
	}
	if cfg.JobStore.Path != "./tmp.db" || cfg.JobStore.RetentionMode != "persistent" || cfg.JobStore.MaxJobs != 123 {
		t.Fatalf("expected job store override, got %+v", cfg.JobStore)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad synth mode", func(c *Config) { c.Synth.Mode = "cloud" }},
		{"exec without command", func(c *Config) { c.Synth.Mode = "exec" }},
		{"http without endpoint", func(c *Config) { c.Synth.Mode = "http" }},
		{"zero sample rate", func(c *Config) { c.Synth.SampleRate = 0 }},
		{"zero max chars", func(c *Config) { c.Chunker.MaxSegmentChars = 0 }},
		{"negative gap", func(c *Config) { c.Merge.GapMS = -1 }},
		{"empty output dir", func(c *Config) { c.Output.Directory = "" }},
		{"bad retention mode", func(c *Config) { c.JobStore.RetentionMode = "forever" }},
		{"voice without id", func(c *Config) { c.Voices = []VoiceConfig{{Name: "Nameless"}} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
