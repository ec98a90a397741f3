package synth

import (
	"bytes"
	"context"
	"testing"

	"github.com/chekaru-labs/chekaru-voice/internal/textseg"
)

func TestMockSynthDeterministic(t *testing.T) {
	s := NewMockSynth(24000, 1)
	req := Request{JobID: "job", Segment: textseg.Segment{Index: 3, Text: "Hello there."}, Voice: "v2/en_speaker_0"}

	a, err := s.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	b, err := s.Synthesize(context.Background(), req)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if !bytes.Equal(a.PCM, b.PCM) {
		t.Fatal("mock output not deterministic")
	}
	if a.Index != 3 {
		t.Fatalf("expected index 3, got %d", a.Index)
	}
	if a.SampleRate != 24000 || a.Channels != 1 {
		t.Fatalf("unexpected format %d/%d", a.SampleRate, a.Channels)
	}
	if len(a.PCM) == 0 || len(a.PCM)%2 != 0 {
		t.Fatalf("bad pcm length %d", len(a.PCM))
	}
}

func TestMockSynthVariesByVoice(t *testing.T) {
	s := NewMockSynth(16000, 1)
	seg := textseg.Segment{Index: 0, Text: "Same words."}
	a, _ := s.Synthesize(context.Background(), Request{Segment: seg, Voice: "voice-a"})
	b, _ := s.Synthesize(context.Background(), Request{Segment: seg, Voice: "voice-b"})
	if bytes.Equal(a.PCM, b.PCM) {
		t.Fatal("expected different voices to produce different audio")
	}
}

func TestMockSynthHonorsCancellation(t *testing.T) {
	s := NewMockSynth(16000, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Synthesize(ctx, Request{Segment: textseg.Segment{Text: "hi"}}); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
