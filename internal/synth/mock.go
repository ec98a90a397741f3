package synth

import (
	"context"
	"encoding/binary"
	"hash/fnv"

	"github.com/chekaru-labs/chekaru-voice/internal/audio"
)

// mockSynth produces deterministic PCM derived from the segment text.
// Output length scales with text length so pipeline tests see realistic
// per-segment variation.
type mockSynth struct {
	sampleRate int
	channels   int
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	if channels <= 0 {
		channels = 1
	}
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) (audio.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return audio.Chunk{}, err
	}

	h := fnv.New32a()
	h.Write([]byte(req.Voice))
	h.Write([]byte(req.Segment.Text))
	seed := h.Sum32()

	// 20ms of audio per character, minimum one frame
	frames := len(req.Segment.Text) * m.sampleRate / 50
	if frames == 0 {
		frames = 1
	}

	pcm := make([]byte, frames*m.channels*2)
	for i := 0; i < frames*m.channels; i++ {
		sample := int16(int32(seed+uint32(i)*2654435761) % 8192)
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
	}

	return audio.Chunk{
		Index:      req.Segment.Index,
		SampleRate: m.sampleRate,
		Channels:   m.channels,
		PCM:        pcm,
	}, nil
}
