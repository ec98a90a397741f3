package synth

import (
	"context"
	"fmt"

	"github.com/chekaru-labs/chekaru-voice/internal/audio"
	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/textseg"
)

// Request contains parameters to synthesize one text segment.
type Request struct {
	JobID   string
	Segment textseg.Segment
	Voice   string
}

// Synthesizer is the contract for producing audio for a single segment.
// The returned chunk carries the segment's index so the merge step can
// reorder results arriving out of completion order.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (audio.Chunk, error)
}

// New builds the backend selected by config.
func New(cfg config.SynthConfig) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg)
	case "http":
		return NewHTTPSynth(cfg), nil
	default:
		return nil, fmt.Errorf("unknown synth mode %q", cfg.Mode)
	}
}
