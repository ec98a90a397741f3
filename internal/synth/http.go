package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/audio"
	"github.com/chekaru-labs/chekaru-voice/internal/config"
)

// httpSynth posts segments to a model server speaking the same JSON
// contract as the exec backend.
type httpSynth struct {
	endpoint   string
	sampleRate int
	channels   int
	client     *http.Client
}

func NewHTTPSynth(cfg config.SynthConfig) Synthesizer {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpSynth{
		endpoint:   cfg.Endpoint,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		client:     &http.Client{Timeout: timeout},
	}
}

func (h *httpSynth) Synthesize(ctx context.Context, req Request) (audio.Chunk, error) {
	payload := execRequest{
		Text:       req.Segment.Text,
		Voice:      req.Voice,
		SampleRate: h.sampleRate,
		Channels:   h.channels,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return audio.Chunk{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return audio.Chunk{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return audio.Chunk{}, fmt.Errorf("synth request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return audio.Chunk{}, fmt.Errorf("synth server returned %s: %s", resp.Status, bytes.TrimSpace(snippet))
	}

	var out execResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return audio.Chunk{}, fmt.Errorf("decode synth response: %w", err)
	}
	if out.Error != "" {
		return audio.Chunk{}, fmt.Errorf("synth backend: %s", out.Error)
	}
	pcm, err := base64.StdEncoding.DecodeString(out.PCMBase64)
	if err != nil {
		return audio.Chunk{}, fmt.Errorf("decode synth pcm: %w", err)
	}

	rate := h.sampleRate
	if out.SampleRate > 0 {
		rate = out.SampleRate
	}
	return audio.Chunk{
		Index:      req.Segment.Index,
		SampleRate: rate,
		Channels:   h.channels,
		PCM:        pcm,
	}, nil
}
