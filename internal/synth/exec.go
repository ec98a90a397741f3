package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/chekaru-labs/chekaru-voice/internal/audio"
	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/mattn/go-shellwords"
)

// execSynth shells out to a model runner per segment. The subprocess
// receives a JSON request on stdin and must print a single JSON response
// with base64 PCM on stdout. One invocation at a time: most local model
// runners do not tolerate concurrent invocations against one model file.
type execSynth struct {
	cmd        []string
	sampleRate int
	channels   int
	mu         sync.Mutex
}

type execRequest struct {
	Text       string `json:"text"`
	Voice      string `json:"voice"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

type execResponse struct {
	PCMBase64  string `json:"pcm_base64"`
	SampleRate int    `json:"sample_rate,omitempty"`
	Error      string `json:"error,omitempty"`
}

func NewExecSynth(cfg config.SynthConfig) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse synth command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("synth command empty")
	}
	return &execSynth{cmd: args, sampleRate: cfg.SampleRate, channels: cfg.Channels}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req Request) (audio.Chunk, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	payload := execRequest{
		Text:       req.Segment.Text,
		Voice:      req.Voice,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return audio.Chunk{}, err
	}

	base := e.cmd[0]
	args := append([]string{}, e.cmd[1:]...)
	cmd := exec.CommandContext(ctx, base, args...)
	cmd.Stdin = bytes.NewReader(data)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return audio.Chunk{}, fmt.Errorf("synth command failed: %w: %s", err, stderr.String())
	}

	var resp execResponse
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &resp); err != nil {
		return audio.Chunk{}, fmt.Errorf("decode synth response: %w", err)
	}
	if resp.Error != "" {
		return audio.Chunk{}, fmt.Errorf("synth backend: %s", resp.Error)
	}
	pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
	if err != nil {
		return audio.Chunk{}, fmt.Errorf("decode synth pcm: %w", err)
	}

	rate := e.sampleRate
	if resp.SampleRate > 0 {
		rate = resp.SampleRate
	}
	return audio.Chunk{
		Index:      req.Segment.Index,
		SampleRate: rate,
		Channels:   e.channels,
		PCM:        pcm,
	}, nil
}
