package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/audio"
	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/synth"
	"github.com/chekaru-labs/chekaru-voice/internal/textseg"
	"github.com/google/uuid"
)

// previewPhrase is the fixed sample spoken when auditioning a voice.
const previewPhrase = "Hello, this is a quick voice preview."

// Progress is invoked after each segment finishes synthesis.
type Progress func(done, total int)

// Result describes a completed generation job.
type Result struct {
	JobID      string
	OutputPath string
	Segments   int
	SampleRate int
	Duration   time.Duration
}

// Generator runs the text-to-waveform pipeline: chunk the text,
// synthesize every segment, merge in segment order, write one WAV file.
type Generator struct {
	synth   synth.Synthesizer
	chunker config.ChunkerConfig
	merge   config.MergeConfig
	output  config.OutputConfig
	workers int
	logger  *slog.Logger
	metrics *pipelineMetrics
}

func New(s synth.Synthesizer, cfg config.Config, logger *slog.Logger) *Generator {
	workers := cfg.Pipeline.MaxConcurrency
	if workers <= 0 {
		workers = 1
	}
	g := &Generator{
		synth:   s,
		chunker: cfg.Chunker,
		merge:   cfg.Merge,
		output:  cfg.Output,
		workers: workers,
		logger:  logger.With(slog.String("component", "pipeline")),
	}
	g.metrics = newPipelineMetrics(g.logger)
	return g
}

// Gap returns the configured inter-chunk silence.
func (g *Generator) Gap() time.Duration {
	return time.Duration(g.merge.GapMS) * time.Millisecond
}

// Run generates one WAV file for text. Segments are synthesized
// concurrently up to the worker limit; the merge joins only after every
// segment has a result and concatenates by segment index, so output
// ordering never depends on completion order. The first synthesis error
// cancels the remaining work and no file is written.
func (g *Generator) Run(ctx context.Context, jobID, text, voice string, progress Progress) (Result, error) {
	return g.run(ctx, jobID, text, voice, g.Gap(), "", progress)
}

// RunWithGap is Run with a per-job silence override.
func (g *Generator) RunWithGap(ctx context.Context, jobID, text, voice string, gap time.Duration, progress Progress) (Result, error) {
	return g.run(ctx, jobID, text, voice, gap, "", progress)
}

// RunToFile is Run with an explicit output path instead of the
// configured output directory.
func (g *Generator) RunToFile(ctx context.Context, jobID, text, voice string, gap time.Duration, outputPath string, progress Progress) (Result, error) {
	return g.run(ctx, jobID, text, voice, gap, outputPath, progress)
}

func (g *Generator) run(ctx context.Context, jobID, text, voice string, gap time.Duration, outputPath string, progress Progress) (Result, error) {
	if jobID == "" {
		jobID = uuid.NewString()
	}

	segments := textseg.Split(text, g.chunker.MaxSegmentChars)
	if len(segments) == 0 {
		return Result{}, fmt.Errorf("job %s: no speakable text", jobID)
	}

	g.metrics.jobStarted(ctx)
	started := time.Now()

	chunks, err := g.synthesizeAll(ctx, jobID, voice, segments, progress)
	if err != nil {
		g.metrics.jobFailed(ctx)
		return Result{}, err
	}

	merged, err := audio.Merge(chunks, gap)
	if err != nil {
		g.metrics.jobFailed(ctx)
		return Result{}, fmt.Errorf("job %s: merge: %w", jobID, err)
	}

	if outputPath == "" {
		outputPath = filepath.Join(g.output.Directory, jobID+".wav")
	}
	if err := audio.WriteWAVFile(outputPath, merged); err != nil {
		g.metrics.jobFailed(ctx)
		return Result{}, fmt.Errorf("job %s: %w", jobID, err)
	}

	g.metrics.jobCompleted(ctx, time.Since(started))
	g.logger.Info("generation complete",
		slog.String("job_id", jobID),
		slog.Int("segments", len(segments)),
		slog.String("output", outputPath),
		slog.Duration("audio", merged.Duration()))

	return Result{
		JobID:      jobID,
		OutputPath: outputPath,
		Segments:   len(segments),
		SampleRate: merged.SampleRate,
		Duration:   merged.Duration(),
	}, nil
}

// SegmentCount reports how many segments text will produce, for progress
// totals before a job starts.
func (g *Generator) SegmentCount(text string) int {
	return len(textseg.Split(text, g.chunker.MaxSegmentChars))
}

func (g *Generator) synthesizeAll(ctx context.Context, jobID, voice string, segments []textseg.Segment, progress Progress) ([]audio.Chunk, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		sem      = make(chan struct{}, g.workers)
		chunks   = make([]audio.Chunk, len(segments))
		done     atomic.Int64
		errOnce  sync.Once
		firstErr error
	)

	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, seg := range segments {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(seg textseg.Segment) {
			defer wg.Done()
			defer func() { <-sem }()

			start := time.Now()
			chunk, err := g.synth.Synthesize(ctx, synth.Request{JobID: jobID, Segment: seg, Voice: voice})
			if err != nil {
				fail(fmt.Errorf("job %s: synthesize segment %d: %w", jobID, seg.Index, err))
				return
			}
			g.metrics.segmentSynthesized(ctx, time.Since(start))

			chunks[seg.Index] = chunk
			if progress != nil {
				progress(int(done.Add(1)), len(segments))
			}
		}(seg)
	}

	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("job %s: %w", jobID, err)
	}
	return chunks, nil
}

// Preview synthesizes a short fixed phrase with the given voice and
// returns a complete WAV container, never touching the output directory.
func (g *Generator) Preview(ctx context.Context, voice string) ([]byte, audio.Merged, error) {
	seg := textseg.Segment{Index: 0, Text: previewPhrase}
	chunk, err := g.synth.Synthesize(ctx, synth.Request{JobID: "preview", Segment: seg, Voice: voice})
	if err != nil {
		return nil, audio.Merged{}, fmt.Errorf("preview synthesis: %w", err)
	}

	merged, err := audio.Merge([]audio.Chunk{chunk}, 0)
	if err != nil {
		return nil, audio.Merged{}, fmt.Errorf("preview merge: %w", err)
	}

	// wav encoding needs a seeker to backfill the header
	tmp, err := os.CreateTemp("", "chekaru_preview_*.wav")
	if err != nil {
		return nil, audio.Merged{}, fmt.Errorf("preview temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := audio.WriteWAV(tmp, merged); err != nil {
		return nil, audio.Merged{}, err
	}
	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, audio.Merged{}, fmt.Errorf("read preview: %w", err)
	}
	return data, merged, nil
}
