package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chekaru-labs/chekaru-voice/internal/config"
	"github.com/chekaru-labs/chekaru-voice/internal/pipeline"
	"github.com/chekaru-labs/chekaru-voice/internal/synth"
	"github.com/chekaru-labs/chekaru-voice/internal/voices"
)

// chekaru-say runs the generation pipeline in-process, without a daemon:
// read text, synthesize, write one WAV file.
func main() {
	var (
		configPath string
		text       string
		voice      string
		out        string
		gapMS      int
		preview    bool
		listVoices bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults apply when empty)")
	flag.StringVar(&text, "text", "", "Text to speak (reads stdin when empty)")
	flag.StringVar(&voice, "voice", "", "Voice ID or display name")
	flag.StringVar(&out, "out", "out.wav", "Output WAV path")
	flag.IntVar(&gapMS, "gap-ms", -1, "Silence between segments in milliseconds (-1 uses config)")
	flag.BoolVar(&preview, "preview", false, "Write a short voice preview instead of reading text")
	flag.BoolVar(&listVoices, "list-voices", false, "Print the voice catalog and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("load config: %v", err)
	}

	catalog := voices.New(cfg.Voices)

	if listVoices {
		for _, v := range catalog.List() {
			fmt.Printf("%-20s %s\n", v.ID, v.Name)
		}
		return
	}

	resolved := catalog.Default()
	if voice == "" && cfg.Synth.DefaultVoice != "" {
		voice = cfg.Synth.DefaultVoice
	}
	if voice != "" {
		v, err := catalog.Resolve(voice)
		if err != nil {
			fatal("%v (try -list-voices)", err)
		}
		resolved = v
	}

	synthesizer, err := synth.New(cfg.Synth)
	if err != nil {
		fatal("create synthesizer: %v", err)
	}
	gen := pipeline.New(synthesizer, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if preview {
		data, _, err := gen.Preview(ctx, resolved.ID)
		if err != nil {
			fatal("preview: %v", err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			fatal("write preview: %v", err)
		}
		fmt.Printf("preview of %s written to %s\n", resolved.Name, out)
		return
	}

	if text == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fatal("read stdin: %v", err)
		}
		text = string(data)
	}
	if strings.TrimSpace(text) == "" {
		fatal("no text to speak")
	}

	gap := gen.Gap()
	if gapMS >= 0 {
		gap = time.Duration(gapMS) * time.Millisecond
	}

	progress := func(done, total int) {
		fmt.Fprintf(os.Stderr, "\rprocessing chunk %d/%d...", done, total)
	}

	result, err := gen.RunToFile(ctx, "", text, resolved.ID, gap, out, progress)
	if err != nil {
		fmt.Fprintln(os.Stderr)
		fatal("generate: %v", err)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Printf("wrote %s (%d segments, %s at %d Hz)\n", result.OutputPath, result.Segments, result.Duration.Round(time.Millisecond), result.SampleRate)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "chekaru-say: "+format+"\n", args...)
	os.Exit(1)
}
