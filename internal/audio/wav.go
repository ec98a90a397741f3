package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	gaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const bitDepth = 16

// WriteWAV encodes merged PCM into a RIFF/WAVE container.
func WriteWAV(w io.WriteSeeker, m Merged) error {
	if len(m.PCM)%2 != 0 {
		return ErrUnalignedPCM
	}
	channels := m.Channels
	if channels <= 0 {
		channels = 1
	}

	buffer := &gaudio.IntBuffer{Format: &gaudio.Format{NumChannels: channels, SampleRate: m.SampleRate}}
	samples := make([]int, len(m.PCM)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(m.PCM[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(w, m.SampleRate, bitDepth, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}

// WriteWAVFile writes the merged audio to path atomically: the container
// is encoded into a temp file in the same directory and renamed into
// place, so a failed or cancelled job never leaves a partial file.
func WriteWAVFile(path string, m Merged) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".chekaru_*.wav")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := WriteWAV(tmp, m); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
