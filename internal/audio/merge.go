package audio

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrNoChunks is returned when a merge is attempted with no input.
	ErrNoChunks = errors.New("no audio chunks to merge")
	// ErrSampleRateMismatch is returned when chunks disagree on sample rate.
	ErrSampleRateMismatch = errors.New("sample rate mismatch between chunks")
	// ErrChannelMismatch is returned when chunks disagree on channel count.
	ErrChannelMismatch = errors.New("channel count mismatch between chunks")
	// ErrUnalignedPCM is returned when a chunk payload is not a whole
	// number of 16-bit samples.
	ErrUnalignedPCM = errors.New("pcm payload not sample aligned")
)

// Chunk is the synthesized audio for one text segment. PCM is 16-bit
// little-endian signed samples, interleaved when Channels > 1.
type Chunk struct {
	Index      int
	SampleRate int
	Channels   int
	PCM        []byte
}

// Merged is the concatenation of an ordered chunk sequence.
type Merged struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Duration reports the playback length of the merged audio.
func (m Merged) Duration() time.Duration {
	if m.SampleRate <= 0 || m.Channels <= 0 {
		return 0
	}
	frames := len(m.PCM) / 2 / m.Channels
	return time.Duration(frames) * time.Second / time.Duration(m.SampleRate)
}

// Merge concatenates chunks in ascending Index order into one buffer.
// All chunks must share one sample rate and channel count. When gap is
// positive, that much silence is inserted between consecutive chunks.
// Merge is a pure function: equal inputs yield byte-identical output.
func Merge(chunks []Chunk, gap time.Duration) (Merged, error) {
	if len(chunks) == 0 {
		return Merged{}, ErrNoChunks
	}

	ordered := append([]Chunk(nil), chunks...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	rate := ordered[0].SampleRate
	channels := ordered[0].Channels
	if rate <= 0 {
		return Merged{}, fmt.Errorf("chunk %d: invalid sample rate %d", ordered[0].Index, rate)
	}
	if channels <= 0 {
		channels = 1
	}

	total := 0
	for _, c := range ordered {
		if c.SampleRate != rate {
			return Merged{}, fmt.Errorf("chunk %d has rate %d, expected %d: %w", c.Index, c.SampleRate, rate, ErrSampleRateMismatch)
		}
		if cc := c.Channels; cc > 0 && cc != channels {
			return Merged{}, fmt.Errorf("chunk %d has %d channels, expected %d: %w", c.Index, cc, channels, ErrChannelMismatch)
		}
		if len(c.PCM)%2 != 0 {
			return Merged{}, fmt.Errorf("chunk %d: %w", c.Index, ErrUnalignedPCM)
		}
		total += len(c.PCM)
	}

	silence := silenceBytes(rate, channels, gap)
	total += silence * (len(ordered) - 1)

	pcm := make([]byte, 0, total)
	for i, c := range ordered {
		if i > 0 && silence > 0 {
			pcm = append(pcm, make([]byte, silence)...)
		}
		pcm = append(pcm, c.PCM...)
	}

	return Merged{PCM: pcm, SampleRate: rate, Channels: channels}, nil
}

// silenceBytes converts a duration into a frame-aligned byte count of
// zero samples at the given rate.
func silenceBytes(rate, channels int, gap time.Duration) int {
	if gap <= 0 {
		return 0
	}
	frames := int(int64(rate) * gap.Nanoseconds() / int64(time.Second))
	return frames * channels * 2
}
