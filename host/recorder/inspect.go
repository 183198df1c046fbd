package recorder

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

var ErrNotWav = errors.New("recorder: not a valid wav file")

// Info summarises a recording.
type Info struct {
	Channels   int
	SampleRate int
	BitDepth   int
	Frames     int
	Duration   time.Duration
	Means      []float64 // per channel, in file units
}

// Inspect decodes a recording made by Recorder, or any PCM WAV file.
func Inspect(r io.ReadSeeker) (Info, error) {
	dec := wav.NewDecoder(r)
	if dec == nil || !dec.IsValidFile() {
		return Info{}, ErrNotWav
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("recorder: %w", err)
	}
	dur, err := dec.Duration()
	if err != nil {
		return Info{}, fmt.Errorf("recorder: %w", err)
	}
	info := Info{
		Channels:   int(dec.NumChans),
		SampleRate: int(dec.SampleRate),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur,
		Means:      channelMeans(buf),
	}
	if info.Channels > 0 {
		info.Frames = len(buf.Data) / info.Channels
	}
	return info, nil
}

func channelMeans(buf *audio.IntBuffer) []float64 {
	n := buf.Format.NumChannels
	if n <= 0 {
		return nil
	}
	sums := make([]float64, n)
	for i, v := range buf.Data {
		sums[i%n] += float64(v)
	}
	frames := len(buf.Data) / n
	if frames == 0 {
		return sums
	}
	for i := range sums {
		sums[i] /= float64(frames)
	}
	return sums
}
