// Package recorder writes decoded sample blocks to a two-channel WAV file.
// Samples are held in memory and written when the recorder is closed.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/youpy/go-wav"

	"rcadc/capture"
)

var (
	ErrClosed     = errors.New("recorder: closed")
	ErrOddBlock   = errors.New("recorder: block is not whole A/B pairs")
	ErrSampleRate = errors.New("recorder: sample rate must be positive")
)

// Recorder buffers channel A and B samples as stereo 8-bit PCM.
type Recorder struct {
	path    string
	rate    int
	buffer  []wav.Sample
	blocks  int
	dropped int
	closed  bool
}

// New records to path at sampleRate samples per second per channel.
func New(path string, sampleRate int) (*Recorder, error) {
	if sampleRate <= 0 {
		return nil, ErrSampleRate
	}
	return &Recorder{path: path, rate: sampleRate}, nil
}

// Scale maps a decoded sample (0..MaxSample) onto unsigned 8-bit PCM.
func Scale(v byte) int {
	if int(v) >= capture.MaxSample {
		return 255
	}
	return int(v) * 255 / capture.MaxSample
}

// Write appends one interleaved block.
func (r *Recorder) Write(block []byte) error {
	if r.closed {
		return ErrClosed
	}
	if len(block)%2 != 0 {
		return ErrOddBlock
	}
	for i := 0; i < len(block); i += 2 {
		s := wav.Sample{}
		s.Values[0] = Scale(block[i])
		s.Values[1] = Scale(block[i+1])
		r.buffer = append(r.buffer, s)
	}
	r.blocks++
	return nil
}

// Drop counts a block that could not be read.
func (r *Recorder) Drop() {
	r.dropped++
}

// Samples is the number of sample pairs buffered.
func (r *Recorder) Samples() int { return len(r.buffer) }

// Blocks is the number of blocks written.
func (r *Recorder) Blocks() int { return r.blocks }

// Dropped is the number of blocks lost.
func (r *Recorder) Dropped() int { return r.dropped }

// Encode writes the buffered samples as a WAV stream.
func (r *Recorder) Encode(w io.Writer) error {
	enc := wav.NewWriter(w, uint32(len(r.buffer)), 2, uint32(r.rate), 8)
	if enc == nil {
		return fmt.Errorf("recorder: bad parameters for wav encoding")
	}
	return enc.WriteSamples(r.buffer)
}

// Close writes the file. Later writes fail with ErrClosed.
func (r *Recorder) Close() (rerr error) {
	if r.closed {
		return nil
	}
	r.closed = true

	f, err := os.Create(r.path)
	if err != nil {
		return fmt.Errorf("recorder: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil && rerr == nil {
			rerr = fmt.Errorf("recorder: %w", err)
		}
	}()
	if err := r.Encode(f); err != nil {
		return fmt.Errorf("recorder: %s: %w", r.path, err)
	}
	return nil
}
