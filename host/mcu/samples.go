package mcu

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"

	"rcadc/capture"
	"rcadc/protocol"
)

// Calibration is the device's view of the ring offsets.
type Calibration struct {
	OffsetA int
	OffsetB int
	Mask    uint32
	Phase   int
	Ready   bool
}

// statusError maps a samples_done status back to the capture error.
func statusError(s protocol.SampleStatus) error {
	switch s {
	case protocol.StatusOK:
		return nil
	case protocol.StatusTooLarge:
		return capture.ErrRequestTooLarge
	case protocol.StatusOddLength:
		return capture.ErrOddLength
	case protocol.StatusNotReady:
		return capture.ErrNotReady
	case protocol.StatusTimeout:
		return capture.ErrWaitTimeout
	case protocol.StatusTear:
		return capture.ErrTear
	}
	return fmt.Errorf("unknown sample status %d", s)
}

// ReadSamples asks the device for n interleaved sample bytes from the
// next completed half and reassembles the chunks.
func (m *MCU) ReadSamples(ctx context.Context, n int) ([]byte, error) {
	if n < 0 || n > 0xffff {
		return nil, fmt.Errorf("read %d: %w", n, capture.ErrRequestTooLarge)
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.send(ctx, "read_samples", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(n))
	})
	if err != nil {
		return nil, err
	}

	var asm *protocol.SampleAssembler
	for {
		resp, err := m.next(ctx)
		if err != nil {
			return nil, fmt.Errorf("read_samples: %w", err)
		}
		switch resp.Name {
		case "samples_data":
			seq := uint16(resp.Uint("seq"))
			if asm == nil {
				asm = protocol.NewSampleAssembler(seq, n)
			}
			if err := asm.Add(seq, int(resp.Uint("offset")), resp.Bytes("data")); err != nil {
				return nil, fmt.Errorf("read_samples seq %d: %w", seq, err)
			}
		case "samples_done":
			seq := uint16(resp.Uint("seq"))
			count := int(resp.Uint("count"))
			if err := statusError(protocol.SampleStatus(resp.Uint("status"))); err != nil {
				return nil, fmt.Errorf("read_samples seq %d: %w", seq, err)
			}
			if asm == nil {
				asm = protocol.NewSampleAssembler(seq, n)
			}
			block, err := asm.Finish(seq, count)
			if err != nil {
				return nil, fmt.Errorf("read_samples seq %d: %w", seq, err)
			}
			return block, nil
		}
	}
}

// DefaultBackOff retries quickly at first: a new half completes every
// ~25 ms, so a torn read usually succeeds on the next one.
func DefaultBackOff(maxElapsed time.Duration) backoff.BackOff {
	return &backoff.ExponentialBackOff{
		InitialInterval:     5 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         200 * time.Millisecond,
		MaxElapsedTime:      maxElapsed,
		Clock:               backoff.SystemClock,
	}
}

// ReadSamplesRetry is ReadSamples repeated under b while the device
// reports a tear or a boundary timeout. Other errors stop at once.
func (m *MCU) ReadSamplesRetry(ctx context.Context, n int, b backoff.BackOff) ([]byte, error) {
	if b == nil {
		b = DefaultBackOff(time.Second)
	}
	var block []byte
	attempts := 0
	op := func() error {
		attempts++
		var err error
		block, err = m.ReadSamples(ctx, n)
		if err != nil && !capture.Retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", attempts, err)
	}
	if attempts > 1 {
		m.log.Printf("read_samples succeeded after %d attempts", attempts)
	}
	return block, nil
}

// Calibration fetches the ring offsets the device settled on.
func (m *MCU) Calibration(ctx context.Context) (Calibration, error) {
	resp, err := m.Query(ctx, "get_calibration", nil, "calibration")
	if err != nil {
		return Calibration{}, err
	}
	return Calibration{
		OffsetA: int(resp.Uint("offset_a")),
		OffsetB: int(resp.Uint("offset_b")),
		Mask:    resp.Uint("mask"),
		Phase:   int(resp.Uint("phase")),
		Ready:   resp.Uint("ready") != 0,
	}, nil
}

// Stats fetches the device's read counters.
func (m *MCU) Stats(ctx context.Context) (capture.Stats, error) {
	resp, err := m.Query(ctx, "get_capture_stats", nil, "capture_stats")
	if err != nil {
		return capture.Stats{}, err
	}
	return capture.Stats{
		Reads:    resp.Uint("reads"),
		Tears:    resp.Uint("tears"),
		Timeouts: resp.Uint("timeouts"),
		Rejects:  resp.Uint("rejects"),
	}, nil
}

// SampleRate is the per-channel conversion rate the device reports.
func (m *MCU) SampleRate() (int, error) {
	return m.Constant("ADC_SAMPLE_RATE")
}

// MaxRead is the largest block the device accepts.
func (m *MCU) MaxRead() (int, error) {
	return m.Constant("ADC_MAX_READ")
}

// Split de-interleaves a block into channel A and channel B samples.
func Split(block []byte) (a, b []byte) {
	n := len(block) / 2
	a = make([]byte, n)
	b = make([]byte, n)
	for i := 0; i < n; i++ {
		a[i] = block[2*i]
		b[i] = block[2*i+1]
	}
	return a, b
}
