// Package capture implements the dual-channel RC-discharge ADC engine: the DMA
// capture region, clock phase synchronisation, offset calibration, the two
// bitstream decoders and the half-buffer ring reader.
//
// The package never touches hardware registers itself. Everything it needs
// from the peripherals comes through the Hardware interface, so the whole
// engine runs unchanged against a fake in host tests.
package capture

import (
	"errors"
)

// Bits per ring word.
const WordBits = 32

// MaxSample is the decoder sentinel for "no transition in the window".
const MaxSample = 128

// WindowWords is the number of ring words one decode window spans.
const WindowWords = MaxSample / WordBits

// Config holds the fabrication-time constants of a capture setup.
type Config struct {
	// SampleRate is the number of conversions per second on each channel.
	SampleRate uint32

	// PeriodWords is the length of one conversion period in ring words.
	PeriodWords int

	// RingWords is the length of each channel's circular buffer in words.
	RingWords int

	// WindowSkip is the distance in words from the start of a period to the
	// first word of its decode window (skips the reset pulse itself).
	WindowSkip int

	// MaxRead caps the length of a single read in bytes.
	MaxRead int

	// TearBudget is the longest time, in timer ticks (µs), a read may take
	// between the stability wait and the final verification.
	TearBudget uint32

	// WaitBudget bounds the stability wait at the start of a read.
	WaitBudget uint32

	// MonitorSamples and DesyncThreshold drive the clock phase synchroniser.
	MonitorSamples  int
	DesyncThreshold int

	// SyncMaxAttempts aborts clock synchronisation after this many
	// perturbations. Zero means never give up.
	SyncMaxAttempts int

	// ScanLimit is the calibration scan cap in words.
	ScanLimit int

	// SettleMargin is how close (in bytes) the channel A write position must
	// come to the ring start before calibration re-arms the reset pulse.
	SettleMargin uint32

	// SettleTime is how long calibration lets DMA capture after re-arming.
	SettleTime uint32

	// SettleTimeout bounds the wait for the write position to reach the
	// ring start during calibration.
	SettleTimeout uint32

	// BoundaryGuard is an extra number of words the write position must be
	// past the half boundary before a half is considered quiescent.
	BoundaryGuard int

	// PulsePattern is transmitted once per conversion period to recharge
	// both RC networks. Its length must equal PeriodWords.
	PulsePattern []uint32
}

// DefaultConfig returns the 54 kS/s two-channel setup.
func DefaultConfig() Config {
	return Config{
		SampleRate:      54253,
		PeriodWords:     6,
		RingWords:       16200,
		WindowSkip:      2,
		MaxRead:         2700,
		TearBudget:      20000,
		WaitBudget:      60000,
		MonitorSamples:  200,
		DesyncThreshold: 5,
		SyncMaxAttempts: 10000,
		ScanLimit:       2000,
		SettleMargin:    1000,
		SettleTime:      1000,
		SettleTimeout:   200000,
		BoundaryGuard:   0,
		PulsePattern:    []uint32{0x00feffff, 0, 0, 0, 0, 0},
	}
}

// Configuration errors
var (
	ErrBadPeriod  = errors.New("capture: period must be positive and hold a decode window")
	ErrBadRing    = errors.New("capture: ring half must be a whole number of periods")
	ErrBadMaxRead = errors.New("capture: max read exceeds the samples held by one half")
	ErrBadBudget  = errors.New("capture: tear budget must be shorter than one half of the ring")
	ErrBadPulse   = errors.New("capture: pulse pattern length must equal the period")
	ErrBadSync    = errors.New("capture: clock sync needs monitor samples and a threshold below them")
	ErrBadScan    = errors.New("capture: scan limit must be positive and fit in one half")
)

// Validate checks that the constants are consistent with each other.
func (c Config) Validate() error {
	if c.PeriodWords <= 0 || c.WindowSkip < 0 || c.WindowSkip+WindowWords > c.PeriodWords {
		return ErrBadPeriod
	}
	if c.RingWords <= 0 || c.RingWords%2 != 0 || c.HalfWords()%c.PeriodWords != 0 {
		return ErrBadRing
	}
	if c.MaxRead < 0 || c.MaxRead > 2*c.SamplesPerHalf() {
		return ErrBadMaxRead
	}
	if c.SampleRate == 0 || uint64(c.TearBudget) >= c.HalfDuration() {
		return ErrBadBudget
	}
	if len(c.PulsePattern) != c.PeriodWords {
		return ErrBadPulse
	}
	if c.MonitorSamples <= 0 || c.DesyncThreshold < 0 || c.DesyncThreshold >= c.MonitorSamples {
		return ErrBadSync
	}
	if c.ScanLimit <= 0 || c.ScanLimit > c.HalfWords() {
		return ErrBadScan
	}
	return nil
}

// HalfWords is the size of one ring half in words.
func (c Config) HalfWords() int {
	return c.RingWords / 2
}

// SamplesPerHalf is the number of conversion periods in one ring half.
func (c Config) SamplesPerHalf() int {
	return c.HalfWords() / c.PeriodWords
}

// HalfDuration returns how long DMA takes to fill one half, in µs.
func (c Config) HalfDuration() uint64 {
	if c.SampleRate == 0 {
		return 0
	}
	return uint64(c.SamplesPerHalf()) * 1000000 / uint64(c.SampleRate)
}
