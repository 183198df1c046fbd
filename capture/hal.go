package capture

// Clock is the free-running microsecond timer. It wraps at 2^32, and all
// elapsed-time arithmetic is done with unsigned subtraction.
type Clock interface {
	Now() uint32
}

// PositionSource reports where channel A's DMA engine will write next, as a
// word index into channel A's ring.
type PositionSource interface {
	WritePosition() int
}

// Discharger forces both RC networks to ground (pulldowns on the sense
// inputs) while calibration looks for the start of a period.
type Discharger interface {
	Discharge(force bool)
}

// SyncPattern describes the monitor samples that indicate the two capture
// clocks are out of phase: a sample s is bad when s&Mask equals one of
// Forbidden.
type SyncPattern struct {
	Mask      uint32
	Forbidden []uint32
}

// Matches reports whether a monitor sample is a forbidden one.
func (p SyncPattern) Matches(sample uint32) bool {
	v := sample & p.Mask
	for _, f := range p.Forbidden {
		if v == f {
			return true
		}
	}
	return false
}

// ClockMonitor lets the synchroniser nudge the channel B clock and observe
// both channel clocks.
type ClockMonitor interface {
	// PerturbClock briefly changes one peripheral clock and restores it,
	// shifting its phase relative to the other.
	PerturbClock()

	// MonitorClocks samples the input pins carrying both clocks.
	MonitorClocks() uint32

	SyncPattern() SyncPattern
}

// Hardware is everything the engine needs from the platform.
type Hardware interface {
	Clock
	PositionSource
	Discharger
	ClockMonitor
	AddressMap

	// Allocate returns a zero-filled DMA-visible area of the given size.
	Allocate(words int) ([]uint32, error)

	// StartCapture programs the DMA engines from the region's descriptor
	// chain and starts both channels.
	StartCapture(r *Region) error

	// StopCapture halts DMA and the capture peripherals.
	StopCapture()

	// Release frees the area returned by Allocate. It is only called after
	// StopCapture.
	Release()
}

// Logger receives one line of diagnostic text.
type Logger func(string)

func nopLogger(string) {}
