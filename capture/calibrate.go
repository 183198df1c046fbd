package capture

import "strconv"

// Calibration is where conversion periods start in each ring.
type Calibration struct {
	// OffsetA and OffsetB are ring word indices of a period start. Both are
	// reduced by the same whole number of periods, so their difference is
	// the measured channel skew.
	OffsetA int
	OffsetB int

	// Mask selects the bit of the channel B word at OffsetB where the
	// period's first bit landed.
	Mask uint32

	// RawA and RawB are the scan results before reduction.
	RawA int
	RawB int
}

// Phase returns the channel skew modulo one period, in words.
func (c Calibration) Phase(periodWords int) int {
	d := (c.OffsetB - c.OffsetA) % periodWords
	if d < 0 {
		d += periodWords
	}
	return d
}

type calibrationHardware interface {
	Clock
	PositionSource
	Discharger
}

// Calibrate locates the start of a conversion period in both rings.
//
// With the reset pulse silenced and both inputs held low, every word DMA
// writes is zero. Both rings are cleared, and once the channel A write
// position has wrapped back to within SettleMargin bytes of the ring start
// the pulse is restored. After SettleTime the first nonzero word in each
// ring is the first pulse, which marks a period start.
func Calibrate(hw calibrationHardware, r *Region, cfg Config, log Logger) (Calibration, error) {
	if log == nil {
		log = nopLogger
	}
	r.SetPulse(false)
	hw.Discharge(true)
	defer hw.Discharge(false)

	r.A.Zero()
	r.B.Zero()

	start := hw.Now()
	margin := int(cfg.SettleMargin / 4)
	for hw.WritePosition() > margin {
		if elapsed := hw.Now() - start; cfg.SettleTimeout > 0 && elapsed > cfg.SettleTimeout {
			r.SetPulse(true)
			return Calibration{}, ErrSettleTimeout
		}
	}

	r.SetPulse(true)
	start = hw.Now()
	for hw.Now()-start < cfg.SettleTime {
	}

	a, ok := r.A.FirstNonZero(cfg.ScanLimit)
	if !ok {
		return Calibration{}, &CalibrationError{Channel: 'A', ScanLimit: cfg.ScanLimit}
	}
	b, ok := r.B.FirstNonZero(cfg.ScanLimit)
	if !ok {
		return Calibration{}, &CalibrationError{Channel: 'B', ScanLimit: cfg.ScanLimit}
	}

	c := Calibration{
		RawA: a,
		RawB: b,
		Mask: leadingBit(r.B.At(b)),
	}
	low := a
	if b < low {
		low = b
	}
	shift := low / cfg.PeriodWords * cfg.PeriodWords
	c.OffsetA = a - shift
	c.OffsetB = b - shift

	log("[CAL] raw a=" + strconv.Itoa(a) + " b=" + strconv.Itoa(b) +
		" offsets a=" + strconv.Itoa(c.OffsetA) + " b=" + strconv.Itoa(c.OffsetB) +
		" mask=0x" + strconv.FormatUint(uint64(c.Mask), 16))
	return c, nil
}
