package capture

// Stats counts reader outcomes.
type Stats struct {
	Reads    uint32 // completed reads
	Tears    uint32 // reads discarded because DMA reached the half being read
	Timeouts uint32 // reads that gave up waiting for the half boundary
	Rejects  uint32 // requests refused for their length
}

type readerHardware interface {
	Clock
	PositionSource
}

// Reader hands out one half of both rings per call, alternating halves.
// A Reader is not safe for concurrent use.
type Reader struct {
	cfg    Config
	region *Region
	hw     readerHardware
	cal    Calibration
	log    Logger

	// half is the half returned by the previous read. It starts at 1 so the
	// first read returns the top half.
	half  int
	stats Stats
}

// NewReader returns a reader over a calibrated region.
func NewReader(r *Region, hw readerHardware, cal Calibration, cfg Config, log Logger) *Reader {
	if log == nil {
		log = nopLogger
	}
	return &Reader{
		cfg:    cfg,
		region: r,
		hw:     hw,
		cal:    cal,
		log:    log,
		half:   1,
	}
}

// Stats returns a copy of the outcome counters.
func (r *Reader) Stats() Stats {
	return r.stats
}

// Half returns the half the next read will target.
func (r *Reader) Half() int {
	return r.half ^ 1
}

// quiescent reports whether DMA is writing the other half, at least
// BoundaryGuard words away from either end of it.
func (r *Reader) quiescent(half int) bool {
	ring := r.region.A
	rel := ring.Index(r.hw.WritePosition() - r.cal.OffsetA)
	hw := r.cfg.HalfWords()
	g := r.cfg.BoundaryGuard
	if half == 0 {
		return rel >= hw+g && rel < ring.Len()-g
	}
	return rel >= g && rel < hw-g
}

// Read fills dst with interleaved channel A and channel B samples from the
// next half of the rings, waiting until DMA has moved on to the other half.
// len(dst) must be even and no more than MaxRead. The samples come from the
// start of the half.
//
// A read that fails with ErrTear or ErrWaitTimeout still consumes its half;
// the next read targets the other one.
func (r *Reader) Read(dst []byte) (int, error) {
	if len(dst) > r.cfg.MaxRead {
		r.stats.Rejects++
		return 0, ErrRequestTooLarge
	}
	if len(dst)%2 != 0 {
		r.stats.Rejects++
		return 0, ErrOddLength
	}
	if len(dst) == 0 {
		return 0, nil
	}
	if r.region == nil {
		return 0, ErrNotReady
	}

	r.half ^= 1
	half := r.half

	start := r.hw.Now()
	for !r.quiescent(half) {
		if r.hw.Now()-start > r.cfg.WaitBudget {
			r.stats.Timeouts++
			r.log("[READ] timeout waiting for half " + string('0'+byte(half)))
			return 0, ErrWaitTimeout
		}
	}

	start = r.hw.Now()
	base := half * r.cfg.HalfWords()
	a := r.cal.OffsetA + r.cfg.WindowSkip + base
	b := r.cal.OffsetB + r.cfg.WindowSkip + base
	period := r.cfg.PeriodWords
	for i := 0; i < len(dst); i += 2 {
		dst[i] = DecodeWordScan(r.region.A.Window(a))
		dst[i+1] = DecodeMaskedRotate(r.region.B, b, r.cal.Mask)
		a += period
		b += period
	}

	if r.hw.Now()-start >= r.cfg.TearBudget || !r.quiescent(half) {
		r.stats.Tears++
		r.log("[READ] tear in half " + string('0'+byte(half)))
		return 0, ErrTear
	}
	r.stats.Reads++
	return len(dst), nil
}
