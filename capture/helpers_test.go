package capture

import "errors"

// encodeA returns the channel A window holding v one bits followed by zeros,
// in capture order (bytes low to high, MSB first within a byte).
func encodeA(v int) [WindowWords]uint32 {
	var w [WindowWords]uint32
	for s := 0; s < v && s < MaxSample; s++ {
		j := s % WordBits
		w[s/WordBits] |= 1 << uint(8*(j/8)+7-j%8)
	}
	return w
}

// encodeB writes v one bits followed by a zero into ring, starting at bit
// mask of word word and walking towards the LSB.
func encodeB(ring Ring, word int, mask uint32, v int) {
	for k := 0; k <= v && k < MaxSample; k++ {
		w := ring.At(word)
		if k < v {
			ring.Set(word, w|mask)
		} else {
			ring.Set(word, w&^mask)
		}
		mask >>= 1
		if mask == 0 {
			mask = 1 << 31
			word++
		}
	}
}

func valueA(id int) int { return id * 7 % 129 }
func valueB(id int) int { return (id*11 + 3) % 129 }

func mod(a, n int) int {
	a %= n
	if a < 0 {
		a += n
	}
	return a
}

// stepClock advances by a fixed step on every reading.
type stepClock struct {
	now  uint32
	step uint32
}

func (c *stepClock) Now() uint32 {
	c.now += c.step
	return c.now
}

// scriptedPosition replays positions, repeating the last one.
type scriptedPosition struct {
	positions []int
	calls     int
}

func (p *scriptedPosition) WritePosition() int {
	i := p.calls
	if i >= len(p.positions) {
		i = len(p.positions) - 1
	}
	p.calls++
	return p.positions[i]
}

type scriptedHardware struct {
	stepClock
	scriptedPosition
}

// testMap is a flat address map: region at 0x20000000, peripherals at
// 0x40000000 + 0x100 per peripheral.
type testMap struct{}

func (testMap) BusAddress(offset uint32) uint32      { return 0x20000000 + offset }
func (testMap) PeripheralAddress(p Peripheral) uint32 { return 0x40000000 + uint32(p)<<8 }
func (testMap) RearmValue(pulse uint32) uint32        { return pulse | 1<<31 }

// simHardware is a software DMA producer. Time only moves when Now is
// called; every microsecond DMA appends SampleRate*PeriodWords/1e6 words to
// both rings.
//
// Channel A word t goes to ring index t%R and belongs to the period that
// starts at a count congruent to phaseA. Channel B word t goes to ring index
// (t+phaseB)%R and carries a bitstream whose periods start shiftB bits into
// every sixth word. Each period is a 64-bit pulse followed by the sample's
// one bits and then zeros. Sample values depend on the ring index of the
// period start, so any half can be checked after the fact.
type simHardware struct {
	testMap

	cfg    Config
	step   uint64
	now    uint64
	t0     uint64
	region *Region

	written    int
	phaseA     int
	phaseB     int
	shiftB     int
	startDelay uint64

	latchA    bool
	latchB    [2]bool
	discharge bool
	stalled   bool
	silentB   bool

	// clock sync
	locksAfter int
	perturbs   int
	monitors   int

	allocErr error
	startErr error
	events   []string
}

func newSim(cfg Config) *simHardware {
	return &simHardware{
		cfg:        cfg,
		step:       2,
		phaseA:     3,
		phaseB:     37,
		shiftB:     5,
		locksAfter: 1,
	}
}

func (s *simHardware) Now() uint32 {
	s.now += s.step
	s.advance()
	return uint32(s.now)
}

func (s *simHardware) WritePosition() int {
	return s.written % s.cfg.RingWords
}

func (s *simHardware) Discharge(force bool) {
	s.discharge = force
	if force {
		s.events = append(s.events, "discharge")
	} else {
		s.events = append(s.events, "release")
	}
}

func (s *simHardware) PerturbClock() {
	s.perturbs++
}

func (s *simHardware) MonitorClocks() uint32 {
	s.monitors++
	if s.perturbs < s.locksAfter && s.monitors%20 == 0 {
		return 1 << 11
	}
	return 1<<11 | 1<<18
}

func (s *simHardware) SyncPattern() SyncPattern {
	return SyncPattern{Mask: 1<<11 | 1<<18, Forbidden: []uint32{1 << 11, 1 << 18}}
}

func (s *simHardware) Allocate(words int) ([]uint32, error) {
	s.events = append(s.events, "allocate")
	if s.allocErr != nil {
		return nil, s.allocErr
	}
	return make([]uint32, words), nil
}

func (s *simHardware) StartCapture(r *Region) error {
	s.events = append(s.events, "start")
	if s.startErr != nil {
		return s.startErr
	}
	s.region = r
	s.t0 = s.now
	s.now += s.startDelay
	s.advance()
	return nil
}

func (s *simHardware) StopCapture() {
	s.events = append(s.events, "stop")
	s.region = nil
}

func (s *simHardware) Release() {
	s.events = append(s.events, "release-region")
}

func (s *simHardware) advance() {
	if s.region == nil || s.stalled {
		return
	}
	target := int((s.now - s.t0) * uint64(s.cfg.SampleRate) * uint64(s.cfg.PeriodWords) / 1000000)
	for ; s.written < target; s.written++ {
		s.produce(s.written)
	}
}

func (s *simHardware) pulseOn() bool {
	return s.region.Pulse()[0] != 0
}

func (s *simHardware) produce(t int) {
	R := s.cfg.RingWords
	P := s.cfg.PeriodWords
	skip := s.cfg.WindowSkip

	// A period carries a pulse only if the pattern was live when it began
	// and still is.
	live := s.pulseOn()

	idx := t % R
	off := mod(t-s.phaseA, P)
	if off == 0 {
		s.latchA = live
	}
	var wa uint32
	switch {
	case !s.latchA || !live:
	case off < skip:
		wa = 0xffffffff
	case !s.discharge:
		start := mod(idx-off, R)
		wa = encodeA(valueA(start / P))[off-skip]
	}
	s.region.A.Set(idx, wa)

	if t%P == 0 {
		s.latchB[(t/P)%2] = live
	}
	periodBits := P * WordBits
	pulseBits := skip * WordBits
	var wb uint32
	for j := 0; j < WordBits; j++ {
		q := WordBits*t + j - s.shiftB
		if q < 0 {
			continue
		}
		k := q / periodBits
		p := q % periodBits
		if !s.latchB[k%2] || !live {
			continue
		}
		on := p < pulseBits
		if !on && !s.discharge {
			start := (P*k + s.phaseB) % R
			on = p-pulseBits < valueB(start/P)
		}
		if on && !s.silentB {
			wb |= 1 << uint(31-j)
		}
	}
	s.region.B.Set(t+s.phaseB, wb)
}

var errSim = errors.New("sim failure")
