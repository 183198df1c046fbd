package capture

import "testing"

func newTestRegion(t *testing.T, cfg Config) *Region {
	t.Helper()
	r, err := NewRegion(make([]uint32, NewLayout(cfg).Words()), cfg)
	if err != nil {
		t.Fatalf("NewRegion: %v", err)
	}
	return r
}

func TestRegionLayout(t *testing.T) {
	cfg := DefaultConfig()
	l := NewLayout(cfg)

	if l.Words() != 60+2*16200 {
		t.Errorf("expected %d words, got %d", 60+2*16200, l.Words())
	}
	if l.RingA() != 60 || l.RingB() != 60+16200 {
		t.Errorf("unexpected ring offsets a=%d b=%d", l.RingA(), l.RingB())
	}
	if l.Descriptor(DescriptorCount-1)+DescriptorWords > l.Rearm() {
		t.Error("descriptors overlap the re-arm word")
	}
	if l.Pulse()+cfg.PeriodWords > l.RingA() {
		t.Error("pulse pattern overlaps channel A ring")
	}
}

func TestNewRegionRejectsWrongSize(t *testing.T) {
	cfg := DefaultConfig()
	if _, err := NewRegion(make([]uint32, 100), cfg); err != ErrRegionSize {
		t.Errorf("expected ErrRegionSize, got %v", err)
	}
}

func TestRegionBuild(t *testing.T) {
	cfg := DefaultConfig()
	r := newTestRegion(t, cfg)
	for i := range r.Words() {
		r.Words()[i] = 0xdeadbeef
	}

	var m testMap
	if err := r.Build(m); err != nil {
		t.Fatalf("Build: %v", err)
	}

	for i, w := range r.Pulse() {
		if w != cfg.PulsePattern[i] {
			t.Errorf("pulse word %d: expected %08x, got %08x", i, cfg.PulsePattern[i], w)
		}
	}
	if got := r.Words()[r.Layout.Rearm()]; got != 0x20000000+34*4|1<<31 {
		t.Errorf("re-arm word: got %08x", got)
	}
	if _, ok := r.A.FirstNonZero(r.A.Len()); ok {
		t.Error("channel A ring not zeroed")
	}
	if _, ok := r.B.FirstNonZero(r.B.Len()); ok {
		t.Error("channel B ring not zeroed")
	}

	// Every encoded next link must point at a descriptor in the region.
	for i := 0; i < DescriptorCount; i++ {
		_, _, _, _, _, next := r.Descriptor(i)
		found := false
		for j := 0; j < DescriptorCount; j++ {
			if next == m.BusAddress(uint32(r.Layout.Descriptor(j)*4)) {
				found = true
			}
		}
		if !found {
			t.Errorf("descriptor %d links to %08x outside the chain", i, next)
		}
	}

	flags, pacing, src, dst, length, _ := r.Descriptor(DescReceiveA)
	t.Logf("receive A: flags=%x pacing=%d src=%08x dst=%08x len=%d", flags, pacing, src, dst, length)
	if src != m.PeripheralAddress(PeriphChannelA) {
		t.Errorf("receive A source: got %08x", src)
	}
	if dst != m.BusAddress(60*4) {
		t.Errorf("receive A destination: got %08x", dst)
	}
	if length != 16200*4 {
		t.Errorf("receive A length: got %d", length)
	}
	if flags&FlagDstIncrement == 0 || flags&FlagPaced == 0 || pacing != PeriphChannelA {
		t.Errorf("receive A flags: got %x pacing %d", flags, pacing)
	}

	_, _, src, dst, length, _ = r.Descriptor(DescTransmitPulse)
	if src != m.BusAddress(34*4) || dst != m.PeripheralAddress(PeriphPulseTX) || length != 24 {
		t.Errorf("pulse descriptor: src=%08x dst=%08x len=%d", src, dst, length)
	}
}

func TestRegionChainIsCircular(t *testing.T) {
	r := newTestRegion(t, DefaultConfig())
	chain := r.Chain()
	if err := CheckChain(chain[:]); err != nil {
		t.Fatalf("CheckChain: %v", err)
	}

	// Follow the pulse pair: re-arm then transmit then re-arm again.
	if chain[DescRearmTX].Next != DescTransmitPulse || chain[DescTransmitPulse].Next != DescRearmTX {
		t.Error("pulse transmitter does not alternate between re-arm and transmit")
	}
	if chain[DescReceiveA].Next != DescReceiveA || chain[DescReceiveB].Next != DescReceiveB {
		t.Error("receive descriptors do not loop onto themselves")
	}
}

func TestCheckChainDetectsOpenChain(t *testing.T) {
	testCases := []struct {
		name  string
		links []int
	}{
		{"dangling", []int{1, 2, 3, 4}},
		{"negative", []int{0, -1}},
		{"tail into loop", []int{1, 2, 1}},
	}
	for _, tc := range testCases {
		chain := make([]Descriptor, len(tc.links))
		for i, n := range tc.links {
			chain[i].Next = n
		}
		if err := CheckChain(chain); err != ErrChainOpen {
			t.Errorf("%s: expected ErrChainOpen, got %v", tc.name, err)
		}
	}
}

func TestRegionSetPulse(t *testing.T) {
	cfg := DefaultConfig()
	r := newTestRegion(t, cfg)
	r.SetPulse(true)
	if r.Pulse()[0] != 0x00feffff {
		t.Errorf("expected pulse 0x00feffff, got %08x", r.Pulse()[0])
	}
	r.SetPulse(false)
	for i, w := range r.Pulse() {
		if w != 0 {
			t.Errorf("pulse word %d still %08x after silencing", i, w)
		}
	}
	r.SetPulse(true)
	if r.Pulse()[0] != 0x00feffff {
		t.Error("pulse not restored")
	}
}
