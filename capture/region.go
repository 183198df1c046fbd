package capture

import "errors"

// Capture region layout, in words from the start of the region.
//
//	 0..31   four 8-word transfer descriptors
//	33       TX re-arm word
//	34..39   reset pulse pattern (PeriodWords words)
//	60..     channel A ring, then channel B ring
const (
	DescriptorWords = 8
	DescriptorCount = 4

	descriptorsAt = 0
	rearmAt       = 33
	pulseAt       = 34
	ringsAt       = 60
)

// Descriptor indices within the chain.
const (
	DescReceiveB = iota
	DescRearmTX
	DescTransmitPulse
	DescReceiveA
)

// Peripheral names a DMA endpoint that is not region memory.
type Peripheral uint8

const (
	PeriphNone Peripheral = iota
	PeriphChannelA        // channel A receive data register
	PeriphChannelB        // channel B receive FIFO
	PeriphPulseTX         // reset pulse transmit data register
	PeriphRearmTX         // register that re-arms the pulse transmitter
)

// DescriptorFlags select transfer behaviour.
type DescriptorFlags uint32

const (
	FlagInterrupt DescriptorFlags = 1 << iota
	FlagSrcIncrement
	FlagDstIncrement
	FlagPaced
)

// Endpoint is either a byte offset into the region or a peripheral.
type Endpoint struct {
	Periph Peripheral
	Offset uint32
}

// Memory returns an endpoint at a byte offset into the region.
func Memory(offset uint32) Endpoint {
	return Endpoint{Offset: offset}
}

// Register returns a peripheral endpoint.
func Register(p Peripheral) Endpoint {
	return Endpoint{Periph: p}
}

// IsMemory reports whether the endpoint points into the region.
func (e Endpoint) IsMemory() bool {
	return e.Periph == PeriphNone
}

// Descriptor is one link of the DMA transfer chain.
type Descriptor struct {
	Flags  DescriptorFlags
	Pacing Peripheral
	Src    Endpoint
	Dst    Endpoint
	Length uint32 // bytes
	Next   int    // index of the next descriptor
}

// AddressMap turns endpoints into bus addresses for the DMA engine.
type AddressMap interface {
	// BusAddress returns the DMA-visible address of a byte offset into
	// the region.
	BusAddress(offset uint32) uint32

	// PeripheralAddress returns the bus address of a peripheral register.
	PeripheralAddress(p Peripheral) uint32

	// RearmValue returns the word the re-arm descriptor copies into
	// PeriphRearmTX. pulse is the bus address of the pulse pattern.
	RearmValue(pulse uint32) uint32
}

// Layout locates the sub-regions of a capture region.
type Layout struct {
	PeriodWords int
	RingWords   int
}

// NewLayout returns the layout for cfg.
func NewLayout(cfg Config) Layout {
	return Layout{PeriodWords: cfg.PeriodWords, RingWords: cfg.RingWords}
}

// Words is the total size of the region in words.
func (l Layout) Words() int {
	return ringsAt + 2*l.RingWords
}

// RingA is the word offset of channel A's ring.
func (l Layout) RingA() int { return ringsAt }

// RingB is the word offset of channel B's ring.
func (l Layout) RingB() int { return ringsAt + l.RingWords }

// Pulse is the word offset of the reset pulse pattern.
func (l Layout) Pulse() int { return pulseAt }

// Rearm is the word offset of the TX re-arm word.
func (l Layout) Rearm() int { return rearmAt }

// Descriptor is the word offset of descriptor i.
func (l Layout) Descriptor(i int) int { return descriptorsAt + i*DescriptorWords }

var (
	ErrRegionSize = errors.New("capture: region size does not match layout")
	ErrChainOpen  = errors.New("capture: descriptor chain is not circular")
)

// Region is the DMA-visible capture memory.
type Region struct {
	Layout Layout
	A, B   Ring

	words   []uint32
	pattern []uint32
}

// NewRegion carves a region out of words. The slice must be exactly
// Layout.Words() long.
func NewRegion(words []uint32, cfg Config) (*Region, error) {
	l := NewLayout(cfg)
	if len(words) != l.Words() || len(cfg.PulsePattern) != cfg.PeriodWords || pulseAt+cfg.PeriodWords > ringsAt {
		return nil, ErrRegionSize
	}
	r := &Region{
		Layout:  l,
		words:   words,
		pattern: append([]uint32(nil), cfg.PulsePattern...),
	}
	r.A = NewRing(words[l.RingA() : l.RingA()+l.RingWords])
	r.B = NewRing(words[l.RingB() : l.RingB()+l.RingWords])
	return r, nil
}

// Words returns the whole region.
func (r *Region) Words() []uint32 {
	return r.words
}

// Pulse returns the live pulse pattern words.
func (r *Region) Pulse() []uint32 {
	return r.words[pulseAt : pulseAt+r.Layout.PeriodWords]
}

// SetPulse enables or silences the reset pulse. With the pulse silenced
// neither RC network is recharged and both channels read back zeros.
func (r *Region) SetPulse(enabled bool) {
	p := r.Pulse()
	for i := range p {
		if enabled {
			p[i] = r.pattern[i]
		} else {
			p[i] = 0
		}
	}
}

// Chain returns the four descriptors of the transfer cycle.
//
// Channel B and channel A each receive into their whole ring and link back
// to themselves, so their engines wrap forever. The pulse transmitter
// alternates between re-arming itself and sending one period of pattern.
func (r *Region) Chain() [DescriptorCount]Descriptor {
	ringBytes := uint32(r.Layout.RingWords * 4)
	return [DescriptorCount]Descriptor{
		DescReceiveB: {
			Flags:  FlagDstIncrement | FlagPaced,
			Pacing: PeriphChannelB,
			Src:    Register(PeriphChannelB),
			Dst:    Memory(uint32(r.Layout.RingB() * 4)),
			Length: ringBytes,
			Next:   DescReceiveB,
		},
		DescRearmTX: {
			Flags:  FlagSrcIncrement | FlagDstIncrement,
			Src:    Memory(uint32(rearmAt * 4)),
			Dst:    Register(PeriphRearmTX),
			Length: 4,
			Next:   DescTransmitPulse,
		},
		DescTransmitPulse: {
			Flags:  FlagSrcIncrement | FlagPaced,
			Pacing: PeriphPulseTX,
			Src:    Memory(uint32(pulseAt * 4)),
			Dst:    Register(PeriphPulseTX),
			Length: uint32(r.Layout.PeriodWords * 4),
			Next:   DescRearmTX,
		},
		DescReceiveA: {
			Flags:  FlagDstIncrement | FlagPaced,
			Pacing: PeriphChannelA,
			Src:    Register(PeriphChannelA),
			Dst:    Memory(uint32(r.Layout.RingA() * 4)),
			Length: ringBytes,
			Next:   DescReceiveA,
		},
	}
}

// Build zero-fills the region and writes the pulse pattern, the re-arm word
// and the encoded descriptor chain.
func (r *Region) Build(m AddressMap) error {
	for i := range r.words {
		r.words[i] = 0
	}
	r.SetPulse(true)
	r.words[rearmAt] = m.RearmValue(m.BusAddress(pulseAt * 4))

	chain := r.Chain()
	if err := CheckChain(chain[:]); err != nil {
		return err
	}
	for i, d := range chain {
		at := r.Layout.Descriptor(i)
		cb := r.words[at : at+DescriptorWords]
		cb[0] = uint32(d.Flags) | uint32(d.Pacing)<<16
		cb[1] = resolve(m, d.Src)
		cb[2] = resolve(m, d.Dst)
		cb[3] = d.Length
		cb[4] = 0
		cb[5] = m.BusAddress(uint32(r.Layout.Descriptor(d.Next) * 4))
	}
	return nil
}

// Descriptor decodes descriptor i back out of region memory.
func (r *Region) Descriptor(i int) (flags DescriptorFlags, pacing Peripheral, src, dst, length, next uint32) {
	at := r.Layout.Descriptor(i)
	cb := r.words[at : at+DescriptorWords]
	return DescriptorFlags(cb[0] & 0xffff), Peripheral(cb[0] >> 16), cb[1], cb[2], cb[3], cb[5]
}

func resolve(m AddressMap, e Endpoint) uint32 {
	if e.IsMemory() {
		return m.BusAddress(e.Offset)
	}
	return m.PeripheralAddress(e.Periph)
}

// CheckChain verifies that following Next from every descriptor eventually
// returns to it, so no engine ever runs off the end of its chain.
func CheckChain(chain []Descriptor) error {
	for start := range chain {
		at := start
		for hops := 0; ; hops++ {
			if hops > len(chain) {
				return ErrChainOpen
			}
			next := chain[at].Next
			if next < 0 || next >= len(chain) {
				return ErrChainOpen
			}
			at = next
			if at == start {
				break
			}
		}
	}
	return nil
}
