//go:build rp2040

package pio

import (
	"device/rp"
	"machine"
	"runtime/volatile"
	"unsafe"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// buildSamplerProgram shifts one input bit per two cycles and drives the
// sample clock on side-set:
//
//	.side_set 1
//	.wrap_target
//	    in pins, 1  side 1
//	    nop         side 0
//	.wrap
//
// With left shift and autopush at 32 the first sampled bit ends up in bit
// 31 of each word.
func buildSamplerProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 1}
	return []uint16{
		asm.In(rp2pio.InSrcPins, 1).Side(1).Encode(), // 0: in pins, 1  side 1
		asm.Nop().Side(0).Encode(),                   // 1: nop         side 0
	}
}

const samplerOrigin = -1 // anywhere

// Sampler is the channel B bit sampler: one PIO state machine reading the
// comparator into its RX FIFO.
type Sampler struct {
	sm     rp2pio.StateMachine
	offset uint8
	div    uint16
	in     machine.Pin
	clk    machine.Pin
}

// NewSampler claims a state machine on PIO0 and loads the program. The
// machine stays disabled until Start.
func NewSampler(in, clk machine.Pin, clkDiv uint16) (*Sampler, error) {
	sm, err := rp2pio.PIO0.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	program := buildSamplerProgram()
	offset, err := sm.PIO().AddProgram(program, samplerOrigin)
	if err != nil {
		sm.Unclaim()
		return nil, err
	}

	pio := sm.PIO()
	in.Configure(machine.PinConfig{Mode: pio.PinMode()})
	clk.Configure(machine.PinConfig{Mode: pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetInPins(in, 1)
	cfg.SetSidesetPins(clk)
	cfg.SetSidesetParams(1, false, false)
	cfg.SetInShift(false, true, 32)
	cfg.SetFIFOJoin(rp2pio.FifoJoinRx)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(clkDiv, 0)

	sm.Init(offset, cfg)
	sm.SetPindirsConsecutive(clk, 1, true)
	sm.SetPindirsConsecutive(in, 1, false)

	return &Sampler{sm: sm, offset: offset, div: clkDiv, in: in, clk: clk}, nil
}

// StateMachine is exposed for DMA pacing.
func (s *Sampler) StateMachine() rp2pio.StateMachine {
	return s.sm
}

// RxAddress is the RX FIFO register DMA reads from.
func (s *Sampler) RxAddress() uint32 {
	return uint32(uintptr(unsafe.Pointer(s.sm.RxReg())))
}

func (s *Sampler) Start() {
	s.sm.ClearFIFOs()
	s.sm.Restart()
	s.sm.SetEnabled(true)
}

func (s *Sampler) Stop() {
	s.sm.SetEnabled(false)
	s.sm.ClearFIFOs()
}

// clkdiv returns this state machine's CLKDIV register. SM registers repeat
// every 0x18 bytes starting at SM0_CLKDIV.
func (s *Sampler) clkdiv() *volatile.Register32 {
	base := uintptr(unsafe.Pointer(&rp.PIO0.SM0_CLKDIV))
	if s.sm.PIO().BlockIndex() == 1 {
		base = uintptr(unsafe.Pointer(&rp.PIO1.SM0_CLKDIV))
	}
	return (*volatile.Register32)(unsafe.Pointer(base + uintptr(s.sm.StateMachineIndex())*0x18))
}

// SetClkDiv changes the divider without restarting the machine; the
// sampler's phase against the SPI clock drifts while frac is nonzero.
func (s *Sampler) SetClkDiv(whole uint16, frac uint8) {
	s.clkdiv().Set(uint32(whole)<<16 | uint32(frac)<<8)
}

// RestoreClkDiv returns to the nominal divider.
func (s *Sampler) RestoreClkDiv() {
	s.SetClkDiv(s.div, 0)
}

// Close stops the machine and frees it.
func (s *Sampler) Close() {
	s.Stop()
	s.sm.Unclaim()
}
