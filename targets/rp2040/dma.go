//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"runtime/volatile"
	"unsafe"

	pio "github.com/tinygo-org/pio/rp2-pio"
)

var errNoDMAChannel = errors.New("no free DMA channel")

// dmaChannelHW is one channel's register block, see rp.DMA_Type.
//
//goland:noinspection GoSnakeCaseUsage
type dmaChannelHW struct {
	READ_ADDR            volatile.Register32
	WRITE_ADDR           volatile.Register32
	TRANS_COUNT          volatile.Register32
	CTRL_TRIG            volatile.Register32
	AL1_CTRL             volatile.Register32
	AL1_READ_ADDR        volatile.Register32
	AL1_WRITE_ADDR       volatile.Register32
	AL1_TRANS_COUNT_TRIG volatile.Register32
	AL2_CTRL             volatile.Register32
	AL2_TRANS_COUNT      volatile.Register32
	AL2_READ_ADDR        volatile.Register32
	AL2_WRITE_ADDR_TRIG  volatile.Register32
	AL3_CTRL             volatile.Register32
	AL3_WRITE_ADDR       volatile.Register32
	AL3_TRANS_COUNT      volatile.Register32
	AL3_READ_ADDR_TRIG   volatile.Register32
}

const dmaChannels = 12

var (
	dmaHW          = (*[dmaChannels]dmaChannelHW)(unsafe.Pointer(rp.DMA))
	dmaClaimedMask uint16
)

// dmaChannel is a claimed channel index.
type dmaChannel uint8

func claimDMA() (dmaChannel, error) {
	for i := uint8(0); i < dmaChannels; i++ {
		if dmaClaimedMask&(1<<i) == 0 {
			dmaClaimedMask |= 1 << i
			return dmaChannel(i), nil
		}
	}
	return 0, errNoDMAChannel
}

func (ch dmaChannel) unclaim() {
	dmaClaimedMask &^= 1 << ch
}

func (ch dmaChannel) hw() *dmaChannelHW {
	return &dmaHW[ch]
}

func (ch dmaChannel) busy() bool {
	return ch.hw().CTRL_TRIG.Get()&rp.DMA_CH0_CTRL_TRIG_BUSY != 0
}

// abortDMA stops every channel in mask and waits for in-flight transfers to
// drain.
func abortDMA(mask uint32) {
	for ch := 0; ch < dmaChannels; ch++ {
		if mask&(1<<ch) != 0 {
			dmaHW[ch].CTRL_TRIG.ClearBits(rp.DMA_CH0_CTRL_TRIG_EN_Msk)
		}
	}
	rp.DMA.CHAN_ABORT.Set(mask)
	start := GetHardwareTime()
	for rp.DMA.CHAN_ABORT.Get()&mask != 0 {
		if GetHardwareTime()-start > 1000 {
			break
		}
	}
}

type dmaSize uint32

const (
	dmaSize8 dmaSize = iota
	dmaSize16
	dmaSize32
)

// dmaTreqPermanent runs a channel unpaced.
const dmaTreqPermanent = 0x3f

// DREQ numbers, RP2040 datasheet 2.5.3.1.
const (
	dreqPIO0RX0 = 0x4
	dreqSPI0TX  = 0x10
	dreqSPI0RX  = 0x11
)

func pioRxDREQ(sm pio.StateMachine) uint32 {
	return dreqPIO0RX0 + uint32(sm.PIO().BlockIndex())*8 + uint32(sm.StateMachineIndex())
}

// dmaCtrl builds a CTRL register value.
type dmaCtrl struct {
	CTRL uint32
}

func newDMACtrl(ch dmaChannel) (cc dmaCtrl) {
	cc.setChainTo(ch) // chaining to itself disables chaining
	cc.setTREQ(dmaTreqPermanent)
	cc.setSize(dmaSize32)
	return cc
}

func (cc *dmaCtrl) setTREQ(dreq uint32) {
	cc.CTRL = cc.CTRL&^uint32(rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_Msk) | dreq<<rp.DMA_CH0_CTRL_TRIG_TREQ_SEL_Pos
}

func (cc *dmaCtrl) setChainTo(ch dmaChannel) {
	cc.CTRL = cc.CTRL&^uint32(rp.DMA_CH0_CTRL_TRIG_CHAIN_TO_Msk) | uint32(ch)<<rp.DMA_CH0_CTRL_TRIG_CHAIN_TO_Pos
}

func (cc *dmaCtrl) setSize(size dmaSize) {
	cc.CTRL = cc.CTRL&^uint32(rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_Msk) | uint32(size)<<rp.DMA_CH0_CTRL_TRIG_DATA_SIZE_Pos
}

func (cc *dmaCtrl) setReadIncrement(on bool) {
	setBit(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_INCR_READ_Pos, on)
}

func (cc *dmaCtrl) setWriteIncrement(on bool) {
	setBit(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_INCR_WRITE_Pos, on)
}

func (cc *dmaCtrl) setIRQQuiet(on bool) {
	setBit(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_IRQ_QUIET_Pos, on)
}

func (cc *dmaCtrl) setHighPriority(on bool) {
	setBit(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_HIGH_PRIORITY_Pos, on)
}

func (cc *dmaCtrl) setEnable(on bool) {
	setBit(&cc.CTRL, rp.DMA_CH0_CTRL_TRIG_EN_Pos, on)
}

func setBit(reg *uint32, pos uint32, on bool) {
	if on {
		*reg |= 1 << pos
	} else {
		*reg &^= 1 << pos
	}
}

func regAddr(r *volatile.Register32) uint32 {
	return uint32(uintptr(unsafe.Pointer(r)))
}
