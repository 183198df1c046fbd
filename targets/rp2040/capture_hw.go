//go:build rp2040

package main

import (
	"device/rp"
	"errors"
	"machine"
	"unsafe"

	"rcadc/capture"
	"rcadc/targets/pio"
)

var errCaptureRunning = errors.New("capture already running")

// captureHW implements capture.Hardware on an RP2040.
//
// The descriptor chain is run by six DMA channels. Each ring has a data
// channel and a control channel: when the data channel fills the ring it
// chains to its control channel, which copies the next descriptor's
// destination word into the data channel's WRITE_ADDR trigger alias and
// restarts it. The pulse channel sends one period of pattern to the SPI
// transmitter and chains to the re-arm channel, which copies the re-arm word
// (the pattern's address) into the pulse channel's READ_ADDR trigger.
type captureHW struct {
	spi     *machine.SPI
	sampler *pio.Sampler

	ringA, ctlA dmaChannel
	ringB, ctlB dmaChannel
	pulse       dmaChannel
	rearm       dmaChannel

	words   []uint32
	region  *capture.Region
	running bool
}

func newCaptureHW() (*captureHW, error) {
	hw := &captureHW{spi: machine.SPI0}

	err := hw.spi.Configure(machine.SPIConfig{
		Frequency: spiFrequency,
		SCK:       pinSCK,
		SDO:       pinPulse,
		SDI:       pinChannelA,
		Mode:      0,
		LSBFirst:  false,
		DataBits:  8,
	})
	if err != nil {
		return nil, err
	}

	hw.sampler, err = pio.NewSampler(pinChannelB, pinClockB, pioClkDivWhole)
	if err != nil {
		return nil, err
	}

	channels := []*dmaChannel{&hw.ringA, &hw.ctlA, &hw.ringB, &hw.ctlB, &hw.pulse, &hw.rearm}
	for i, ch := range channels {
		if *ch, err = claimDMA(); err != nil {
			for _, claimed := range channels[:i] {
				claimed.unclaim()
			}
			hw.sampler.Close()
			return nil, err
		}
	}

	pinDischargeA.Configure(machine.PinConfig{Mode: machine.PinInput})
	pinDischargeB.Configure(machine.PinConfig{Mode: machine.PinInput})
	return hw, nil
}

func (hw *captureHW) dmaMask() uint32 {
	return 1<<hw.ringA | 1<<hw.ctlA | 1<<hw.ringB | 1<<hw.ctlB | 1<<hw.pulse | 1<<hw.rearm
}

// Clock

func (hw *captureHW) Now() uint32 {
	return GetHardwareTime()
}

// PositionSource

func (hw *captureHW) WritePosition() int {
	if hw.region == nil {
		return 0
	}
	base := hw.BusAddress(uint32(hw.region.Layout.RingA() * 4))
	pos := int(hw.ringA.hw().WRITE_ADDR.Get()-base) / 4
	if r := hw.region.Layout.RingWords; pos >= r {
		pos -= r
	}
	return pos
}

// Discharger

func (hw *captureHW) Discharge(force bool) {
	for _, p := range []machine.Pin{pinDischargeA, pinDischargeB} {
		if force {
			p.Configure(machine.PinConfig{Mode: machine.PinOutput})
			p.Low()
		} else {
			p.Configure(machine.PinConfig{Mode: machine.PinInput})
		}
	}
}

// ClockMonitor

func (hw *captureHW) PerturbClock() {
	hw.sampler.SetClkDiv(pioClkDivWhole, perturbFrac)
	busyWait(perturbMicros)
	hw.sampler.RestoreClkDiv()
}

func (hw *captureHW) MonitorClocks() uint32 {
	return rp.SIO.GPIO_IN.Get()
}

// SyncPattern flags samples where exactly one of the two clocks is high.
func (hw *captureHW) SyncPattern() capture.SyncPattern {
	sck := uint32(1) << pinSCK
	clkB := uint32(1) << pinClockB
	return capture.SyncPattern{Mask: sck | clkB, Forbidden: []uint32{sck, clkB}}
}

// AddressMap

func (hw *captureHW) BusAddress(offset uint32) uint32 {
	return uint32(uintptr(unsafe.Pointer(&hw.words[0]))) + offset
}

func (hw *captureHW) PeripheralAddress(p capture.Peripheral) uint32 {
	switch p {
	case capture.PeriphChannelA, capture.PeriphPulseTX:
		return regAddr(&rp.SPI0.SSPDR)
	case capture.PeriphChannelB:
		return hw.sampler.RxAddress()
	case capture.PeriphRearmTX:
		return regAddr(&hw.pulse.hw().AL3_READ_ADDR_TRIG)
	}
	return 0
}

// RearmValue is what the re-arm channel writes into the pulse channel's
// READ_ADDR trigger: the pattern itself.
func (hw *captureHW) RearmValue(pulse uint32) uint32 {
	return pulse
}

// Allocate takes the region from the heap; TinyGo word-aligns it.
func (hw *captureHW) Allocate(words int) ([]uint32, error) {
	if hw.running {
		return nil, errCaptureRunning
	}
	hw.words = make([]uint32, words)
	return hw.words, nil
}

func (hw *captureHW) Release() {
	hw.words = nil
	hw.region = nil
}

// StartCapture programs the channels from the descriptors in r and starts
// them, receivers first so no received byte is lost.
func (hw *captureHW) StartCapture(r *capture.Region) error {
	if hw.running {
		return errCaptureRunning
	}
	hw.region = r

	hw.setupRing(capture.DescReceiveA, hw.ringA, hw.ctlA, dmaSize8, dreqSPI0RX)
	hw.setupRing(capture.DescReceiveB, hw.ringB, hw.ctlB, dmaSize32, pioRxDREQ(hw.sampler.StateMachine()))
	hw.setupPulse()

	hw.sampler.Start()
	hw.ringB.hw().CTRL_TRIG.Set(hw.ringB.hw().AL1_CTRL.Get())
	hw.ringA.hw().CTRL_TRIG.Set(hw.ringA.hw().AL1_CTRL.Get())
	// Starting the pulse channel clocks the SPI and with it channel A.
	hw.rearm.hw().CTRL_TRIG.Set(hw.rearm.hw().AL1_CTRL.Get())

	hw.running = true
	return nil
}

// setupRing programs a data channel from descriptor i and its control
// channel from the descriptor i links to. Neither is triggered.
func (hw *captureHW) setupRing(i int, data, ctl dmaChannel, size dmaSize, dreq uint32) {
	flags, _, src, dst, length, _ := hw.region.Descriptor(i)
	chain := hw.region.Chain()
	next := hw.region.Layout.Descriptor(chain[i].Next)

	cc := newDMACtrl(ctl)
	cc.setSize(size)
	cc.setTREQ(dreq)
	cc.setReadIncrement(flags&capture.FlagSrcIncrement != 0)
	cc.setWriteIncrement(flags&capture.FlagDstIncrement != 0)
	cc.setHighPriority(true)
	cc.setIRQQuiet(true)
	cc.setEnable(true)
	d := data.hw()
	d.READ_ADDR.Set(src)
	d.WRITE_ADDR.Set(dst)
	d.TRANS_COUNT.Set(length >> uint(size))
	d.AL1_CTRL.Set(cc.CTRL)

	// the control channel copies the next descriptor's dst word (word 2)
	cc = newDMACtrl(ctl)
	cc.setIRQQuiet(true)
	cc.setEnable(true)
	c := ctl.hw()
	c.READ_ADDR.Set(hw.BusAddress(uint32(next+2) * 4))
	c.WRITE_ADDR.Set(regAddr(&d.AL2_WRITE_ADDR_TRIG))
	c.TRANS_COUNT.Set(1)
	c.AL1_CTRL.Set(cc.CTRL)
}

// setupPulse programs the pulse and re-arm channels. The re-arm channel is
// the one triggered: its single transfer starts the pulse channel.
func (hw *captureHW) setupPulse() {
	_, _, src, dst, length, _ := hw.region.Descriptor(capture.DescTransmitPulse)
	cc := newDMACtrl(hw.rearm)
	cc.setSize(dmaSize8)
	cc.setTREQ(dreqSPI0TX)
	cc.setReadIncrement(true)
	cc.setIRQQuiet(true)
	cc.setEnable(true)
	p := hw.pulse.hw()
	p.WRITE_ADDR.Set(dst)
	p.READ_ADDR.Set(src)
	p.TRANS_COUNT.Set(length)
	p.AL1_CTRL.Set(cc.CTRL)

	_, _, src, dst, _, _ = hw.region.Descriptor(capture.DescRearmTX)
	cc = newDMACtrl(hw.rearm)
	cc.setIRQQuiet(true)
	cc.setEnable(true)
	a := hw.rearm.hw()
	a.READ_ADDR.Set(src)
	a.WRITE_ADDR.Set(dst)
	a.TRANS_COUNT.Set(1)
	a.AL1_CTRL.Set(cc.CTRL)
}

// StopCapture halts all six channels, then the peripherals.
func (hw *captureHW) StopCapture() {
	abortDMA(hw.dmaMask())
	hw.sampler.Stop()
	for hw.spi.Bus.SSPSR.HasBits(rp.SPI0_SSPSR_RNE) {
		hw.spi.Bus.SSPDR.Get()
	}
	hw.running = false
}

// Close returns the DMA channels and the state machine. The capture must
// already be stopped.
func (hw *captureHW) Close() {
	if hw.running {
		hw.StopCapture()
	}
	for _, ch := range []dmaChannel{hw.ringA, hw.ctlA, hw.ringB, hw.ctlB, hw.pulse, hw.rearm} {
		ch.unclaim()
	}
	hw.sampler.Close()
}
