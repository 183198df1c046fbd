//go:build rp2040

package main

import "machine"

// Board wiring. SPI0 transmits the reset pulse on SDO and receives channel A
// on SDI; the PIO sampler reads channel B and drives its own sample clock
// so clock sync can watch both clocks on GPIO_IN.
const (
	pinSCK      = machine.GPIO18 // SPI0 clock, also monitored
	pinPulse    = machine.GPIO19 // SPI0 SDO: RC reset pulse to both channels
	pinChannelA = machine.GPIO16 // SPI0 SDI: comparator A
	pinChannelB = machine.GPIO20 // PIO input: comparator B
	pinClockB   = machine.GPIO21 // PIO side-set sample clock, monitored

	pinDischargeA = machine.GPIO14
	pinDischargeB = machine.GPIO15

	pinDisplaySDA = machine.GPIO4
	pinDisplaySCL = machine.GPIO5
)

// Peripheral rates. 125 MHz / (2*6) gives a 10.4167 MHz SPI bit clock;
// 192 bits per period is 54253 periods per second. The PIO sampler takes
// two instructions per bit, so a divider of 6 matches it.
const (
	sysClockHz     = 125000000
	spiFrequency   = 10416666
	pioClkDivWhole = 6

	// clock perturbation: fractional divider held for perturbMicros
	perturbFrac   = 128
	perturbMicros = 20

	displayAddress = 0x3C
	displayRefresh = 250000 // µs
)
