//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"

	"rcadc/core"
)

// RP2040 timer registers; the timer counts microseconds.
const (
	timerBase     = 0x40054000
	timerTIMERAWH = timerBase + 0x24
	timerTIMERAWL = timerBase + 0x28
)

var (
	timerRAWH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
)

// InitClock registers the time base constants.
func InitClock() {
	core.RegisterConstant("MCU", "rp2040")
	core.RegisterConstant("CLOCK_FREQ", uint32(core.TimerFreq))
}

// GetHardwareTime returns the low word of the microsecond counter.
func GetHardwareTime() uint32 {
	return timerRAWL.Get()
}

// GetHardwareUptime reads the 64-bit counter without latching.
func GetHardwareUptime() uint64 {
	for {
		high1 := timerRAWH.Get()
		low := timerRAWL.Get()
		high2 := timerRAWH.Get()
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

// UpdateSystemTime feeds the core time base; called every main loop pass.
func UpdateSystemTime() {
	core.SetTime(GetHardwareTime())
}

// busyWait spins for us microseconds.
func busyWait(us uint32) {
	start := GetHardwareTime()
	for GetHardwareTime()-start < us {
	}
}
