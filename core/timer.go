package core

// TimerFreq is the rate of the system time base. The RP2040 timer counts
// microseconds.
const TimerFreq = 1000000

var (
	systemTicks uint32

	// uptime extension of the 32-bit time base
	uptimeHigh uint32
	lastTicks  uint32
)

// GetTime returns the current system time in timer ticks.
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime is called by the target with the hardware counter.
func SetTime(ticks uint32) {
	if ticks < lastTicks {
		uptimeHigh++
	}
	lastTicks = ticks
	setSystemTicks(ticks)
}

// GetUptime extends the time base to 64 bits. SetTime must be called at
// least once per counter wrap (about 71 minutes at 1 MHz).
func GetUptime() uint64 {
	return uint64(uptimeHigh)<<32 | uint64(GetTime())
}

// TimerFromUS converts microseconds to timer ticks.
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds.
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// TimerInit resets the uptime extension.
func TimerInit() {
	uptimeHigh = 0
	lastTicks = GetTime()
}

// ProcessTimers runs every scheduled timer that is due.
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
