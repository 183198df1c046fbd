//go:build !tinygo

package core

// Host builds keep time in a plain variable driven by SetTime.
func getSystemTicks() uint32 {
	return systemTicks
}

func setSystemTicks(ticks uint32) {
	systemTicks = ticks
}
