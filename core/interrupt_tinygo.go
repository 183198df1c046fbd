//go:build tinygo

package core

import "runtime/interrupt"

// disableInterrupts masks interrupts so the event ring and timer list can
// be touched from both the main loop and interrupt handlers.
func disableInterrupts() interrupt.State {
	return interrupt.Disable()
}

func restoreInterrupts(state interrupt.State) {
	interrupt.Restore(state)
}
