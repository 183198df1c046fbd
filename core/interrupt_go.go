//go:build !tinygo

package core

// State stands in for the saved interrupt mask on the host.
type State uintptr

// Host builds have nothing to mask; tests run on one goroutine.
func disableInterrupts() State { return 0 }

func restoreInterrupts(state State) {}
