//go:build !tinygo

package core

// State stands in for interrupt.State under the regular Go toolchain.
// Host builds have no interrupts: sim platforms call the dispatchers
// synchronously from the test goroutine.
type State uintptr

func disableInterrupts() State {
	return 0
}

func restoreInterrupts(state State) {}
