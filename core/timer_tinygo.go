//go:build tinygo

package core

import "sync/atomic"

// On the MCU, ticks are written by the main loop and read from interrupt
// handlers (event timestamps), so access is atomic.
func getSystemTicks() uint32 {
	return atomic.LoadUint32(&systemTicks)
}

func setSystemTicks(ticks uint32) {
	atomic.StoreUint32(&systemTicks, ticks)
}
