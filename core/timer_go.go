//go:build !tinygo

package core

// Host builds keep ticks in a plain variable; tests set it with SetTime.
func getSystemTicks() uint32 {
	return systemTicks
}

func setSystemTicks(ticks uint32) {
	systemTicks = ticks
}
