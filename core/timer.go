package core

// TimerFreq is the tick rate of GetTime. RP2040/RP2350 expose a 1MHz
// microsecond counter, which targets copy in with SetTime.
const (
	TimerFreq = 1000000
)

var systemTicks uint32

// GetTime returns the current system time in timer ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (for testing/hardware integration)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint32 {
	return uint32(uint64(us) * TimerFreq / 1000000)
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000000 / TimerFreq)
}

// ProcessTimers runs every timer that is due. Call it from the main loop
// after refreshing the system time.
func ProcessTimers() {
	currentTime = GetTime()
	TimerDispatch()
}
