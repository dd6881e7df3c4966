package core

// Critical runs fn with interrupts masked. Foreground code uses it to touch
// memory that an engine handler also reaches.
func Critical(fn func()) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	fn()
}
