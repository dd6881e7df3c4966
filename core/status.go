package core

// StatusIndicator is the diagnostic output pulsed once per transaction.
// Assert is called from interrupt context on select, Release from the
// periodic task.
type StatusIndicator interface {
	Assert()
	Release()
}

// gpioStatus drives an active-low LED through the GPIO driver
type gpioStatus struct {
	pin GPIOPin
}

// NewGPIOStatus configures pin as an output and returns an indicator on it
func NewGPIOStatus(pin GPIOPin) StatusIndicator {
	if err := MustGPIO().ConfigureOutput(pin); err != nil {
		panic("status indicator: cannot configure pin " + itoa(int(pin)))
	}
	return gpioStatus{pin: pin}
}

func (g gpioStatus) Assert() {
	_ = MustGPIO().SetPin(g.pin, false)
}

func (g gpioStatus) Release() {
	_ = MustGPIO().SetPin(g.pin, true)
}

type noStatus struct{}

func (noStatus) Assert()  {}
func (noStatus) Release() {}
