//go:build rp2040

package main

import (
	"machine"

	"regspi/core"
)

// rpGPIODriver implements core.GPIODriver on machine.Pin
type rpGPIODriver struct {
	configuredPins map[core.GPIOPin]machine.Pin
}

func newRPGPIODriver() *rpGPIODriver {
	return &rpGPIODriver{
		configuredPins: make(map[core.GPIOPin]machine.Pin),
	}
}

func (d *rpGPIODriver) configure(pin core.GPIOPin, mode machine.PinMode) error {
	if pin > 29 {
		return errInvalidPin
	}
	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: mode})
	d.configuredPins[pin] = p
	return nil
}

func (d *rpGPIODriver) ConfigureOutput(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinOutput)
}

func (d *rpGPIODriver) ConfigureInputPullUp(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPullup)
}

func (d *rpGPIODriver) ConfigureInputPullDown(pin core.GPIOPin) error {
	return d.configure(pin, machine.PinInputPulldown)
}

// SetPin drives a configured output. Called from interrupt context by the
// status indicator, so it must not allocate: unconfigured pins are an error.
func (d *rpGPIODriver) SetPin(pin core.GPIOPin, value bool) error {
	p, ok := d.configuredPins[pin]
	if !ok {
		return errInvalidPin
	}
	p.Set(value)
	return nil
}

func (d *rpGPIODriver) GetPin(pin core.GPIOPin) (bool, error) {
	p, ok := d.configuredPins[pin]
	if !ok {
		return false, errInvalidPin
	}
	return p.Get(), nil
}
