package sim

import (
	"errors"

	"regspi/core"
)

var errPinNotOutput = errors.New("sim: pin is not an output")

// GPIO is an in-memory core.GPIODriver
type GPIO struct {
	outputs map[core.GPIOPin]bool
	levels  map[core.GPIOPin]bool

	// Writes counts SetPin calls per pin
	Writes map[core.GPIOPin]int
}

// NewGPIO returns a driver with no configured pins
func NewGPIO() *GPIO {
	return &GPIO{
		outputs: make(map[core.GPIOPin]bool),
		levels:  make(map[core.GPIOPin]bool),
		Writes:  make(map[core.GPIOPin]int),
	}
}

func (g *GPIO) ConfigureOutput(pin core.GPIOPin) error {
	g.outputs[pin] = true
	return nil
}

func (g *GPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	g.outputs[pin] = false
	g.levels[pin] = true
	return nil
}

func (g *GPIO) ConfigureInputPullDown(pin core.GPIOPin) error {
	g.outputs[pin] = false
	g.levels[pin] = false
	return nil
}

func (g *GPIO) SetPin(pin core.GPIOPin, value bool) error {
	if !g.outputs[pin] {
		return errPinNotOutput
	}
	g.levels[pin] = value
	g.Writes[pin]++
	return nil
}

func (g *GPIO) GetPin(pin core.GPIOPin) (bool, error) {
	return g.levels[pin], nil
}

// Level returns the last level of a pin
func (g *GPIO) Level(pin core.GPIOPin) bool {
	return g.levels[pin]
}
