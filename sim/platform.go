package sim

import (
	"errors"

	"regspi/core"

	"tinygo.org/x/drivers"
)

// DefaultPinMap mirrors the RP2040 assignment for SPI0 and SPI1 on the low
// GPIO bank: RX carries MOSI and TX carries MISO in follower mode.
var DefaultPinMap = []core.PinMapEntry{
	{Pin: 0, Function: core.PinFuncMOSI, Instance: 0},
	{Pin: 1, Function: core.PinFuncSSEL, Instance: 0},
	{Pin: 2, Function: core.PinFuncSCLK, Instance: 0},
	{Pin: 3, Function: core.PinFuncMISO, Instance: 0},
	{Pin: 4, Function: core.PinFuncMOSI, Instance: 0},
	{Pin: 5, Function: core.PinFuncSSEL, Instance: 0},
	{Pin: 6, Function: core.PinFuncSCLK, Instance: 0},
	{Pin: 7, Function: core.PinFuncMISO, Instance: 0},
	{Pin: 8, Function: core.PinFuncMOSI, Instance: 1},
	{Pin: 9, Function: core.PinFuncSSEL, Instance: 1},
	{Pin: 10, Function: core.PinFuncSCLK, Instance: 1},
	{Pin: 11, Function: core.PinFuncMISO, Instance: 1},
}

// Pins0 and Pins1 are valid bindings for the two default instances
var (
	Pins0 = core.SlavePins{MOSI: 0, MISO: 3, SCLK: 2, SSEL: 1, StatusLED: 25}
	Pins1 = core.SlavePins{MOSI: 8, MISO: 11, SCLK: 10, SSEL: 9, StatusLED: core.NoPin}
)

// Platform implements core.Platform on simulated peripherals
type Platform struct {
	Table []core.PinMapEntry

	devices   [core.MaxSPIInstances]*Peripheral
	flushable [core.MaxSPIInstances]bool

	// Recorded bring-up, for assertions
	ConfiguredPins [core.MaxSPIInstances]core.SlavePins
	SelectPin      [core.MaxSPIInstances]core.GPIOPin
	SPIPriority    [core.MaxSPIInstances]int
	SelectPriority [core.MaxSPIInstances]int
	Enabled        [core.MaxSPIInstances]bool
}

// NewPlatform returns a platform using DefaultPinMap with a depth-1
// STM32-layout peripheral on every instance.
func NewPlatform() *Platform {
	p := &Platform{Table: DefaultPinMap}
	for i := range p.devices {
		p.devices[i] = NewPeripheral(core.STM32Layout, 1)
		p.SPIPriority[i] = -1
		p.SelectPriority[i] = -1
	}
	return p
}

// SetPeripheral replaces the peripheral of an instance. flushable exposes
// FlushFIFOs to the engine.
func (p *Platform) SetPeripheral(id core.SPIInstanceID, dev *Peripheral, flushable bool) {
	p.devices[id] = dev
	p.flushable[id] = flushable
}

// Device returns the simulated peripheral of an instance
func (p *Platform) Device(id core.SPIInstanceID) *Peripheral {
	return p.devices[id]
}

func (p *Platform) PinMap() []core.PinMapEntry {
	return p.Table
}

func (p *Platform) Peripheral(id core.SPIInstanceID) core.Peripheral {
	if int(id) >= len(p.devices) || p.devices[id] == nil {
		return nil
	}
	if p.flushable[id] {
		return FlushablePeripheral{p.devices[id]}
	}
	return p.devices[id]
}

func (p *Platform) ConfigurePins(id core.SPIInstanceID, pins core.SlavePins) {
	p.ConfiguredPins[id] = pins
}

func (p *Platform) EnableInterrupts(id core.SPIInstanceID, ssel core.GPIOPin, priority uint8) {
	p.SelectPin[id] = ssel
	p.SPIPriority[id] = int(priority)
	p.SelectPriority[id] = int(priority)
	p.Enabled[id] = true
	p.devices[id].irq = func() { core.DispatchSPIInterrupt(id) }
}

// Release detaches the instance from the registry and its interrupts
func (p *Platform) Release(id core.SPIInstanceID) {
	if p.devices[id] != nil {
		p.devices[id].irq = nil
	}
	p.Enabled[id] = false
	core.UnregisterSlave(id)
}

// ErrLengthMismatch is returned by Controller.Tx for unequal buffers
var ErrLengthMismatch = errors.New("sim: tx and rx lengths differ")

// Controller drives the select line and clock of one instance.
// It implements tinygo.org/x/drivers.SPI.
type Controller struct {
	platform *Platform
	id       core.SPIInstanceID
	selected bool
}

var _ drivers.SPI = (*Controller)(nil)

// Controller returns a bus controller wired to an instance
func (p *Platform) Controller(id core.SPIInstanceID) *Controller {
	return &Controller{platform: p, id: id}
}

// Select drives select low. Calling it twice models a lost rising edge.
func (c *Controller) Select() {
	c.selected = true
	if c.platform.Enabled[c.id] {
		core.DispatchSelectEdge(c.id, false)
	}
}

// Deselect drives select high
func (c *Controller) Deselect() {
	c.selected = false
	if c.platform.Enabled[c.id] {
		core.DispatchSelectEdge(c.id, true)
	}
}

// SetSelect sets the select line level; low selects
func (c *Controller) SetSelect(level bool) {
	if level {
		c.Deselect()
	} else {
		c.Select()
	}
}

// Selected reports whether select is asserted
func (c *Controller) Selected() bool {
	return c.selected
}

// Transfer clocks one byte and returns the byte the follower sent
func (c *Controller) Transfer(b byte) (byte, error) {
	return c.platform.devices[c.id].Clock(b), nil
}

// Tx clocks len(w) or len(r) bytes. A nil w sends zeros, a nil r
// discards what the follower sends.
func (c *Controller) Tx(w, r []byte) error {
	n := len(w)
	if w == nil {
		n = len(r)
	} else if r != nil && len(r) != len(w) {
		return ErrLengthMismatch
	}

	dev := c.platform.devices[c.id]
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in := dev.Clock(out)
		if r != nil {
			r[i] = in
		}
	}
	return nil
}

// Run performs one complete transaction: select, address, data, deselect.
// It returns what the follower sent during the data phase.
func (c *Controller) Run(address byte, data []byte) []byte {
	c.Select()
	c.Transfer(address)
	got := make([]byte, len(data))
	c.Tx(data, got)
	c.Deselect()
	return got
}
