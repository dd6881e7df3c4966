//go:build rp2040

package main

import (
	"device/arm"
	"device/rp"
	"errors"
	"machine"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"regspi/core"
)

var errInvalidPin = errors.New("invalid pin")

// PL022 (ARM PrimeCell SSP) register offsets
const (
	sspCR0   = 0x00
	sspCR1   = 0x04
	sspDR    = 0x08
	sspSR    = 0x0C
	sspCPSR  = 0x10
	sspIMSC  = 0x14
	sspICR   = 0x20
	sspDMACR = 0x24
)

// PL022 register bits
const (
	cr0DSS8 = 7 // 8-bit frames, Motorola format
	cr0SPO  = 1 << 6
	cr0SPH  = 1 << 7

	cr1SSE = 1 << 1 // Port enable
	cr1MS  = 1 << 2 // Follower mode

	imscRTIM = 1 << 1 // Receive timeout
	imscRXIM = 1 << 2 // RX FIFO half full

	icrRORIC = 1 << 0
	icrRTIC  = 1 << 1
)

const (
	spi0Base = 0x4003C000
	spi1Base = 0x40040000

	resetsBase     = 0x4000C000
	resetsResetSet = resetsBase + 0x2000 // Atomic set alias of RESET
	resetsResetClr = resetsBase + 0x3000 // Atomic clear alias of RESET
	resetsDone     = resetsBase + 0x08

	padsBank0Base = 0x4001C000
	padPDE        = 1 << 2
	padPUE        = 1 << 3
)

var (
	resetSet  = (*volatile.Register32)(unsafe.Pointer(uintptr(resetsResetSet)))
	resetClr  = (*volatile.Register32)(unsafe.Pointer(uintptr(resetsResetClr)))
	resetDone = (*volatile.Register32)(unsafe.Pointer(uintptr(resetsDone)))
)

// pl022 is one SSP block driven as a register SPI follower.
// It does not implement core.FIFOFlusher: the TX FIFO can only be emptied
// by a block reset, so every deselect goes through Reinit.
//
// With SPH=0 the PL022 follower only advances its TX FIFO when CSn pulses
// between bytes, so multi-byte transactions under one select need mode 1
// or 3 on this chip.
type pl022 struct {
	base     uintptr
	resetBit uint32
	cr0      uint32
}

var pl022s = [2]pl022{
	{base: spi0Base, resetBit: 1 << 16, cr0: cr0DSS8},
	{base: spi1Base, resetBit: 1 << 17, cr0: cr0DSS8},
}

// setMode selects the SPI mode (CPOL<<1 | CPHA) used by the next Reinit
func (p *pl022) setMode(mode uint8) {
	p.cr0 = cr0DSS8
	if mode&2 != 0 {
		p.cr0 |= cr0SPO
	}
	if mode&1 != 0 {
		p.cr0 |= cr0SPH
	}
}

func (p *pl022) reg(offset uintptr) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(p.base + offset))
}

func (p *pl022) Load8(offset uintptr) uint8 {
	return uint8(p.reg(offset).Get())
}

func (p *pl022) Store8(offset uintptr, value uint8) {
	p.reg(offset).Set(uint32(value))
}

func (p *pl022) Layout() core.RegisterLayout {
	return core.PL022Layout
}

// Reinit pulses the block reset and configures follower mode with the
// receive interrupts unmasked.
func (p *pl022) Reinit() {
	resetSet.Set(p.resetBit)
	resetClr.Set(p.resetBit)
	for resetDone.Get()&p.resetBit == 0 {
	}

	p.reg(sspCR0).Set(p.cr0)
	p.reg(sspCPSR).Set(2)
	p.reg(sspDMACR).Set(0)
	p.reg(sspICR).Set(icrRORIC | icrRTIC)
	p.reg(sspIMSC).Set(imscRXIM | imscRTIM)
	p.reg(sspCR1).Set(cr1MS)
	p.reg(sspCR1).Set(cr1MS | cr1SSE)
}

// clearTimeout acknowledges the receive timeout and overrun interrupts,
// which unlike RXIM are latched.
func (p *pl022) clearTimeout() {
	p.reg(sspICR).Set(icrRORIC | icrRTIC)
}

// rp2040PinMap lists the SPI function of every GPIO. In follower mode the
// PL022 RX pin carries MOSI and TX carries MISO.
var rp2040PinMap = buildPinMap()

func buildPinMap() []core.PinMapEntry {
	type group struct {
		instance core.SPIInstanceID
		base     []core.GPIOPin
	}
	// Each base pin starts a run of RX, CSn, SCK, TX
	groups := []group{
		{0, []core.GPIOPin{0, 4, 16, 20}},
		{1, []core.GPIOPin{8, 12, 24, 28}},
	}
	funcs := [4]core.PinFunction{core.PinFuncMOSI, core.PinFuncSSEL, core.PinFuncSCLK, core.PinFuncMISO}

	var table []core.PinMapEntry
	for _, g := range groups {
		for _, base := range g.base {
			for i, fn := range funcs {
				pin := base + core.GPIOPin(i)
				if pin > 29 {
					continue
				}
				table = append(table, core.PinMapEntry{Pin: pin, Function: fn, Instance: g.instance})
			}
		}
	}
	return table
}

// rp2040Platform implements core.Platform
type rp2040Platform struct{}

var platform = &rp2040Platform{}

func (r *rp2040Platform) PinMap() []core.PinMapEntry {
	return rp2040PinMap
}

// SetMode sets the SPI mode of every instance; call before NewRegisterSlave
func (r *rp2040Platform) SetMode(mode uint8) {
	for i := range pl022s {
		pl022s[i].setMode(mode)
	}
}

func (r *rp2040Platform) Peripheral(id core.SPIInstanceID) core.Peripheral {
	if int(id) >= len(pl022s) {
		return nil
	}
	return &pl022s[id]
}

func (r *rp2040Platform) ConfigurePins(id core.SPIInstanceID, pins core.SlavePins) {
	for _, pin := range []core.GPIOPin{pins.MOSI, pins.MISO, pins.SCLK, pins.SSEL} {
		machine.Pin(pin).Configure(machine.PinConfig{Mode: machine.PinSPI})
	}
	setPadPull(pins.SCLK, padPDE)
	setPadPull(pins.SSEL, padPUE)
}

func setPadPull(pin core.GPIOPin, pull uint32) {
	pad := (*volatile.Register32)(unsafe.Pointer(uintptr(padsBank0Base + 4 + 4*uintptr(pin))))
	pad.ClearBits(padPDE | padPUE)
	pad.SetBits(pull)
}

// EnableInterrupts installs the SSP interrupt and the select edge interrupt
// at the same priority. The select pin keeps its SPI function; the GPIO
// block samples it regardless, which is what the edge interrupt uses.
func (r *rp2040Platform) EnableInterrupts(id core.SPIInstanceID, ssel core.GPIOPin, priority uint8) {
	// Cortex-M0+ implements the top two priority bits
	prio := priority << 6

	switch id {
	case 0:
		intr := interrupt.New(rp.IRQ_SPI0_IRQ, spi0Handler)
		intr.SetPriority(prio)
		intr.Enable()
		machine.Pin(ssel).SetInterrupt(machine.PinToggle, select0Handler)
	case 1:
		intr := interrupt.New(rp.IRQ_SPI1_IRQ, spi1Handler)
		intr.SetPriority(prio)
		intr.Enable()
		machine.Pin(ssel).SetInterrupt(machine.PinToggle, select1Handler)
	}
	arm.SetPriority(rp.IRQ_IO_IRQ_BANK0, uint32(prio))
}

// Trampolines: one per instance with the id baked in

func spi0Handler(interrupt.Interrupt) {
	pl022s[0].clearTimeout()
	core.DispatchSPIInterrupt(0)
}

func spi1Handler(interrupt.Interrupt) {
	pl022s[1].clearTimeout()
	core.DispatchSPIInterrupt(1)
}

func select0Handler(p machine.Pin) {
	core.DispatchSelectEdge(0, p.Get())
}

func select1Handler(p machine.Pin) {
	core.DispatchSelectEdge(1, p.Get())
}
