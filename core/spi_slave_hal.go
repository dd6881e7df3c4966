package core

// SPIInstanceID identifies one hardware SPI peripheral (SPI0, SPI1, ...)
type SPIInstanceID uint8

// MaxSPIInstances bounds the interrupt registry. No supported chip has more.
const MaxSPIInstances = 4

// SlaveIRQPriority is the single priority applied to both the select-edge and
// the byte-ready interrupt of a follower instance. Neither may preempt the other.
const SlaveIRQPriority uint8 = 0

// NoPin marks an unused optional pin (status LED)
const NoPin GPIOPin = 0xFFFFFFFF

// SlavePins names the four bus lines plus the diagnostic output of a follower
type SlavePins struct {
	MOSI      GPIOPin // Controller out, follower in
	MISO      GPIOPin // Controller in, follower out
	SCLK      GPIOPin // Clock driven by the controller
	SSEL      GPIOPin // Active-low select
	StatusLED GPIOPin // Diagnostic indicator, NoPin if absent
}

// PinFunction is the SPI signal a pin can carry
type PinFunction uint8

const (
	PinFuncMOSI PinFunction = iota
	PinFuncMISO
	PinFuncSCLK
	PinFuncSSEL
)

// PinMapEntry says that Pin can carry Function for peripheral Instance.
type PinMapEntry struct {
	Pin      GPIOPin
	Function PinFunction
	Instance SPIInstanceID
}

// RegisterBlock is 8-bit access to the registers of one peripheral instance.
// Offsets are relative to the instance base address.
type RegisterBlock interface {
	Load8(offset uintptr) uint8
	Store8(offset uintptr, value uint8)
}

// RegisterLayout locates the status and data registers and the two
// byte-ready bits inside the status register.
type RegisterLayout struct {
	Status  uintptr // Status register offset
	Data    uintptr // Data register offset (read pops RX, write pushes TX)
	RxReady uint8   // Status bit: a received byte is available
	TxFree  uint8   // Status bit: a transmit slot is free
}

var (
	// STM32Layout is the SPI block found on STM32 parts (SR/DR, RXNE/TXE).
	STM32Layout = RegisterLayout{Status: 0x08, Data: 0x0C, RxReady: 0x01, TxFree: 0x02}

	// PL022Layout is the ARM PrimeCell SSP used by the RP2040 and RP2350
	// (SSPSR/SSPDR, RNE/TNF).
	PL022Layout = RegisterLayout{Status: 0x0C, Data: 0x08, RxReady: 0x04, TxFree: 0x02}
)

// Peripheral is one SPI instance configured as a bus follower.
type Peripheral interface {
	RegisterBlock

	// Layout returns the register layout of this instance
	Layout() RegisterLayout

	// Reinit resets the block and configures it again: follower mode,
	// 8-bit frames, MSB first, receive interrupt enabled.
	// This is the only way to discard FIFO residue on some parts.
	Reinit()
}

// FIFOFlusher is implemented by peripherals that can discard their FIFO and
// shift register contents without a full Reinit.
type FIFOFlusher interface {
	FlushFIFOs()
}

// Platform is the chip-specific bring-up the follower engine depends on.
// Implementations live in targets/ (and sim/ for host tests).
type Platform interface {
	// PinMap returns every pin/function/instance combination the chip supports
	PinMap() []PinMapEntry

	// Peripheral enables the clock of an instance and returns its registers
	Peripheral(id SPIInstanceID) Peripheral

	// ConfigurePins routes the bus pins to the instance. SCLK gets a
	// pull-down, SSEL a pull-up.
	ConfigurePins(id SPIInstanceID, pins SlavePins)

	// EnableInterrupts installs the byte-ready interrupt of the instance and
	// a both-edge interrupt on ssel, both at the given priority. The handlers
	// must call DispatchSPIInterrupt and DispatchSelectEdge.
	EnableInterrupts(id SPIInstanceID, ssel GPIOPin, priority uint8)
}

// ResolveSPIInstance finds the single instance all four bus pins belong to.
// It returns false if any pin is missing from the table or the pins belong
// to different instances.
func ResolveSPIInstance(pins SlavePins, table []PinMapEntry) (SPIInstanceID, bool) {
	mosi, ok := lookupPin(table, pins.MOSI, PinFuncMOSI)
	if !ok {
		return 0, false
	}
	miso, ok := lookupPin(table, pins.MISO, PinFuncMISO)
	if !ok || miso != mosi {
		return 0, false
	}
	sclk, ok := lookupPin(table, pins.SCLK, PinFuncSCLK)
	if !ok || sclk != mosi {
		return 0, false
	}
	ssel, ok := lookupPin(table, pins.SSEL, PinFuncSSEL)
	if !ok || ssel != mosi {
		return 0, false
	}
	if int(mosi) >= MaxSPIInstances {
		return 0, false
	}
	return mosi, true
}

func lookupPin(table []PinMapEntry, pin GPIOPin, fn PinFunction) (SPIInstanceID, bool) {
	for i := range table {
		if table[i].Pin == pin && table[i].Function == fn {
			return table[i].Instance, true
		}
	}
	return 0, false
}
