// Package sim provides host-side stand-ins for the hardware a follower
// engine talks to: an SPI peripheral with FIFOs, a platform with a pin map
// and interrupt wiring, a bus controller and a GPIO driver.
package sim

import "regspi/core"

// Peripheral models an SPI block in follower mode. Each controller clock
// frame pops one byte from the TX FIFO onto the wire (0 on underrun) and
// pushes the received byte into the RX FIFO (dropped on overrun).
type Peripheral struct {
	layout core.RegisterLayout
	depth  int

	rx []byte
	tx []byte

	irq func()

	Reinits   int // Calls to Reinit
	Flushes   int // Calls to FlushFIFOs
	Overruns  int // Received bytes dropped because RX was full
	Underruns int // Frames clocked with an empty TX FIFO
	TxDropped int // Data register writes while TX was full
}

// NewPeripheral returns a peripheral with FIFOs of the given depth
func NewPeripheral(layout core.RegisterLayout, depth int) *Peripheral {
	if depth < 1 {
		depth = 1
	}
	return &Peripheral{
		layout: layout,
		depth:  depth,
		rx:     make([]byte, 0, depth),
		tx:     make([]byte, 0, depth),
	}
}

func (p *Peripheral) Layout() core.RegisterLayout {
	return p.layout
}

func (p *Peripheral) Load8(offset uintptr) uint8 {
	switch offset {
	case p.layout.Status:
		var sr uint8
		if len(p.rx) > 0 {
			sr |= p.layout.RxReady
		}
		if len(p.tx) < p.depth {
			sr |= p.layout.TxFree
		}
		return sr
	case p.layout.Data:
		if len(p.rx) == 0 {
			return 0
		}
		b := p.rx[0]
		p.rx = p.rx[:copy(p.rx, p.rx[1:])]
		return b
	}
	return 0
}

func (p *Peripheral) Store8(offset uintptr, value uint8) {
	if offset != p.layout.Data {
		return
	}
	if len(p.tx) >= p.depth {
		p.TxDropped++
		return
	}
	p.tx = append(p.tx, value)
}

// Reinit empties both FIFOs, as a block reset does
func (p *Peripheral) Reinit() {
	p.Reinits++
	p.clear()
}

func (p *Peripheral) clear() {
	p.rx = p.rx[:0]
	p.tx = p.tx[:0]
}

// Clock runs one 8-bit frame: in is what the controller sends, the return
// value is what the follower put on the wire. The byte-ready interrupt is
// raised afterwards if one is attached.
func (p *Peripheral) Clock(in byte) byte {
	var out byte
	if len(p.tx) > 0 {
		out = p.tx[0]
		p.tx = p.tx[:copy(p.tx, p.tx[1:])]
	} else {
		p.Underruns++
	}

	if len(p.rx) < p.depth {
		p.rx = append(p.rx, in)
	} else {
		p.Overruns++
	}

	if p.irq != nil && len(p.rx) > 0 {
		p.irq()
	}
	return out
}

// Inject puts a byte into the RX FIFO without clocking, like residue left
// from an aborted frame, and raises the interrupt.
func (p *Peripheral) Inject(b byte) {
	if len(p.rx) < p.depth {
		p.rx = append(p.rx, b)
	}
	if p.irq != nil {
		p.irq()
	}
}

// Pending returns the number of queued TX and RX bytes
func (p *Peripheral) Pending() (tx, rx int) {
	return len(p.tx), len(p.rx)
}

// FlushablePeripheral adds the narrow FIFO flush some parts offer
type FlushablePeripheral struct {
	*Peripheral
}

// FlushFIFOs empties both FIFOs without a reset
func (f FlushablePeripheral) FlushFIFOs() {
	f.Flushes++
	f.clear()
}
