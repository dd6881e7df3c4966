// Package regmap serves a set of byte regions over a register SPI follower.
//
// Each region lives at a 7-bit address. Bit 7 of the address byte gives the
// direction: a plain address reads the region, address|WriteFlag writes it.
// Both directions clock the region bytes out. Bytes received on a write to a
// writable region land in a shadow buffer first and are committed when select
// is released, so a truncated write never leaves half-updated data behind.
// Bytes received on a read are discarded.
package regmap

import (
	"errors"

	"regspi/core"
)

const (
	// MaxRegionSize bounds a single region. Notice capacities are 16 bit.
	MaxRegionSize = 4096

	// WriteFlag marks a write transaction in the address byte
	WriteFlag = 0x80

	// MaxAddress is the highest region address
	MaxAddress = WriteFlag - 1
)

var (
	ErrAddressRange     = errors.New("regmap: address out of range")
	ErrDuplicateAddress = errors.New("regmap: address already in use")
	ErrRegionSize       = errors.New("regmap: region size out of range")
	ErrUnknownAddress   = errors.New("regmap: no region at address")
)

// Region is one addressable block of bytes
type Region struct {
	Name     string
	Address  uint8
	Writable bool

	data   []byte
	shadow []byte
}

// Size returns the region length in bytes
func (r *Region) Size() int {
	return len(r.data)
}

// WriteHook is called from interrupt context after a write was committed.
// data aliases the region and must not be retained.
type WriteHook func(address uint8, data []byte)

// Map implements core.Handler over a fixed set of regions.
// Regions are added during setup, before the engine is started.
type Map struct {
	regions []Region
	index   [MaxAddress + 1]int16

	ring     *core.NoticeRing
	instance core.SPIInstanceID
	onWrite  WriteHook
}

var _ core.Handler = (*Map)(nil)

// New returns an empty map
func New() *Map {
	m := &Map{}
	for i := range m.index {
		m.index[i] = -1
	}
	return m
}

// AddRegion allocates a region and returns its backing bytes for
// initialization. The slice stays valid for the life of the map.
func (m *Map) AddRegion(name string, address uint8, size int, writable bool) ([]byte, error) {
	if address > MaxAddress {
		return nil, ErrAddressRange
	}
	if size <= 0 || size > MaxRegionSize {
		return nil, ErrRegionSize
	}
	if m.index[address] >= 0 {
		return nil, ErrDuplicateAddress
	}

	r := Region{
		Name:     name,
		Address:  address,
		Writable: writable,
		data:     make([]byte, size),
	}
	if writable {
		r.shadow = make([]byte, size)
	}
	m.index[address] = int16(len(m.regions))
	m.regions = append(m.regions, r)
	return r.data, nil
}

// SetNoticeRing makes EndTransfer report every transaction to ring,
// tagged with the engine instance.
func (m *Map) SetNoticeRing(ring *core.NoticeRing, instance core.SPIInstanceID) {
	m.ring = ring
	m.instance = instance
}

// OnWrite installs a hook called after each committed write
func (m *Map) OnWrite(hook WriteHook) {
	m.onWrite = hook
}

// Region returns the region at an address, or nil
func (m *Map) Region(address uint8) *Region {
	if address > MaxAddress {
		return nil
	}
	i := m.index[address]
	if i < 0 {
		return nil
	}
	return &m.regions[i]
}

// Regions returns every region in the order they were added
func (m *Map) Regions() []Region {
	return m.regions
}

// StartTransfer hands the live region bytes out as TX and the shadow as RX,
// whichever the direction. Unknown addresses get an empty buffer: the
// controller reads zeros and whatever it sends is discarded.
func (m *Map) StartTransfer(address uint16) core.Buffer {
	r, _ := m.lookup(address)
	if r == nil {
		return core.Buffer{}
	}
	return core.Buffer{TX: r.data, RX: r.shadow}
}

// EndTransfer commits received bytes of a write and queues a notice.
// The shadow of a read holds filler and is left for the next write to
// overwrite.
func (m *Map) EndTransfer(address uint16, rxCount int) {
	r, write := m.lookup(address)

	var capacity int
	if r != nil {
		capacity = len(r.shadow)
		n := rxCount
		if n > capacity {
			n = capacity
		}
		if write && n > 0 {
			copy(r.data, r.shadow[:n])
			if m.onWrite != nil {
				m.onWrite(r.Address, r.data[:n])
			}
		}
	}

	if m.ring != nil {
		ok := m.ring.Push(core.TransferNotice{
			Instance: m.instance,
			Address:  address,
			RXCount:  int32(rxCount),
			Capacity: uint16(capacity),
		})
		if !ok {
			core.RecordEvent(core.EvtNoticeDrop, uint8(m.instance), uint32(address), 0)
		}
	}
}

// lookup splits a wire address into its region and direction
func (m *Map) lookup(address uint16) (*Region, bool) {
	if address > 0xFF {
		return nil, false
	}
	return m.Region(uint8(address) &^ WriteFlag), address&WriteFlag != 0
}

// Load copies a region into dst with the engine masked out and returns the
// number of bytes copied.
func (m *Map) Load(address uint8, dst []byte) (int, error) {
	r := m.Region(address)
	if r == nil {
		return 0, ErrUnknownAddress
	}
	var n int
	core.Critical(func() { n = copy(dst, r.data) })
	return n, nil
}

// Store updates a region from the foreground. It is how firmware publishes
// fresh values for the controller to read. Read-only applies to the bus
// side only.
func (m *Map) Store(address uint8, src []byte) (int, error) {
	r := m.Region(address)
	if r == nil {
		return 0, ErrUnknownAddress
	}
	var n int
	core.Critical(func() { n = copy(r.data, src) })
	return n, nil
}
