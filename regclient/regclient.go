// Package regclient is the controller side of the register SPI protocol.
// Every access is one select-bounded transaction: an address byte followed
// by a full-duplex data phase. Bit 7 of the address byte marks a write.
package regclient

import (
	"errors"

	"tinygo.org/x/drivers"
)

// WriteFlag is set in the address byte of transactions that carry data.
// The follower only commits data sent under a flagged address.
const WriteFlag = 0x80

var (
	ErrAddressRange   = errors.New("regclient: address out of range")
	ErrLengthMismatch = errors.New("regclient: tx and rx lengths differ")
)

// SelectFunc drives the follower's active-low select line
type SelectFunc func(level bool)

// Client talks to one follower on a shared bus
type Client struct {
	bus      drivers.SPI
	selectFn SelectFunc
}

// New returns a client using bus for clocking and sel for the select line.
// A nil sel is allowed when the bus hardware handles select.
func New(bus drivers.SPI, sel SelectFunc) *Client {
	if sel == nil {
		sel = func(bool) {}
	}
	return &Client{bus: bus, selectFn: sel}
}

// Exchange runs one transaction on address. tx is sent and rx filled at the
// same time. Either may be nil: a nil tx reads, sending zeros the follower
// discards, and a nil rx discards. Otherwise both must have the same length.
// A non-nil tx is sent as a write and rx receives the previous value.
func (c *Client) Exchange(address uint8, tx, rx []byte) error {
	if address&WriteFlag != 0 {
		return ErrAddressRange
	}
	if tx != nil && rx != nil && len(tx) != len(rx) {
		return ErrLengthMismatch
	}
	if tx != nil {
		address |= WriteFlag
	}

	c.selectFn(false)
	defer c.selectFn(true)

	if _, err := c.bus.Transfer(address); err != nil {
		return err
	}
	if len(tx) == 0 && len(rx) == 0 {
		return nil
	}
	return c.bus.Tx(tx, rx)
}

// Read returns n bytes from the region at address
func (c *Client) Read(address uint8, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := c.Exchange(address, nil, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write sends data to the region at address
func (c *Client) Write(address uint8, data []byte) error {
	return c.Exchange(address, data, nil)
}
