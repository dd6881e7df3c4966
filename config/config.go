// Package config describes a follower board in JSON: which pins carry the
// bus, how the engine behaves and which register regions it serves.
package config

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"regspi/core"
	"regspi/regmap"
)

// Flush policy names accepted in Board.Flush
const (
	FlushReinit    = "reinit"
	FlushSelective = "selective"
)

var (
	ErrPinName      = errors.New("config: pin must be named gpioN")
	ErrFlushPolicy  = errors.New("config: flush must be \"reinit\" or \"selective\"")
	ErrNoRegions    = errors.New("config: no regions")
	ErrStatusPeriod = errors.New("config: status_period_ms out of range")
	ErrSPIMode      = errors.New("config: spi_mode must be 0-3")
)

// PinsConfig names the bus pins, e.g. "gpio16"
type PinsConfig struct {
	MOSI      string `json:"mosi"`
	MISO      string `json:"miso"`
	SCLK      string `json:"sclk"`
	SSEL      string `json:"ssel"`
	StatusLED string `json:"status_led,omitempty"` // Empty or "none" disables the LED
}

// RegionConfig is one register region
type RegionConfig struct {
	Name     string `json:"name"`
	Address  int    `json:"address"`
	Size     int    `json:"size"`
	Writable bool   `json:"writable"`
	Init     []int  `json:"init,omitempty"` // Initial bytes, zero padded
}

// Board is the complete follower configuration
type Board struct {
	SPI            PinsConfig     `json:"spi"`
	SPIMode        int            `json:"spi_mode"` // CPOL<<1 | CPHA
	Flush          string         `json:"flush"`
	StatusPIO      bool           `json:"status_pio"`
	StatusPeriodMS int            `json:"status_period_ms"`
	Monitor        bool           `json:"monitor"`
	Regions        []RegionConfig `json:"regions"`
}

// LoadBoard parses a JSON board description, fills in defaults and validates it
func LoadBoard(jsonData []byte) (*Board, error) {
	var board Board

	err := json.Unmarshal(jsonData, &board)
	if err != nil {
		return nil, err
	}

	applyDefaults(&board)

	if err := board.Validate(); err != nil {
		return nil, err
	}
	return &board, nil
}

// applyDefaults fills in missing configuration values
func applyDefaults(board *Board) {
	if board.Flush == "" {
		board.Flush = FlushReinit
	}
	if board.StatusPeriodMS == 0 {
		board.StatusPeriodMS = core.StatusPeriodUS / 1000
	}
	for i := range board.Regions {
		if board.Regions[i].Name == "" {
			board.Regions[i].Name = "reg" + strconv.Itoa(board.Regions[i].Address)
		}
	}
}

// Validate checks pins, policy and regions
func (b *Board) Validate() error {
	if _, err := b.SlavePins(); err != nil {
		return err
	}
	if b.SPIMode < 0 || b.SPIMode > 3 {
		return ErrSPIMode
	}
	if b.Flush != FlushReinit && b.Flush != FlushSelective {
		return ErrFlushPolicy
	}
	if b.StatusPeriodMS < 1 || b.StatusPeriodMS > 1000 {
		return ErrStatusPeriod
	}
	if len(b.Regions) == 0 {
		return ErrNoRegions
	}

	var used [regmap.MaxAddress + 1]bool
	for _, r := range b.Regions {
		if r.Address < 0 || r.Address > regmap.MaxAddress {
			return errors.New("config: region " + r.Name + ": address out of range")
		}
		if r.Size <= 0 || r.Size > regmap.MaxRegionSize {
			return errors.New("config: region " + r.Name + ": size out of range")
		}
		if len(r.Init) > r.Size {
			return errors.New("config: region " + r.Name + ": init longer than region")
		}
		for _, v := range r.Init {
			if v < 0 || v > 0xFF {
				return errors.New("config: region " + r.Name + ": init byte out of range")
			}
		}
		if used[r.Address] {
			return errors.New("config: region " + r.Name + ": address already in use")
		}
		used[r.Address] = true
	}
	return nil
}

// FlushPolicy maps the flush name to the engine policy
func (b *Board) FlushPolicy() core.FlushPolicy {
	if b.Flush == FlushSelective {
		return core.FlushSelective
	}
	return core.FlushReinit
}

// StatusPeriodUS returns the status task period in microseconds
func (b *Board) StatusPeriodUS() uint32 {
	return uint32(b.StatusPeriodMS) * 1000
}

// SlavePins resolves the pin names to GPIO numbers
func (b *Board) SlavePins() (core.SlavePins, error) {
	var pins core.SlavePins
	var err error

	if pins.MOSI, err = ParsePin(b.SPI.MOSI); err != nil {
		return pins, err
	}
	if pins.MISO, err = ParsePin(b.SPI.MISO); err != nil {
		return pins, err
	}
	if pins.SCLK, err = ParsePin(b.SPI.SCLK); err != nil {
		return pins, err
	}
	if pins.SSEL, err = ParsePin(b.SPI.SSEL); err != nil {
		return pins, err
	}

	pins.StatusLED = core.NoPin
	if b.SPI.StatusLED != "" && b.SPI.StatusLED != "none" {
		if pins.StatusLED, err = ParsePin(b.SPI.StatusLED); err != nil {
			return pins, err
		}
	}
	return pins, nil
}

// BuildMap creates the register map with every region initialized
func (b *Board) BuildMap() (*regmap.Map, error) {
	m := regmap.New()
	for _, r := range b.Regions {
		data, err := m.AddRegion(r.Name, uint8(r.Address), r.Size, r.Writable)
		if err != nil {
			return nil, err
		}
		for i, v := range r.Init {
			data[i] = byte(v)
		}
	}
	return m, nil
}

// ParsePin converts "gpioN" to a pin number
func ParsePin(name string) (core.GPIOPin, error) {
	if !strings.HasPrefix(name, "gpio") {
		return 0, ErrPinName
	}
	n, err := strconv.ParseUint(name[len("gpio"):], 10, 8)
	if err != nil {
		return 0, ErrPinName
	}
	return core.GPIOPin(n), nil
}

// DefaultBoard returns SPI0 on gpio16-19 with the on-board LED and a small
// register file. It runs in mode 1: the RP2040 follower cannot hold select
// low across bytes in mode 0.
func DefaultBoard() *Board {
	return &Board{
		SPI: PinsConfig{
			MOSI:      "gpio16",
			SSEL:      "gpio17",
			SCLK:      "gpio18",
			MISO:      "gpio19",
			StatusLED: "gpio25",
		},
		SPIMode:        1,
		Flush:          FlushReinit,
		StatusPeriodMS: 1,
		Monitor:        true,
		Regions: []RegionConfig{
			{Name: "id", Address: 0x00, Size: 4, Init: []int{'R', 'S', 'P', 'I'}},
			{Name: "status", Address: 0x01, Size: 8},
			{Name: "control", Address: 0x10, Size: 8, Writable: true},
			{Name: "scratch", Address: 0x20, Size: 32, Writable: true},
		},
	}
}
