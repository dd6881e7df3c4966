//go:build !wasm

package serial

import (
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// RaspberryPiVID is the USB vendor id of RP2040/RP2350 boards running TinyGo
const RaspberryPiVID = "2E8A"

// PortInfo describes a serial port found on the host
type PortInfo struct {
	Name    string
	USB     bool
	VID     string
	PID     string
	Serial  string
	Product string
}

// IsRaspberryPi reports whether the port belongs to an RP2040/RP2350 board
func (p PortInfo) IsRaspberryPi() bool {
	return p.USB && strings.EqualFold(p.VID, RaspberryPiVID)
}

func (p PortInfo) String() string {
	if !p.USB {
		return p.Name
	}
	s := fmt.Sprintf("%s [%s:%s]", p.Name, p.VID, p.PID)
	if p.Product != "" {
		s += " " + p.Product
	}
	if p.Serial != "" {
		s += " serial=" + p.Serial
	}
	return s
}

// ListPorts returns every serial port with USB details where the OS has them
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return convertPorts(details), nil
}

func convertPorts(details []*enumerator.PortDetails) []PortInfo {
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:    d.Name,
			USB:     d.IsUSB,
			VID:     d.VID,
			PID:     d.PID,
			Serial:  d.SerialNumber,
			Product: d.Product,
		})
	}
	return ports
}

// FindFollower returns the first Raspberry Pi USB port, for use when no
// device was given.
func FindFollower() (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if p.IsRaspberryPi() {
			return p.Name, nil
		}
	}
	return "", fmt.Errorf("no RP2040/RP2350 USB serial port found")
}
