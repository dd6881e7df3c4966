//go:build rp2040

package main

import (
	"machine"
)

// InitUSB configures the USB CDC port the monitor stream is written to.
// On RP2040 machine.Serial is USB CDC, not a UART.
func InitUSB() {
	err := machine.Serial.Configure(machine.UARTConfig{})
	if err != nil {
		return
	}
}

// USBAvailable returns the number of bytes waiting from the host
func USBAvailable() int {
	return machine.Serial.Buffered()
}

// USBDiscardInput drops anything the host sent; the monitor is output only
func USBDiscardInput() {
	for machine.Serial.Buffered() > 0 {
		if _, err := machine.Serial.ReadByte(); err != nil {
			return
		}
	}
}

// USBWriteBytes writes multiple bytes to USB
func USBWriteBytes(data []byte) (int, error) {
	return machine.Serial.Write(data)
}
