//go:build rp2040

package main

import (
	"errors"
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"regspi/core"
)

const (
	statusPIOOrigin = 0

	// At clkdiv 1000 the state machine runs at 125kHz, 8us per loop
	statusPulseCycles = 125
)

// statusPIOProgram drives the LED low for x+1 loops per pulled word.
// Addresses are absolute, so the program must load at statusPIOOrigin.
func statusPIOProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Pull(false, true).Encode(),           // 0: pull block
		asm.Out(rp2pio.OutDestX, 32).Encode(),    // 1: out x, 32
		asm.Set(rp2pio.SetDestPins, 0).Encode(),  // 2: set pins, 0 (LED on)
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(), // 3: jmp x--, 3
		asm.Set(rp2pio.SetDestPins, 1).Encode(),  // 4: set pins, 1 (LED off)
	}
}

var errStatusSMClaimed = errors.New("PIO0 state machine 0 already claimed")

// pioStatus pulses the status LED from a PIO state machine, so the pulse
// width does not depend on the foreground loop.
type pioStatus struct {
	sm rp2pio.StateMachine
}

// newPIOStatus claims PIO0 SM0 for the LED on pin
func newPIOStatus(pin core.GPIOPin) (*pioStatus, error) {
	pio := rp2pio.PIO0
	sm := pio.StateMachine(0)
	if !sm.TryClaim() {
		return nil, errStatusSMClaimed
	}

	program := statusPIOProgram()
	offset, err := pio.AddProgram(program, statusPIOOrigin)
	if err != nil {
		return nil, err
	}

	p := machine.Pin(pin)
	p.Configure(machine.PinConfig{Mode: pio.PinMode()})

	cfg := rp2pio.DefaultStateMachineConfig()
	cfg.SetSetPins(p, 1)
	cfg.SetOutShift(true, false, 32)
	cfg.SetWrap(offset+uint8(len(program))-1, offset)
	cfg.SetClkDivIntFrac(1000, 0)

	sm.Init(offset, cfg)
	sm.SetPindirsConsecutive(p, 1, true)
	sm.SetPinsConsecutive(p, 1, true)
	sm.SetEnabled(true)

	return &pioStatus{sm: sm}, nil
}

// Assert queues one pulse. A full FIFO means pulses are already pending.
func (s *pioStatus) Assert() {
	if !s.sm.IsTxFIFOFull() {
		s.sm.TxPut(statusPulseCycles - 1)
	}
}

// Release is a no-op: the program ends each pulse itself
func (s *pioStatus) Release() {}
