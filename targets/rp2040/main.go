//go:build rp2040

package main

import (
	_ "embed"
	"encoding/binary"
	"machine"
	"time"

	"regspi/config"
	"regspi/core"
	"regspi/protocol"
	"regspi/regmap"
)

//go:embed board.json
var boardJSON []byte

const (
	statsIntervalUS = 1000000
	statusRegion    = 0x01
)

var (
	outputBuffer *protocol.ScratchOutput
	encoder      *protocol.FrameEncoder

	registers *regmap.Map
	notices   core.NoticeRing
	slave     *core.RegisterSlave
	monitor   bool

	// USB connection state tracking
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32
	lastStats                uint64
	lastAnomalies            uint32
)

func main() {
	// Disable watchdog on boot to clear any previous state
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitDebugUART()
	core.SetDebugWriter(DebugPrintln)
	core.SetDebugEnabled(debugEnabled)
	core.InitAsyncDebug()

	board, err := config.LoadBoard(boardJSON)
	if err != nil {
		core.DebugPrintln("board.json: " + err.Error() + ", using defaults")
		board = config.DefaultBoard()
	}

	registers, err = board.BuildMap()
	if err != nil {
		panic("register map: " + err.Error())
	}
	pins, err := board.SlavePins()
	if err != nil {
		panic("pins: " + err.Error())
	}

	core.SetGPIODriver(newRPGPIODriver())

	opts := []core.SlaveOption{
		core.WithFlushPolicy(board.FlushPolicy()),
		core.WithStatusPeriod(board.StatusPeriodUS()),
	}
	if board.StatusPIO && pins.StatusLED != core.NoPin {
		status, err := newPIOStatus(pins.StatusLED)
		if err != nil {
			core.DebugPrintln("status pio: " + err.Error())
		} else {
			opts = append(opts, core.WithStatusIndicator(status))
		}
	}

	platform.SetMode(uint8(board.SPIMode))
	UpdateSystemTime()
	slave = core.NewRegisterSlave(platform, pins, registers, opts...)
	registers.SetNoticeRing(&notices, slave.Instance())
	slave.StartStatusTask()

	monitor = board.Monitor
	outputBuffer = protocol.NewScratchOutput()
	encoder = protocol.NewFrameEncoder(outputBuffer)
	announce()

	core.DebugPrintln("regspi ready on SPI" + itoa(int(slave.Instance())))

	for {
		// Keep the follower alive if the foreground trips over something
		func() {
			defer func() {
				if r := recover(); r != nil {
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()
			core.ProcessTimers()

			drainNotices()

			now := GetHardwareUptime()
			if now-lastStats >= statsIntervalUS {
				lastStats = now
				publishStats()
			}

			USBDiscardInput()
			if len(outputBuffer.Result()) > 0 {
				writeUSB()
			}
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// announce sends the identify and region messages a monitor needs to
// label transfers
func announce() {
	if !monitor {
		return
	}
	emit(func(out protocol.OutputBuffer) {
		protocol.EncodeIdentify(out, 1)
	})
	for _, r := range registers.Regions() {
		info := protocol.RegionInfo{Address: r.Address, Size: uint16(r.Size()), Name: r.Name}
		if r.Writable {
			info.Flags |= protocol.FlagWritable
		}
		emit(func(out protocol.OutputBuffer) {
			protocol.EncodeRegion(out, info)
		})
	}
}

// drainNotices forwards completed transactions to the monitor stream
func drainNotices() {
	for {
		n, ok := notices.Pop()
		if !ok {
			return
		}
		if !monitor {
			continue
		}
		tr := protocol.Transfer{
			Instance: uint8(n.Instance),
			Address:  n.Address,
			RXCount:  n.RXCount,
			Capacity: n.Capacity,
		}
		if n.Overflowed() {
			tr.Flags |= protocol.FlagOverflow
		}
		emit(func(out protocol.OutputBuffer) {
			protocol.EncodeTransfer(out, tr)
		})
	}
}

// publishStats mirrors the counters into the status region and the stream.
// The status region holds transactions then overflows, little endian.
func publishStats() {
	st := slave.Stats()

	var status [8]byte
	binary.LittleEndian.PutUint32(status[0:], st.Transactions)
	binary.LittleEndian.PutUint32(status[4:], st.Overflows)
	registers.Store(statusRegion, status[:])

	// New anomalies since the last report go to the debug UART
	if anomalies := st.Overflows + st.Reselects; anomalies != lastAnomalies {
		lastAnomalies = anomalies
		if core.IsDebugEnabled() {
			core.DumpEventRing()
		}
	}

	if !monitor {
		return
	}
	emit(func(out protocol.OutputBuffer) {
		protocol.EncodeStats(out, protocol.Stats{
			Instance:     uint8(slave.Instance()),
			Transactions: st.Transactions,
			Overflows:    st.Overflows,
			Spurious:     st.Spurious,
			Reselects:    st.Reselects,
			Dropped:      notices.Dropped(),
		})
	})
}

// emit encodes one frame into the output buffer. Frames are dropped while
// the buffer cannot take a maximum size frame, which happens when the host
// stops reading.
func emit(frameData func(out protocol.OutputBuffer)) {
	if outputBuffer.Free() < protocol.MessageLengthMax {
		return
	}
	if err := encoder.EncodeFrame(frameData); err != nil {
		core.DebugAsync("monitor frame: " + err.Error())
	}
}

// writeUSB writes available data from output buffer to USB
func writeUSB() {
	result := outputBuffer.Result()
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			// Likely disconnect
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				// Don't keep trying to send stale data
				outputBuffer.Reset()
			}
			return
		}
		written += n
	}

	consecutiveWriteFailures = 0
	outputBuffer.Reset()
	if usbWasDisconnected {
		// Host is back, tell it what we serve
		usbWasDisconnected = false
		announce()
	}
}

// itoa converts int to string without importing strconv
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}
