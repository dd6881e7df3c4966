// Package monitor reads the follower's monitor stream from a serial port
// and keeps the firmware identity, region table and latest counters.
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"

	"regspi/host/serial"
	"regspi/protocol"
	"regspi/regmap"
)

// Monitor is a connection to a follower's monitor output
type Monitor struct {
	port serial.Port

	mu        sync.Mutex
	decoder   *protocol.FrameDecoder
	version   string
	instances uint8
	regions   map[uint8]protocol.RegionInfo
	stats     map[uint8]protocol.Stats
	badFrames uint32
}

// New creates a monitor (not yet connected)
func New() *Monitor {
	return &Monitor{
		regions: make(map[uint8]protocol.RegionInfo),
		stats:   make(map[uint8]protocol.Stats),
	}
}

// Connect opens the serial port described by cfg
func (m *Monitor) Connect(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}
	m.Attach(port)
	return nil
}

// Attach uses an already open port
func (m *Monitor) Attach(port serial.Port) {
	m.port = port
}

// Close closes the port. A blocked Run returns with the read error.
func (m *Monitor) Close() error {
	if m.port == nil {
		return nil
	}
	return m.port.Close()
}

// Run decodes the stream until ctx is cancelled, the port reports EOF or a
// read fails. Every decoded message is sent to out.
func (m *Monitor) Run(ctx context.Context, out chan<- protocol.Message) error {
	if m.port == nil {
		return fmt.Errorf("monitor not connected")
	}

	var pending []protocol.Message
	decoder := protocol.NewFrameDecoder(func(seq uint8, payload []byte) {
		err := protocol.DecodeMessages(payload, func(msg protocol.Message) {
			m.track(msg)
			pending = append(pending, msg)
		})
		if err != nil {
			m.badFrames++
		}
	})

	m.mu.Lock()
	m.decoder = decoder
	m.mu.Unlock()

	buf := make([]byte, 256)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := m.port.Read(buf)
		if n > 0 {
			m.mu.Lock()
			decoder.Write(buf[:n])
			m.mu.Unlock()

			for _, msg := range pending {
				select {
				case out <- msg:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			pending = pending[:0]
		}

		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}
	}
}

// track updates the tables; called with mu held
func (m *Monitor) track(msg protocol.Message) {
	switch msg.ID {
	case protocol.MsgIdentify:
		m.version = msg.Version
		m.instances = msg.Instances
		m.regions = make(map[uint8]protocol.RegionInfo)
	case protocol.MsgRegion:
		m.regions[msg.Region.Address] = msg.Region
	case protocol.MsgStats:
		m.stats[msg.Stats.Instance] = msg.Stats
	}
}

// Version returns the firmware stream version, empty before MsgIdentify
func (m *Monitor) Version() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}

// RegionName returns the announced name of the region a transfer address
// refers to. The write flag is ignored.
func (m *Monitor) RegionName(address uint16) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if address > 0xFF {
		return ""
	}
	return m.regions[uint8(address)&^regmap.WriteFlag].Name
}

// Stats returns the latest counters of an instance
func (m *Monitor) Stats(instance uint8) (protocol.Stats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[instance]
	return st, ok
}

// LinkStats reports frame level health of the stream
type LinkStats struct {
	Frames    uint32
	Errors    uint32
	Lost      uint32
	BadFrames uint32 // Valid CRC but undecodable payload
}

// Link returns the frame counters of the current Run
func (m *Monitor) Link() LinkStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decoder == nil {
		return LinkStats{}
	}
	return LinkStats{
		Frames:    m.decoder.Frames,
		Errors:    m.decoder.Errors,
		Lost:      m.decoder.Lost,
		BadFrames: m.badFrames,
	}
}

// Describe formats a message as one line of text
func (m *Monitor) Describe(msg protocol.Message) string {
	switch msg.ID {
	case protocol.MsgIdentify:
		return fmt.Sprintf("firmware %s, %d instance(s)", msg.Version, msg.Instances)

	case protocol.MsgRegion:
		mode := "ro"
		if msg.Region.Flags&protocol.FlagWritable != 0 {
			mode = "rw"
		}
		return fmt.Sprintf("region 0x%02x %-12s size=%d %s",
			msg.Region.Address, msg.Region.Name, msg.Region.Size, mode)

	case protocol.MsgTransfer:
		tr := msg.Transfer
		name := m.RegionName(tr.Address)
		if name == "" {
			name = "?"
		}
		dir := "read"
		if tr.Address&regmap.WriteFlag != 0 {
			dir = "write"
		}
		line := fmt.Sprintf("spi%d %s addr=0x%02x (%s) clocked=%d cap=%d",
			tr.Instance, dir, tr.Address, name, tr.RXCount, tr.Capacity)
		if tr.Flags&protocol.FlagOverflow != 0 {
			line += " OVERFLOW"
		}
		return line

	case protocol.MsgStats:
		st := msg.Stats
		return fmt.Sprintf("spi%d stats: transactions=%d overflows=%d spurious=%d reselects=%d dropped=%d",
			st.Instance, st.Transactions, st.Overflows, st.Spurious, st.Reselects, st.Dropped)
	}
	return fmt.Sprintf("unknown message %d", msg.ID)
}
