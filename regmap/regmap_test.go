package regmap

import (
	"bytes"
	"testing"

	"regspi/core"
	"regspi/sim"
)

func newTestMap(t *testing.T) *Map {
	t.Helper()
	m := New()
	id, err := m.AddRegion("id", 0x00, 4, false)
	if err != nil {
		t.Fatalf("AddRegion failed: %v", err)
	}
	copy(id, []byte{'R', 'S', 'P', 'I'})
	if _, err := m.AddRegion("setpoint", 0x10, 4, true); err != nil {
		t.Fatalf("AddRegion failed: %v", err)
	}
	return m
}

func TestAddRegionErrors(t *testing.T) {
	m := newTestMap(t)

	if _, err := m.AddRegion("dup", 0x10, 2, false); err != ErrDuplicateAddress {
		t.Errorf("Expected ErrDuplicateAddress, got %v", err)
	}
	if _, err := m.AddRegion("empty", 0x20, 0, false); err != ErrRegionSize {
		t.Errorf("Expected ErrRegionSize, got %v", err)
	}
	if _, err := m.AddRegion("huge", 0x21, MaxRegionSize+1, false); err != ErrRegionSize {
		t.Errorf("Expected ErrRegionSize, got %v", err)
	}
	if _, err := m.AddRegion("high", 0x80, 2, false); err != ErrAddressRange {
		t.Errorf("Expected ErrAddressRange, got %v", err)
	}
	if len(m.Regions()) != 2 {
		t.Errorf("Expected 2 regions, got %d", len(m.Regions()))
	}
}

func TestStartTransferBuffers(t *testing.T) {
	m := newTestMap(t)

	buf := m.StartTransfer(0x00)
	if !bytes.Equal(buf.TX, []byte("RSPI")) || buf.RX != nil {
		t.Errorf("Read-only region: expected TX RSPI and no RX, got %q / %v", buf.TX, buf.RX)
	}

	buf = m.StartTransfer(0x10)
	if len(buf.TX) != 4 || len(buf.RX) != 4 {
		t.Errorf("Writable region: expected 4/4 buffers, got %d/%d", len(buf.TX), len(buf.RX))
	}

	buf = m.StartTransfer(0x10 | WriteFlag)
	if len(buf.TX) != 4 || len(buf.RX) != 4 {
		t.Errorf("Writable region, write address: expected 4/4 buffers, got %d/%d", len(buf.TX), len(buf.RX))
	}

	buf = m.StartTransfer(0x55)
	if buf.TX != nil || buf.RX != nil {
		t.Errorf("Unknown address: expected empty buffer, got %+v", buf)
	}

	buf = m.StartTransfer(0x55 | WriteFlag)
	if buf.TX != nil || buf.RX != nil {
		t.Errorf("Unknown write address: expected empty buffer, got %+v", buf)
	}

	buf = m.StartTransfer(0x110)
	if buf.TX != nil || buf.RX != nil {
		t.Errorf("Wide address: expected empty buffer, got %+v", buf)
	}
}

func TestEndTransferCommits(t *testing.T) {
	m := newTestMap(t)

	var hookAddr uint8
	var hookData []byte
	m.OnWrite(func(address uint8, data []byte) {
		hookAddr = address
		hookData = append([]byte(nil), data...)
	})

	buf := m.StartTransfer(0x10 | WriteFlag)
	copy(buf.RX, []byte{1, 2})
	m.EndTransfer(0x10|WriteFlag, 2)

	got := make([]byte, 4)
	m.Load(0x10, got)
	if !bytes.Equal(got, []byte{1, 2, 0, 0}) {
		t.Errorf("Expected partial commit 01020000, got %x", got)
	}
	if hookAddr != 0x10 || !bytes.Equal(hookData, []byte{1, 2}) {
		t.Errorf("Expected hook (0x10, 0102), got (0x%02x, %x)", hookAddr, hookData)
	}
}

func TestEndTransferWithoutData(t *testing.T) {
	m := newTestMap(t)
	called := false
	m.OnWrite(func(uint8, []byte) { called = true })

	m.StartTransfer(0x10 | WriteFlag)
	m.EndTransfer(0x10|WriteFlag, 0)
	if called {
		t.Error("Write hook called for an empty write")
	}
}

func TestReadDoesNotCommit(t *testing.T) {
	m := newTestMap(t)
	m.Store(0x10, []byte{5, 6, 7, 8})
	called := false
	m.OnWrite(func(uint8, []byte) { called = true })

	buf := m.StartTransfer(0x10)
	copy(buf.RX, []byte{0, 0, 0, 0})
	m.EndTransfer(0x10, 4)

	got := make([]byte, 4)
	m.Load(0x10, got)
	if !bytes.Equal(got, []byte{5, 6, 7, 8}) {
		t.Errorf("Expected read to leave 05060708, got %x", got)
	}
	if called {
		t.Error("Write hook called for a read")
	}
}

func TestNotices(t *testing.T) {
	m := newTestMap(t)
	var ring core.NoticeRing
	m.SetNoticeRing(&ring, 1)

	m.StartTransfer(0x10 | WriteFlag)
	m.EndTransfer(0x10|WriteFlag, 6)
	m.EndTransfer(0x00, 3)
	m.EndTransfer(0x77, 1)

	want := []core.TransferNotice{
		{Instance: 1, Address: 0x90, RXCount: 6, Capacity: 4},
		{Instance: 1, Address: 0x00, RXCount: 3, Capacity: 0},
		{Instance: 1, Address: 0x77, RXCount: 1, Capacity: 0},
	}
	for i, w := range want {
		n, ok := ring.Pop()
		if !ok || n != w {
			t.Errorf("Notice %d: expected %+v, got %+v (ok=%v)", i, w, n, ok)
		}
	}
	if !want[0].Overflowed() {
		t.Error("Expected first notice to be an overflow")
	}
}

func TestNoticeDropRecorded(t *testing.T) {
	m := newTestMap(t)
	var ring core.NoticeRing
	m.SetNoticeRing(&ring, 0)
	core.ClearEventRing()

	for i := 0; i < core.NoticeRingSize+1; i++ {
		m.EndTransfer(0x00, 0)
	}
	if ring.Dropped() != 1 {
		t.Errorf("Expected 1 dropped notice, got %d", ring.Dropped())
	}
	events := core.Events()
	if len(events) != 1 || events[0].EventType != core.EvtNoticeDrop {
		t.Errorf("Expected a notice drop event, got %+v", events)
	}
}

func TestStoreAndLoad(t *testing.T) {
	m := newTestMap(t)

	if _, err := m.Store(0x00, []byte("ABCDEFG")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	got := make([]byte, 8)
	n, err := m.Load(0x00, got)
	if err != nil || n != 4 || string(got[:n]) != "ABCD" {
		t.Errorf("Expected ABCD, got %q (n=%d err=%v)", got[:n], n, err)
	}
	if _, err := m.Load(0x42, got); err != ErrUnknownAddress {
		t.Errorf("Expected ErrUnknownAddress, got %v", err)
	}
	if _, err := m.Load(0x80, got); err != ErrUnknownAddress {
		t.Errorf("Expected ErrUnknownAddress for a write address, got %v", err)
	}
}

// End to end through the engine and the simulated bus
func TestMapOverBus(t *testing.T) {
	core.SetGPIODriver(sim.NewGPIO())
	platform := sim.NewPlatform()
	m := newTestMap(t)
	s := core.NewRegisterSlave(platform, sim.Pins0, m)
	defer platform.Release(s.Instance())
	ctrl := platform.Controller(0)

	if got := ctrl.Run(0x00, make([]byte, 6)); !bytes.Equal(got, []byte("RSPI\x00\x00")) {
		t.Errorf("Expected RSPI plus padding, got %q", got)
	}

	// Write must not disturb what the controller reads in the same transaction
	m.Store(0x10, []byte{9, 9, 9, 9})
	if got := ctrl.Run(0x10|WriteFlag, []byte{1, 2, 3, 4, 5}); !bytes.Equal(got, []byte{9, 9, 9, 9, 0}) {
		t.Errorf("Expected old value during write, got %x", got)
	}
	if got := ctrl.Run(0x10, make([]byte, 4)); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("Expected committed value, got %x", got)
	}

	// Writes to read-only regions are ignored
	ctrl.Run(0x00|WriteFlag, []byte("XXXX"))
	if got := ctrl.Run(0x00, make([]byte, 4)); string(got) != "RSPI" {
		t.Errorf("Expected read-only region unchanged, got %q", got)
	}
}

func TestRepeatedReadsOverBus(t *testing.T) {
	core.SetGPIODriver(sim.NewGPIO())
	platform := sim.NewPlatform()
	m := newTestMap(t)
	s := core.NewRegisterSlave(platform, sim.Pins0, m)
	defer platform.Release(s.Instance())
	ctrl := platform.Controller(0)

	ctrl.Run(0x10|WriteFlag, []byte{0xA, 0xB, 0xC, 0xD})
	for i := 0; i < 2; i++ {
		// Filler clocked in by a read must not reach the region
		if got := ctrl.Run(0x10, make([]byte, 4)); !bytes.Equal(got, []byte{0xA, 0xB, 0xC, 0xD}) {
			t.Errorf("Read %d: expected 0a0b0c0d, got %x", i, got)
		}
	}
	stored := make([]byte, 4)
	m.Load(0x10, stored)
	if !bytes.Equal(stored, []byte{0xA, 0xB, 0xC, 0xD}) {
		t.Errorf("Expected map to keep 0a0b0c0d, got %x", stored)
	}
}
