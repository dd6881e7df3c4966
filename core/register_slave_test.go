package core_test

import (
	"bytes"
	"testing"

	"regspi/core"
	"regspi/sim"
)

type endCall struct {
	address uint16
	rxCount int
}

// recorder hands out fixed buffers and logs callback order
type recorder struct {
	tx     []byte
	rx     []byte
	starts []uint16
	ends   []endCall
	log    []string
	dev    *sim.Peripheral
	rxSeen []int // RX FIFO depth seen by StartTransfer
}

func (r *recorder) StartTransfer(address uint16) core.Buffer {
	r.starts = append(r.starts, address)
	r.log = append(r.log, "start")
	if r.dev != nil {
		_, rx := r.dev.Pending()
		r.rxSeen = append(r.rxSeen, rx)
	}
	return core.Buffer{TX: r.tx, RX: r.rx}
}

func (r *recorder) EndTransfer(address uint16, rxCount int) {
	r.ends = append(r.ends, endCall{address, rxCount})
	r.log = append(r.log, "end")
}

// setup builds a follower on instance 0 of a fresh simulated platform
func setup(t *testing.T, h core.Handler, opts ...core.SlaveOption) (*sim.Platform, *sim.GPIO, *core.RegisterSlave) {
	t.Helper()
	gpio := sim.NewGPIO()
	core.SetGPIODriver(gpio)
	platform := sim.NewPlatform()
	s := core.NewRegisterSlave(platform, sim.Pins0, h, opts...)
	t.Cleanup(func() { platform.Release(s.Instance()) })
	return platform, gpio, s
}

func TestRegisterSlaveScenario(t *testing.T) {
	rx := []byte{0xE0, 0xE1, 0xE2, 0xE3, 0xE4}
	rec := &recorder{tx: []byte{0xAA, 0xBB, 0xCC}, rx: rx}
	platform, _, _ := setup(t, rec)

	got := platform.Controller(0).Run(0x10, []byte{0x01, 0x02, 0x03, 0x04})

	if want := []byte{0xAA, 0xBB, 0xCC, 0x00}; !bytes.Equal(got, want) {
		t.Errorf("Expected transmitted stream %x, got %x", want, got)
	}
	if want := []byte{0x01, 0x02, 0x03, 0x04, 0xE4}; !bytes.Equal(rx, want) {
		t.Errorf("Expected rx %x, got %x", want, rx)
	}
	if len(rec.starts) != 1 || rec.starts[0] != 0x10 {
		t.Errorf("Expected one start with 0x10, got %v", rec.starts)
	}
	if len(rec.ends) != 1 || rec.ends[0] != (endCall{0x10, 4}) {
		t.Errorf("Expected end (0x10, 4), got %v", rec.ends)
	}
}

func TestRegisterSlaveOverflow(t *testing.T) {
	rx := make([]byte, 5)
	rec := &recorder{tx: []byte{0xAA, 0xBB, 0xCC}, rx: rx}
	platform, _, s := setup(t, rec)

	platform.Controller(0).Run(0x10, []byte{1, 2, 3, 4, 5, 6})

	if want := []byte{1, 2, 3, 4, 5}; !bytes.Equal(rx, want) {
		t.Errorf("Expected rx %x, got %x", want, rx)
	}
	if len(rec.ends) != 1 || rec.ends[0].rxCount != 6 {
		t.Errorf("Expected end with rxCount 6, got %v", rec.ends)
	}
	if st := s.Stats(); st.Overflows != 1 || st.Transactions != 1 {
		t.Errorf("Expected 1 overflow and 1 transaction, got %+v", st)
	}
}

func TestRegisterSlaveSelectWithoutAddress(t *testing.T) {
	rec := &recorder{}
	platform, _, s := setup(t, rec)
	ctrl := platform.Controller(0)

	ctrl.Select()
	if s.Mode() != core.ModeWaitingAddress {
		t.Errorf("Expected WaitingAddress after select, got %d", s.Mode())
	}
	ctrl.Deselect()

	if len(rec.starts) != 0 || len(rec.ends) != 0 {
		t.Errorf("Expected no callbacks, got starts=%v ends=%v", rec.starts, rec.ends)
	}
	if s.Mode() != core.ModeInactive {
		t.Errorf("Expected Inactive after deselect, got %d", s.Mode())
	}
}

func TestRegisterSlaveRxCountIndependentOfBuffer(t *testing.T) {
	for _, rxLen := range []int{0, 1, 3, 8, 32} {
		for _, n := range []int{0, 1, 7, 16} {
			rec := &recorder{rx: make([]byte, rxLen)}
			platform, _, _ := setup(t, rec)
			platform.Controller(0).Run(0x42, make([]byte, n))
			platform.Release(0)

			if len(rec.ends) != 1 || rec.ends[0].rxCount != n {
				t.Errorf("rx cap %d, %d bytes: expected rxCount %d, got %v", rxLen, n, n, rec.ends)
			}
		}
	}
}

func TestRegisterSlaveZeroPadding(t *testing.T) {
	const n = 6
	for txLen := 0; txLen <= n; txLen++ {
		tx := make([]byte, txLen)
		for i := range tx {
			tx[i] = byte(0x80 + i)
		}
		rec := &recorder{tx: tx}
		platform, _, _ := setup(t, rec)
		got := platform.Controller(0).Run(0x01, make([]byte, n))
		platform.Release(0)

		want := make([]byte, n)
		copy(want, tx)
		if !bytes.Equal(got, want) {
			t.Errorf("tx len %d: expected %x, got %x", txLen, want, got)
		}
	}
}

func TestRegisterSlaveAddressPhaseSendsZero(t *testing.T) {
	rec := &recorder{tx: []byte{0x55}}
	platform, _, _ := setup(t, rec)
	ctrl := platform.Controller(0)

	ctrl.Select()
	first, _ := ctrl.Transfer(0x07)
	second, _ := ctrl.Transfer(0x00)
	ctrl.Deselect()

	if first != 0 {
		t.Errorf("Expected 0x00 during address byte, got 0x%02x", first)
	}
	if second != 0x55 {
		t.Errorf("Expected first data byte 0x55, got 0x%02x", second)
	}
}

func TestRegisterSlaveCallbackOrdering(t *testing.T) {
	rec := &recorder{rx: make([]byte, 4)}
	platform, _, _ := setup(t, rec)
	rec.dev = platform.Device(0)
	ctrl := platform.Controller(0)

	ctrl.Select()
	ctrl.Transfer(0x22)
	if len(rec.starts) != 1 {
		t.Fatalf("Expected start right after the address byte, got %d starts", len(rec.starts))
	}
	if rec.rxSeen[0] != 0 {
		t.Errorf("Expected no data byte pending at start, got %d", rec.rxSeen[0])
	}
	if len(rec.ends) != 0 {
		t.Errorf("End called before deselect")
	}
	ctrl.Transfer(0x01)
	ctrl.Deselect()

	want := []string{"start", "end"}
	if len(rec.log) != len(want) || rec.log[0] != want[0] || rec.log[1] != want[1] {
		t.Errorf("Expected callback order %v, got %v", want, rec.log)
	}
}

func TestRegisterSlaveConsecutiveTransactions(t *testing.T) {
	bufA := core.Buffer{TX: []byte{1, 2, 3, 4}, RX: make([]byte, 4)}
	bufB := core.Buffer{TX: []byte{9}, RX: make([]byte, 1)}
	var ends []endCall
	h := core.HandlerFuncs{
		Start: func(address uint16) core.Buffer {
			if address == 0xA {
				return bufA
			}
			return bufB
		},
		End: func(address uint16, rxCount int) {
			ends = append(ends, endCall{address, rxCount})
		},
	}
	platform, _, _ := setup(t, h)
	ctrl := platform.Controller(0)

	gotA := ctrl.Run(0xA, []byte{0x11, 0x12, 0x13, 0x14})
	gotB := ctrl.Run(0xB, []byte{0x21, 0x22})

	if !bytes.Equal(gotA, []byte{1, 2, 3, 4}) {
		t.Errorf("Transaction A: expected 01020304, got %x", gotA)
	}
	if !bytes.Equal(gotB, []byte{9, 0}) {
		t.Errorf("Transaction B: expected 0900, got %x", gotB)
	}
	if !bytes.Equal(bufB.RX, []byte{0x21}) {
		t.Errorf("Transaction B rx: expected 21, got %x", bufB.RX)
	}
	want := []endCall{{0xA, 4}, {0xB, 2}}
	if len(ends) != 2 || ends[0] != want[0] || ends[1] != want[1] {
		t.Errorf("Expected ends %v, got %v", want, ends)
	}
}

func TestRegisterSlaveSpuriousBytes(t *testing.T) {
	rec := &recorder{}
	platform, _, s := setup(t, rec)

	platform.Device(0).Inject(0x99)
	platform.Device(0).Inject(0x98)

	if len(rec.starts) != 0 {
		t.Errorf("Expected no start for spurious bytes")
	}
	if _, rx := platform.Device(0).Pending(); rx != 0 {
		t.Errorf("Expected spurious bytes drained, %d left", rx)
	}
	if st := s.Stats(); st.Spurious != 2 {
		t.Errorf("Expected 2 spurious bytes, got %d", st.Spurious)
	}

	// The next transaction is unaffected
	got := platform.Controller(0).Run(0x01, []byte{0})
	if len(rec.starts) != 1 || rec.starts[0] != 0x01 || got[0] != 0 {
		t.Errorf("Expected a clean transaction after spurious data, starts=%v", rec.starts)
	}
}

func TestRegisterSlaveReselectKeepsState(t *testing.T) {
	core.ClearEventRing()
	rec := &recorder{tx: []byte{1, 2, 3}, rx: make([]byte, 3)}
	platform, _, s := setup(t, rec)
	ctrl := platform.Controller(0)

	ctrl.Select()
	ctrl.Transfer(0x30)
	ctrl.Transfer(0xA1)
	ctrl.Select() // lost rising edge
	second, _ := ctrl.Transfer(0xA2)
	ctrl.Deselect()

	if second != 2 {
		t.Errorf("Expected transaction to continue with 0x02, got 0x%02x", second)
	}
	if len(rec.starts) != 1 || len(rec.ends) != 1 || rec.ends[0] != (endCall{0x30, 2}) {
		t.Errorf("Expected one transaction (0x30, 2), got starts=%v ends=%v", rec.starts, rec.ends)
	}
	if st := s.Stats(); st.Reselects != 1 {
		t.Errorf("Expected 1 reselect, got %d", st.Reselects)
	}
	events := core.Events()
	if len(events) == 0 || events[len(events)-1].EventType != core.EvtReselect {
		t.Errorf("Expected a reselect event, got %+v", events)
	}
}

func TestRegisterSlaveFlushPolicy(t *testing.T) {
	t.Run("reinit", func(t *testing.T) {
		platform, _, _ := setup(t, &recorder{})
		dev := platform.Device(0)
		before := dev.Reinits
		platform.Controller(0).Run(0x01, []byte{1})
		if dev.Reinits != before+1 {
			t.Errorf("Expected one reinit per transaction, got %d", dev.Reinits-before)
		}
	})

	t.Run("selective", func(t *testing.T) {
		gpio := sim.NewGPIO()
		core.SetGPIODriver(gpio)
		platform := sim.NewPlatform()
		dev := sim.NewPeripheral(core.PL022Layout, 8)
		platform.SetPeripheral(0, dev, true)
		s := core.NewRegisterSlave(platform, sim.Pins0, &recorder{tx: []byte{1, 2, 3}},
			core.WithFlushPolicy(core.FlushSelective))
		defer platform.Release(s.Instance())

		before := dev.Reinits
		platform.Controller(0).Run(0x01, []byte{1})
		if dev.Flushes != 1 || dev.Reinits != before {
			t.Errorf("Expected flush without reinit, got flushes=%d reinits=%d", dev.Flushes, dev.Reinits-before)
		}
		if tx, rx := dev.Pending(); tx != 0 || rx != 0 {
			t.Errorf("Expected empty FIFOs after flush, got tx=%d rx=%d", tx, rx)
		}
	})

	t.Run("selective fallback", func(t *testing.T) {
		core.ClearEventRing()
		platform, _, _ := setup(t, &recorder{}, core.WithFlushPolicy(core.FlushSelective))
		dev := platform.Device(0)
		before := dev.Reinits
		platform.Controller(0).Run(0x01, nil)
		if dev.Reinits != before+1 {
			t.Errorf("Expected reinit fallback, got %d reinits", dev.Reinits-before)
		}
		events := core.Events()
		if len(events) == 0 || events[0].EventType != core.EvtFlushFallback {
			t.Errorf("Expected flush fallback event, got %+v", events)
		}
	})
}

func TestRegisterSlaveDeepFIFO(t *testing.T) {
	platform := sim.NewPlatform()
	core.SetGPIODriver(sim.NewGPIO())
	dev := sim.NewPeripheral(core.PL022Layout, 8)
	platform.SetPeripheral(0, dev, false)

	rx := make([]byte, 4)
	rec := &recorder{tx: []byte{0xA0, 0xA1, 0xA2}, rx: rx}
	s := core.NewRegisterSlave(platform, sim.Pins0, rec)
	defer platform.Release(s.Instance())

	got := platform.Controller(0).Run(0x05, []byte{1, 2, 3, 4, 5})
	if want := []byte{0xA0, 0xA1, 0xA2, 0, 0}; !bytes.Equal(got, want) {
		t.Errorf("Expected %x, got %x", want, got)
	}
	if len(rec.ends) != 1 || rec.ends[0].rxCount != 5 {
		t.Errorf("Expected rxCount 5, got %v", rec.ends)
	}
}

func TestRegisterSlaveStatusIndicator(t *testing.T) {
	platform, gpio, s := setup(t, &recorder{})
	led := sim.Pins0.StatusLED

	if !gpio.Level(led) {
		t.Errorf("Expected status LED idle high after construction")
	}

	ctrl := platform.Controller(0)
	ctrl.Select()
	if gpio.Level(led) {
		t.Errorf("Expected status LED low while selected")
	}
	ctrl.Deselect()
	if gpio.Level(led) {
		t.Errorf("Expected status LED to stay low until the periodic task runs")
	}

	s.PollMillisecond()
	if !gpio.Level(led) {
		t.Errorf("Expected status LED restored by PollMillisecond")
	}
}

func TestRegisterSlaveStatusTask(t *testing.T) {
	core.SetTime(1000)
	platform, gpio, s := setup(t, &recorder{})
	led := sim.Pins0.StatusLED
	s.StartStatusTask()
	defer s.StopStatusTask()

	platform.Controller(0).Run(0x01, nil)
	if gpio.Level(led) {
		t.Fatalf("Expected status LED low after a transaction")
	}

	core.SetTime(1500)
	core.ProcessTimers()
	if gpio.Level(led) {
		t.Errorf("Expected status LED still low before the period elapsed")
	}

	core.SetTime(2000)
	core.ProcessTimers()
	if !gpio.Level(led) {
		t.Errorf("Expected status LED restored after one period")
	}

	// Task keeps running
	platform.Controller(0).Run(0x01, nil)
	core.SetTime(3000)
	core.ProcessTimers()
	if !gpio.Level(led) {
		t.Errorf("Expected status LED restored by the rescheduled task")
	}
}

func TestRegisterSlaveBringUp(t *testing.T) {
	platform, _, s := setup(t, &recorder{})

	if s.Instance() != 0 {
		t.Errorf("Expected instance 0, got %d", s.Instance())
	}
	if platform.SPIPriority[0] != platform.SelectPriority[0] {
		t.Errorf("Expected equal priorities, got spi=%d select=%d", platform.SPIPriority[0], platform.SelectPriority[0])
	}
	if platform.SPIPriority[0] != int(core.SlaveIRQPriority) {
		t.Errorf("Expected priority %d, got %d", core.SlaveIRQPriority, platform.SPIPriority[0])
	}
	if platform.SelectPin[0] != sim.Pins0.SSEL {
		t.Errorf("Expected select interrupt on pin %d, got %d", sim.Pins0.SSEL, platform.SelectPin[0])
	}
	if platform.ConfiguredPins[0] != sim.Pins0 {
		t.Errorf("Expected pins configured, got %+v", platform.ConfiguredPins[0])
	}
	if core.LookupSlave(0) != s {
		t.Errorf("Expected engine registered for instance 0")
	}
}

func TestRegisterSlaveTwoInstances(t *testing.T) {
	core.SetGPIODriver(sim.NewGPIO())
	platform := sim.NewPlatform()
	recA := &recorder{tx: []byte{0xA}}
	recB := &recorder{tx: []byte{0xB}}
	a := core.NewRegisterSlave(platform, sim.Pins0, recA)
	defer platform.Release(a.Instance())
	b := core.NewRegisterSlave(platform, sim.Pins1, recB)
	defer platform.Release(b.Instance())

	gotB := platform.Controller(1).Run(0x02, []byte{0})
	gotA := platform.Controller(0).Run(0x01, []byte{0})

	if gotA[0] != 0xA || gotB[0] != 0xB {
		t.Errorf("Expected each instance to serve its own handler, got A=%x B=%x", gotA, gotB)
	}
	if len(recA.starts) != 1 || recA.starts[0] != 1 || len(recB.starts) != 1 || recB.starts[0] != 2 {
		t.Errorf("Expected independent dispatch, got A=%v B=%v", recA.starts, recB.starts)
	}
}

func expectPanic(t *testing.T, name string, f func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	f()
}

func TestRegisterSlaveConfigurationDefects(t *testing.T) {
	core.SetGPIODriver(sim.NewGPIO())
	platform := sim.NewPlatform()

	mixed := sim.Pins0
	mixed.MISO = sim.Pins1.MISO
	expectPanic(t, "mixed instances", func() {
		core.NewRegisterSlave(platform, mixed, &recorder{})
	})

	unknown := sim.Pins0
	unknown.SCLK = 40
	expectPanic(t, "unknown pin", func() {
		core.NewRegisterSlave(platform, unknown, &recorder{})
	})

	expectPanic(t, "nil handler", func() {
		core.NewRegisterSlave(platform, sim.Pins0, nil)
	})

	s := core.NewRegisterSlave(platform, sim.Pins0, &recorder{})
	defer platform.Release(s.Instance())
	expectPanic(t, "instance in use", func() {
		core.NewRegisterSlave(platform, sim.Pins0, &recorder{})
	})
}
