// Register based SPI follower
// The controller selects us, sends one address byte, then reads and writes
// the addressed register space simultaneously, one byte per clock frame.
package core

import "sync/atomic"

// SlaveMode is the protocol state of a RegisterSlave
type SlaveMode uint8

const (
	ModeInactive       SlaveMode = iota // Not selected
	ModeWaitingAddress                  // Selected, address byte not yet received
	ModeTransferring                    // Data phase
)

// Buffer holds the data for one transaction. TX is sent to the controller
// and is never written by the engine. RX receives at most len(RX) bytes.
type Buffer struct {
	TX []byte
	RX []byte
}

// Handler supplies buffers and receives completion notices.
// Both methods run in interrupt context and must not block or allocate.
type Handler interface {
	// StartTransfer is called once the address byte arrived. It must
	// return within about a microsecond: the next clock edge is pending.
	StartTransfer(address uint16) Buffer

	// EndTransfer is called after select is released. rxCount may be
	// larger than len(RX), which means the controller overran the buffer.
	EndTransfer(address uint16, rxCount int)
}

// HandlerFuncs adapts two plain functions to Handler. Nil members are no-ops.
type HandlerFuncs struct {
	Start func(address uint16) Buffer
	End   func(address uint16, rxCount int)
}

func (h HandlerFuncs) StartTransfer(address uint16) Buffer {
	if h.Start == nil {
		return Buffer{}
	}
	return h.Start(address)
}

func (h HandlerFuncs) EndTransfer(address uint16, rxCount int) {
	if h.End != nil {
		h.End(address, rxCount)
	}
}

// FlushPolicy selects how peripheral residue is cleared on deselect
type FlushPolicy uint8

const (
	// FlushReinit re-initializes the peripheral after every transaction
	FlushReinit FlushPolicy = iota

	// FlushSelective uses FIFOFlusher when the peripheral has one and
	// falls back to Reinit otherwise
	FlushSelective
)

// StatusPeriodUS is the default cadence of the status indicator restore task
const StatusPeriodUS = 1000

// SlaveStats are aggregate counters, safe to read from the foreground
type SlaveStats struct {
	Transactions uint32 // Transactions that reached the data phase
	Overflows    uint32 // Transactions where the controller overran RX
	Spurious     uint32 // Bytes drained while not selected
	Reselects    uint32 // Select assertions seen while already selected
}

type slaveOptions struct {
	flush        FlushPolicy
	status       StatusIndicator
	statusPeriod uint32
}

// SlaveOption configures NewRegisterSlave
type SlaveOption func(*slaveOptions)

// WithFlushPolicy sets the deselect flush behaviour (default FlushReinit)
func WithFlushPolicy(p FlushPolicy) SlaveOption {
	return func(o *slaveOptions) { o.flush = p }
}

// WithStatusIndicator replaces the GPIO status LED with another indicator
func WithStatusIndicator(s StatusIndicator) SlaveOption {
	return func(o *slaveOptions) { o.status = s }
}

// WithStatusPeriod sets the status task period in microseconds
func WithStatusPeriod(us uint32) SlaveOption {
	return func(o *slaveOptions) {
		if us > 0 {
			o.statusPeriod = us
		}
	}
}

// RegisterSlave is the register access protocol engine for one SPI instance.
type RegisterSlave struct {
	id      SPIInstanceID
	periph  Peripheral
	layout  RegisterLayout
	flusher FIFOFlusher
	handler Handler
	status  StatusIndicator

	// Owned by interrupt context
	mode       SlaveMode
	address    uint16
	buf        Buffer
	txCount    int
	rxCount    int
	overflowed bool

	statusTimer  Timer
	statusPeriod uint32

	transactions uint32
	overflows    uint32
	spurious     uint32
	reselects    uint32
}

// NewRegisterSlave binds a follower engine to the SPI instance the pins
// resolve to, registers it for interrupt dispatch and enables its interrupts.
// A binding that cannot be resolved is a configuration defect and panics.
func NewRegisterSlave(platform Platform, pins SlavePins, handler Handler, opts ...SlaveOption) *RegisterSlave {
	if platform == nil {
		panic("register slave: platform not configured")
	}
	if handler == nil {
		panic("register slave: handler is nil")
	}

	o := slaveOptions{flush: FlushReinit, statusPeriod: StatusPeriodUS}
	for _, opt := range opts {
		opt(&o)
	}

	id, ok := ResolveSPIInstance(pins, platform.PinMap())
	if !ok {
		panic("register slave: pins do not map to a single SPI peripheral")
	}

	periph := platform.Peripheral(id)
	if periph == nil {
		panic("register slave: no peripheral for SPI instance " + itoa(int(id)))
	}

	s := &RegisterSlave{
		id:      id,
		periph:  periph,
		layout:  periph.Layout(),
		handler: handler,
		status:  o.status,

		statusPeriod: o.statusPeriod,
	}

	if o.flush == FlushSelective {
		if f, ok := periph.(FIFOFlusher); ok {
			s.flusher = f
		} else {
			RecordEvent(EvtFlushFallback, uint8(id), 0, 0)
		}
	}

	if s.status == nil {
		if pins.StatusLED != NoPin {
			s.status = NewGPIOStatus(pins.StatusLED)
		} else {
			s.status = noStatus{}
		}
	}
	s.status.Release()

	platform.ConfigurePins(id, pins)
	periph.Reinit()

	registerSlave(id, s)
	platform.EnableInterrupts(id, pins.SSEL, SlaveIRQPriority)

	return s
}

// Instance returns the SPI instance this engine serves
func (s *RegisterSlave) Instance() SPIInstanceID {
	return s.id
}

// Mode returns the protocol state. Diagnostic only: the value may be stale
// by the time the caller looks at it.
func (s *RegisterSlave) Mode() SlaveMode {
	return s.mode
}

// Stats returns a snapshot of the aggregate counters
func (s *RegisterSlave) Stats() SlaveStats {
	return SlaveStats{
		Transactions: atomic.LoadUint32(&s.transactions),
		Overflows:    atomic.LoadUint32(&s.overflows),
		Spurious:     atomic.LoadUint32(&s.spurious),
		Reselects:    atomic.LoadUint32(&s.reselects),
	}
}

// HandleSelectFall arms the engine for a new transaction.
func (s *RegisterSlave) HandleSelectFall() {
	if s.mode != ModeInactive {
		// Rising edge was missed. Keep going with the current transaction.
		atomic.AddUint32(&s.reselects, 1)
		RecordEvent(EvtReselect, uint8(s.id), uint32(s.mode), uint32(s.rxCount))
		s.status.Assert()
		return
	}

	s.txCount = 0
	s.rxCount = 0
	s.overflowed = false
	s.mode = ModeWaitingAddress

	// Response for the address byte. The controller clocks it right away.
	s.periph.Store8(s.layout.Data, 0)

	s.status.Assert()
}

// HandleSelectRise completes the transaction and readies the peripheral
// for the next one.
func (s *RegisterSlave) HandleSelectRise() {
	if s.mode == ModeTransferring {
		atomic.AddUint32(&s.transactions, 1)
		s.handler.EndTransfer(s.address, s.rxCount)
	}

	if s.flusher != nil {
		s.flusher.FlushFIFOs()
	} else {
		s.periph.Reinit()
	}

	s.buf = Buffer{}
	s.mode = ModeInactive
}

// HandleSPIInterrupt drains every received byte the peripheral holds.
func (s *RegisterSlave) HandleSPIInterrupt() {
	regs := s.periph
	for regs.Load8(s.layout.Status)&s.layout.RxReady != 0 {
		b := regs.Load8(s.layout.Data)

		switch s.mode {
		case ModeInactive:
			atomic.AddUint32(&s.spurious, 1)

		case ModeWaitingAddress:
			s.address = uint16(b)
			s.buf = s.handler.StartTransfer(s.address)
			s.mode = ModeTransferring
			s.prepareTx()

		case ModeTransferring:
			if s.rxCount < len(s.buf.RX) {
				s.buf.RX[s.rxCount] = b
			} else if !s.overflowed {
				s.overflowed = true
				atomic.AddUint32(&s.overflows, 1)
				RecordEvent(EvtOverflow, uint8(s.id), uint32(s.address), uint32(len(s.buf.RX)))
			}
			s.rxCount++
			s.prepareTx()
		}
	}
}

// prepareTx fills every free transmit slot, padding with zero once TX runs out
func (s *RegisterSlave) prepareTx() {
	regs := s.periph
	for regs.Load8(s.layout.Status)&s.layout.TxFree != 0 {
		var b byte
		if s.txCount < len(s.buf.TX) {
			b = s.buf.TX[s.txCount]
		}
		regs.Store8(s.layout.Data, b)
		s.txCount++
	}
}

// PollMillisecond restores the status indicator. Call it about once per
// millisecond from the foreground; select assertions pull it active, so a
// busy bus shows as a pulse train.
func (s *RegisterSlave) PollMillisecond() {
	s.status.Release()
}

// StartStatusTask schedules PollMillisecond on the timer list so that
// ProcessTimers drives it.
func (s *RegisterSlave) StartStatusTask() {
	s.statusTimer.Next = nil
	s.statusTimer.Handler = s.statusEvent
	s.statusTimer.WakeTime = GetTime() + TimerFromUS(s.statusPeriod)
	ScheduleTimer(&s.statusTimer)
}

// StopStatusTask removes the status task from the timer list
func (s *RegisterSlave) StopStatusTask() {
	CancelTimer(&s.statusTimer)
}

func (s *RegisterSlave) statusEvent(t *Timer) uint8 {
	s.PollMillisecond()
	period := TimerFromUS(s.statusPeriod)
	t.WakeTime += period
	if int32(t.WakeTime-currentTime) <= 0 {
		// Fell behind, don't replay missed periods
		t.WakeTime = currentTime + period
	}
	return SF_RESCHEDULE
}
