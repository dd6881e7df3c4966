package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// DiagEvent captures an anomaly for post-mortem analysis
type DiagEvent struct {
	EventType uint8  // Event type code
	Instance  uint8  // SPI instance
	Clock     uint32 // System clock at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	EvtReselect      = 1 // Select asserted while already selected (v1=mode, v2=rxCount)
	EvtOverflow      = 2 // Controller overran RX (v1=address, v2=capacity)
	EvtFlushFallback = 3 // Selective flush requested but unsupported
	EvtNoticeDrop    = 4 // Notice ring full (v1=address)
)

const (
	EventRingSize = 32 // Keep last 32 anomalies
)

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled controls whether DebugPrintln output is active
	debugEnabled bool = false

	// Anomaly ring buffer, written from interrupt context
	eventRing     [EventRingSize]DiagEvent
	eventRingHead uint8

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine.
// Call this from main() after SetDebugWriter.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go debugOutputWorker()
}

func debugOutputWorker() {
	for msg := range debugChan {
		if debugPrintln != nil {
			debugPrintln(msg)
		}
	}
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a debug message without blocking; drops it if the
// channel is full.
func DebugAsync(msg string) {
	if debugChan != nil {
		select {
		case debugChan <- msg:
		default:
		}
	}
}

// RecordEvent stores an anomaly in the ring. Safe from interrupt context.
func RecordEvent(eventType, instance uint8, value1, value2 uint32) {
	idx := eventRingHead
	eventRing[idx] = DiagEvent{
		EventType: eventType,
		Instance:  instance,
		Clock:     GetTime(),
		Value1:    value1,
		Value2:    value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the recorded anomalies, oldest first
func Events() []DiagEvent {
	out := make([]DiagEvent, 0, EventRingSize)
	start := eventRingHead
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(start+i)%EventRingSize]
		if evt.EventType == 0 {
			continue
		}
		out = append(out, evt)
	}
	return out
}

// DumpEventRing writes the anomaly ring through the debug writer
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}

	debugPrintln("[DIAG] === Event Ring Dump ===")
	for _, evt := range Events() {
		var name string
		switch evt.EventType {
		case EvtReselect:
			name = "RESELECT"
		case EvtOverflow:
			name = "RX_OVERFLOW"
		case EvtFlushFallback:
			name = "FLUSH_FALLBACK"
		case EvtNoticeDrop:
			name = "NOTICE_DROP"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[DIAG] " + name +
			" spi=" + itoa(int(evt.Instance)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + itoaHex(int(evt.Value1)) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[DIAG] === End Dump ===")
}

// ClearEventRing clears the anomaly buffer
func ClearEventRing() {
	for i := range eventRing {
		eventRing[i] = DiagEvent{}
	}
	eventRingHead = 0
}
