package core

import "strconv"

// DebugWriter writes one line of debug output.
type DebugWriter func(string)

// Event type codes
const (
	EvtBoot        = 1 // firmware started
	EvtSyncDone    = 2 // clock sync accepted; v1 = attempts
	EvtCalibrated  = 3 // v1 = offset A, v2 = offset B
	EvtCalFailed   = 4 // v1 = channel
	EvtReadOK      = 5 // v1 = half, v2 = bytes
	EvtReadTear    = 6 // v1 = half
	EvtReadTimeout = 7 // v1 = half
	EvtReadReject  = 8 // v1 = requested bytes
	EvtStartFailed = 9
	EvtHostReset   = 10
	EvtShutdown    = 11
)

// EventRingSize is how many events are kept for post-mortem.
const EventRingSize = 32

// Event is one entry of the post-mortem ring.
type Event struct {
	Type   uint8
	Clock  uint32
	Value1 uint32
	Value2 uint32
}

var (
	debugPrintln DebugWriter = func(s string) {}

	// Disabled by default; set_debug enable=1 turns it on.
	debugEnabled bool

	eventRing     [EventRingSize]Event
	eventRingHead uint8
	eventCount    uint32

	debugChan chan string
)

// SetDebugWriter redirects debug output to UART, USB or a test buffer.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts a goroutine that drains DebugAsync messages.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go func() {
		for msg := range debugChan {
			DebugPrintln(msg)
		}
	}()
}

// DebugPrintln writes msg if debug output is enabled.
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues msg without blocking; it is dropped if the queue is full.
func DebugAsync(msg string) {
	if debugChan == nil {
		DebugPrintln(msg)
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordEvent stores an event in the ring, overwriting the oldest.
func RecordEvent(eventType uint8, value1, value2 uint32) {
	state := disableInterrupts()
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:   eventType,
		Clock:  GetTime(),
		Value1: value1,
		Value2: value2,
	}
	eventRingHead = (idx + 1) % EventRingSize
	eventCount++
	restoreInterrupts(state)
}

// Events returns the recorded events, oldest first.
func Events() []Event {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	n := int(eventCount)
	if n > EventRingSize {
		n = EventRingSize
	}
	out := make([]Event, 0, n)
	start := (int(eventRingHead) - n + EventRingSize) % EventRingSize
	for i := 0; i < n; i++ {
		out = append(out, eventRing[(start+i)%EventRingSize])
	}
	return out
}

// EventCount is the number of events ever recorded.
func EventCount() uint32 {
	return eventCount
}

func EventName(t uint8) string {
	switch t {
	case EvtBoot:
		return "BOOT"
	case EvtSyncDone:
		return "SYNC"
	case EvtCalibrated:
		return "CAL"
	case EvtCalFailed:
		return "CAL_FAILED!"
	case EvtReadOK:
		return "READ"
	case EvtReadTear:
		return "TEAR!"
	case EvtReadTimeout:
		return "TIMEOUT!"
	case EvtReadReject:
		return "REJECT"
	case EvtStartFailed:
		return "START_FAILED!"
	case EvtHostReset:
		return "HOST_RESET"
	case EvtShutdown:
		return "SHUTDOWN"
	}
	return "UNKNOWN"
}

// DumpEvents writes the ring to the debug writer regardless of the debug
// flag; it is only called on request or after a fault.
func DumpEvents() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[EVENTS] " + EventName(evt.Type) +
			" clock=" + strconv.FormatUint(uint64(evt.Clock), 10) +
			" v1=" + strconv.FormatUint(uint64(evt.Value1), 10) +
			" v2=" + strconv.FormatUint(uint64(evt.Value2), 10))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

func ClearEvents() {
	state := disableInterrupts()
	for i := range eventRing {
		eventRing[i] = Event{}
	}
	eventRingHead = 0
	eventCount = 0
	restoreInterrupts(state)
}
