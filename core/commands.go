package core

import (
	"sync/atomic"

	"rcadc/protocol"
)

// FirmwareState is the link-level state reported by get_config.
type FirmwareState struct {
	isShutdown uint32 // atomic bool
	shutdowns  []func()
}

var globalState = &FirmwareState{}

// InitCoreCommands registers the bootstrap and housekeeping commands.
// identify_response and identify must be IDs 0 and 1: the host asks for the
// dictionary before it has one.
func InitCoreCommands() {
	RegisterResponse("identify_response", "offset=%u data=%*s")       // ID 0
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify) // ID 1

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("get_config", "", handleGetConfig)
	RegisterCommand("emergency_stop", "", handleEmergencyStop)
	RegisterCommand("reset", "", handleReset)
	RegisterCommand("set_debug", "enable=%c", handleSetDebug)
	RegisterCommand("dump_events", "", handleDumpEvents)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("config", "is_shutdown=%c is_ready=%c")
	RegisterResponse("event", "type=%c clock=%u value1=%u value2=%u")
	RegisterResponse("events_done", "count=%u")
}

func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()
	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

func handleGetConfig(data *[]byte) error {
	shutdown := IsShutdown()
	ready := captureReady()
	SendResponse("config", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, boolArg(shutdown))
		protocol.EncodeVLQUint(output, boolArg(ready))
	})
	return nil
}

func handleEmergencyStop(data *[]byte) error {
	TryShutdown()
	return nil
}

func handleSetDebug(data *[]byte) error {
	enable, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	SetDebugEnabled(enable != 0)
	return nil
}

// handleDumpEvents streams the event ring as event responses and also
// writes it to the debug output.
func handleDumpEvents(data *[]byte) error {
	events := Events()
	for _, evt := range events {
		evt := evt
		SendResponse("event", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, uint32(evt.Type))
			protocol.EncodeVLQUint(output, evt.Clock)
			protocol.EncodeVLQUint(output, evt.Value1)
			protocol.EncodeVLQUint(output, evt.Value2)
		})
	}
	SendResponse("events_done", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(len(events)))
	})
	DumpEvents()
	return nil
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// OnShutdown registers fn to run once on emergency_stop.
func OnShutdown(fn func()) {
	globalState.shutdowns = append(globalState.shutdowns, fn)
}

// TryShutdown stops capture and latches the shutdown flag. Only the first
// call runs the hooks.
func TryShutdown() {
	if !atomic.CompareAndSwapUint32(&globalState.isShutdown, 0, 1) {
		return
	}
	RecordEvent(EvtShutdown, 0, 0)
	for _, fn := range globalState.shutdowns {
		fn()
	}
}

func IsShutdown() bool {
	return atomic.LoadUint32(&globalState.isShutdown) != 0
}

// ResetFirmwareState clears the shutdown latch after a host reconnect.
func ResetFirmwareState() {
	atomic.StoreUint32(&globalState.isShutdown, 0)
	RecordEvent(EvtHostReset, 0, 0)
}

var globalTransport *protocol.Transport

// SetGlobalTransport sets the transport responses are framed into.
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// SendResponse frames a registered response. Sending an unregistered name
// is a programming error.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.GetCommandByName(responseName)
	if !ok {
		panic("response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

var (
	globalResetHandler func()

	// set by the reset command; acted on by the main loop once the ack
	// has gone out
	resetPending uint32
)

// SetResetHandler sets the platform reset (watchdog on RP2040).
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

func handleReset(_ *[]byte) error {
	atomic.StoreUint32(&resetPending, 1)
	return nil
}

// CheckPendingReset runs the reset handler if a reset was requested.
func CheckPendingReset() {
	if atomic.LoadUint32(&resetPending) != 0 && globalResetHandler != nil {
		globalResetHandler()
	}
}
