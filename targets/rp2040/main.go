//go:build rp2040

package main

import (
	"errors"
	"machine"
	"time"

	"rcadc/capture"
	"rcadc/core"
	"rcadc/protocol"
)

var (
	// Buffers for communication
	inputBuffer  *protocol.FifoBuffer
	outputBuffer *protocol.ScratchOutput
	transport    *protocol.Transport

	// Debug counters
	messagesReceived uint32
	messagesSent     uint32
	msgerrors        uint32

	// USB connection state tracking
	lastUSBActivity          uint64
	lastWriteSuccess         uint64
	usbWasDisconnected       bool
	consecutiveWriteFailures uint32

	session *capture.Session
)

func main() {
	// Disable the watchdog left over from a previous reset.
	err := machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})
	if err != nil {
		return
	}

	InitUSB()
	InitClock()
	core.TimerInit()

	cfg := capture.DefaultConfig()
	core.InitCoreCommands()
	core.InitCaptureCommands(cfg)

	// Build and cache dictionary after all commands registered
	core.GetGlobalDictionary().BuildDictionary()

	inputBuffer = protocol.NewFifoBuffer(256)
	outputBuffer = protocol.NewScratchOutput()

	transport = protocol.NewTransport(outputBuffer, handleCommand)
	transport.SetResetCallback(func() {
		inputBuffer.Reset()
		outputBuffer.Reset()
		core.ResetFirmwareState()
	})
	// ACKs go out immediately; the host waits for them before the next block.
	transport.SetFlushCallback(func() {
		writeUSB()
	})
	core.SetGlobalTransport(transport)

	// Watchdog reset is more reliable than SYSRESETREQ and re-enumerates USB.
	core.SetResetHandler(func() {
		if session != nil {
			session.Close()
		}
		err = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
		if err != nil {
			return
		}
		err = machine.Watchdog.Start()
		if err != nil {
			return
		}
		for {
			time.Sleep(1 * time.Millisecond)
		}
	})

	core.RecordEvent(core.EvtBoot, 0, 0)
	startCapture(cfg)
	initDisplay()

	go usbReaderLoop()

	for {
		// Recover from panics in the main loop to prevent a firmware crash
		func() {
			defer func() {
				if r := recover(); r != nil {
					msgerrors++
					inputBuffer.Reset()
					outputBuffer.Reset()
				}
			}()

			UpdateSystemTime()

			if inputBuffer.Available() > 0 {
				data := inputBuffer.Data()
				originalLen := len(data)
				inputBuf := protocol.NewSliceInputBuffer(data)

				transport.Receive(inputBuf)
				messagesReceived++

				consumed := originalLen - inputBuf.Available()
				if consumed > 0 {
					inputBuffer.Pop(consumed)
				}
			}

			result := outputBuffer.Result()
			if len(result) > 0 {
				writeUSB()
				messagesSent++
			}

			// Reset only after the ACK has gone out.
			core.CheckPendingReset()

			core.ProcessTimers()
		}()

		time.Sleep(10 * time.Microsecond)
	}
}

// startCapture brings the DMA capture up and hands it to the command layer.
// A failed start leaves the firmware answering read_samples with not_ready.
func startCapture(cfg capture.Config) {
	hw, err := newCaptureHW()
	if err != nil {
		core.DebugPrintln("[CAPTURE] hardware: " + err.Error())
		core.RecordEvent(core.EvtStartFailed, 0, 0)
		return
	}
	s, err := capture.Start(hw, cfg, capture.WithLogger(core.DebugPrintln))
	if err != nil {
		var calErr *capture.CalibrationError
		if errors.As(err, &calErr) {
			core.RecordEvent(core.EvtCalFailed, uint32(calErr.Channel), uint32(calErr.ScanLimit))
		} else {
			core.RecordEvent(core.EvtStartFailed, 0, 0)
		}
		hw.Close()
		return
	}
	core.RecordEvent(core.EvtSyncDone, uint32(s.SyncAttempts()), 0)
	cal := s.Calibration()
	core.RecordEvent(core.EvtCalibrated, uint32(cal.OffsetA), uint32(cal.OffsetB))

	session = s
	core.SetSampleSource(s)
	core.OnShutdown(func() {
		core.SetSampleSource(nil)
		s.Close()
	})
}

// usbReaderLoop runs in a goroutine to continuously read USB data
func usbReaderLoop() {
	defer func() {
		if r := recover(); r != nil {
			msgerrors++
			time.Sleep(100 * time.Millisecond)
			go usbReaderLoop()
		}
	}()

	for {
		available := USBAvailable()
		if available > 0 {
			data, err := USBRead()
			if err != nil {
				msgerrors++
				time.Sleep(1 * time.Millisecond)
				continue
			}

			// Fresh connection after a disconnect: start from a clean state.
			if usbWasDisconnected {
				usbWasDisconnected = false
				inputBuffer.Reset()
				outputBuffer.Reset()
				transport.Reset()
				core.ResetFirmwareState()
				messagesReceived = 0
				messagesSent = 0
				consecutiveWriteFailures = 0
			}

			lastUSBActivity = core.GetUptime()

			written := inputBuffer.Write([]byte{data})
			if written == 0 {
				msgerrors++
				time.Sleep(10 * time.Millisecond)
			}
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func handleCommand(cmdID uint16, data *[]byte) error {
	return core.DispatchCommand(cmdID, data)
}

// writeUSB drains the output buffer to USB. Repeated failures mark the
// port disconnected and drop stale data.
func writeUSB() {
	result := outputBuffer.Result()
	if len(result) == 0 {
		return
	}
	written := 0
	for written < len(result) {
		n, err := USBWriteBytes(result[written:])
		if err != nil || n == 0 {
			consecutiveWriteFailures++
			if consecutiveWriteFailures > 10 {
				usbWasDisconnected = true
				consecutiveWriteFailures = 0
				outputBuffer.Reset()
				inputBuffer.Reset()
			}
			return
		}
		written += n
	}
	consecutiveWriteFailures = 0
	lastWriteSuccess = core.GetUptime()
	outputBuffer.Reset()
}
