package core

import (
	"errors"
	"strconv"

	"rcadc/capture"
	"rcadc/protocol"
)

// SampleSource is the capture session as seen by the command layer.
type SampleSource interface {
	Read(dst []byte) (int, error)
	Calibration() capture.Calibration
	Stats() capture.Stats
	Config() capture.Config
}

var (
	sampleSource SampleSource
	sampleBuf    []byte
	sampleSeq    uint16
	sampleLast   int
)

// SetSampleSource installs the running session, or nil while there is
// none. The read buffer is sized from the session's MaxRead.
func SetSampleSource(src SampleSource) {
	sampleSource = src
	sampleLast = 0
	if src == nil {
		return
	}
	if n := src.Config().MaxRead; len(sampleBuf) != n {
		sampleBuf = make([]byte, n)
	}
}

func captureReady() bool {
	return sampleSource != nil
}

// LastSamples returns the most recent block read successfully. It is
// overwritten by the next read_samples.
func LastSamples() []byte {
	return sampleBuf[:sampleLast]
}

// CaptureStats returns the session counters, or zeros with no session.
func CaptureStats() capture.Stats {
	if sampleSource == nil {
		return capture.Stats{}
	}
	return sampleSource.Stats()
}

// sampleStatusNames index matches protocol.SampleStatus.
var sampleStatusNames = []string{"ok", "too_large", "odd_length", "not_ready", "timeout", "tear"}

// InitCaptureCommands registers the sample commands and the constants the
// host needs to interpret them.
func InitCaptureCommands(cfg capture.Config) {
	RegisterCommand("read_samples", "count=%hu", handleReadSamples)
	RegisterCommand("get_calibration", "", handleGetCalibration)
	RegisterCommand("get_capture_stats", "", handleGetCaptureStats)

	RegisterResponse("samples_data", "seq=%hu offset=%hu data=%*s")
	RegisterResponse("samples_done", "seq=%hu count=%hu status=%c")
	RegisterResponse("calibration", "offset_a=%hu offset_b=%hu mask=%u phase=%c ready=%c")
	RegisterResponse("capture_stats", "reads=%u tears=%u timeouts=%u rejects=%u")

	RegisterConstant("ADC_SAMPLE_RATE", uint32(cfg.SampleRate))
	RegisterConstant("ADC_MAX_READ", uint32(cfg.MaxRead))
	RegisterConstant("ADC_MAX_VALUE", uint32(capture.MaxSample))
	RegisterEnumeration("sample_status", sampleStatusNames)
}

func statusOf(err error) protocol.SampleStatus {
	switch {
	case err == nil:
		return protocol.StatusOK
	case errors.Is(err, capture.ErrRequestTooLarge):
		return protocol.StatusTooLarge
	case errors.Is(err, capture.ErrOddLength):
		return protocol.StatusOddLength
	case errors.Is(err, capture.ErrWaitTimeout):
		return protocol.StatusTimeout
	case errors.Is(err, capture.ErrTear):
		return protocol.StatusTear
	}
	return protocol.StatusNotReady
}

// handleReadSamples reads one half-buffer block and streams it back as
// samples_data chunks followed by samples_done. A failed read sends only
// samples_done.
func handleReadSamples(data *[]byte) error {
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	sampleSeq++
	seq := sampleSeq

	var n int
	switch {
	case sampleSource == nil:
		err = capture.ErrNotReady
	case int(count) > len(sampleBuf):
		err = capture.ErrRequestTooLarge
	default:
		n, err = sampleSource.Read(sampleBuf[:count])
	}

	status := statusOf(err)
	switch status {
	case protocol.StatusOK:
		sampleLast = n
		RecordEvent(EvtReadOK, uint32(seq), uint32(n))
		protocol.ChunkSamples(sampleBuf[:n], func(offset int, chunk []byte) {
			SendResponse("samples_data", func(output protocol.OutputBuffer) {
				protocol.EncodeVLQUint(output, uint32(seq))
				protocol.EncodeVLQUint(output, uint32(offset))
				protocol.EncodeVLQBytes(output, chunk)
			})
		})
	case protocol.StatusTear:
		RecordEvent(EvtReadTear, uint32(seq), 0)
	case protocol.StatusTimeout:
		RecordEvent(EvtReadTimeout, uint32(seq), 0)
	default:
		RecordEvent(EvtReadReject, uint32(seq), count)
	}
	if err != nil {
		DebugPrintln("[READ] seq=" + strconv.Itoa(int(seq)) + " " + err.Error())
	}

	SendResponse("samples_done", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(seq))
		protocol.EncodeVLQUint(output, uint32(n))
		protocol.EncodeVLQUint(output, uint32(status))
	})
	return nil
}

func handleGetCalibration(data *[]byte) error {
	var cal capture.Calibration
	var phase int
	ready := sampleSource != nil
	if ready {
		cal = sampleSource.Calibration()
		phase = cal.Phase(sampleSource.Config().PeriodWords)
	}
	SendResponse("calibration", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(cal.OffsetA))
		protocol.EncodeVLQUint(output, uint32(cal.OffsetB))
		protocol.EncodeVLQUint(output, cal.Mask)
		protocol.EncodeVLQUint(output, uint32(phase))
		protocol.EncodeVLQUint(output, boolArg(ready))
	})
	return nil
}

func handleGetCaptureStats(data *[]byte) error {
	st := CaptureStats()
	SendResponse("capture_stats", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, st.Reads)
		protocol.EncodeVLQUint(output, st.Tears)
		protocol.EncodeVLQUint(output, st.Timeouts)
		protocol.EncodeVLQUint(output, st.Rejects)
	})
	return nil
}
