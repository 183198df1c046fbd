package capture

import (
	"errors"
	"strconv"
)

// Read errors
var (
	ErrRequestTooLarge = errors.New("capture: read larger than max read")
	ErrOddLength       = errors.New("capture: read length must be even")
	ErrNotReady        = errors.New("capture: session not ready")
	ErrWaitTimeout     = errors.New("capture: timed out waiting for half boundary")
	ErrTear            = errors.New("capture: half overwritten during read")
)

// Setup errors
var (
	ErrClockSync         = errors.New("capture: clocks did not synchronise")
	ErrSettleTimeout     = errors.New("capture: write position never reached ring start")
	ErrCalibrationFailed = errors.New("capture: calibration found no pulse")
	ErrClosed            = errors.New("capture: session closed")
)

// CalibrationError reports which channel's scan came up empty.
type CalibrationError struct {
	Channel   byte // 'A' or 'B'
	ScanLimit int
}

func (e *CalibrationError) Error() string {
	return "capture: no pulse on channel " + string(e.Channel) + " within " + strconv.Itoa(e.ScanLimit) + " words"
}

func (e *CalibrationError) Unwrap() error {
	return ErrCalibrationFailed
}

// Retryable reports whether a read error is transient: the next read may
// succeed without any intervention.
func Retryable(err error) bool {
	return errors.Is(err, ErrTear) || errors.Is(err, ErrWaitTimeout)
}
