// Package serial opens the USB CDC port the capture firmware enumerates as.
package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Port is an open link to the device.
type Port interface {
	io.ReadWriteCloser

	// Flush discards anything not yet read or written.
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate. USB CDC ignores it but the driver wants one.
	Baud int

	// ReadTimeout bounds each Read; zero blocks.
	ReadTimeout time.Duration
}

// DefaultConfig returns the configuration for a device path.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}

var ErrNoDevice = errors.New("serial: no device path")

// NativePort wraps tarm/serial.
type NativePort struct {
	port *serial.Port
	cfg  Config

	closeOnce sync.Once
	closeErr  error
}

// Open opens the port described by cfg and drops stale bytes left over
// from a previous session.
func Open(cfg *Config) (*NativePort, error) {
	if cfg == nil || cfg.Device == "" {
		return nil, ErrNoDevice
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	p := &NativePort{port: port, cfg: *cfg}
	if err := p.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", cfg.Device, err)
	}
	return p, nil
}

func (p *NativePort) Read(b []byte) (int, error) {
	return p.port.Read(b)
}

func (p *NativePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

// Close closes the port. It is safe to call more than once.
func (p *NativePort) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.port.Close()
	})
	return p.closeErr
}

func (p *NativePort) Flush() error {
	return p.port.Flush()
}

// Device returns the path the port was opened on.
func (p *NativePort) Device() string {
	return p.cfg.Device
}
