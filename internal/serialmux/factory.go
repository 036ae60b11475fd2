package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenRealPort opens a hardware serial port with the given options.
func OpenRealPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialMux creates a SerialMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	port, err := OpenRealPort(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
