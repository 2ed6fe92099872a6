package signalmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenConsole opens the serial device at path and bridges it to bus.
func OpenConsole(path string, opts PortOptions, bus Mux) (*Console[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open console %s: %w", path, err)
	}
	return NewConsole[serial.Port](port, bus), nil
}
