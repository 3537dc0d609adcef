package lidar

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// Transport is the minimal byte-oriented interface the Scan Assembler
// needs from the serial link. It mirrors the teacher's SerialPorter
// split but adds the LiDAR-specific non-blocking read contract: a
// "no data yet" condition returns (0, nil), never an error.
type Transport interface {
	// SendCommand writes a command frame, failing with
	// ErrTransportWriteShort on a partial write.
	SendCommand(frame []byte) error

	// ReadBytes performs a single non-blocking read bounded by the
	// transport's configured timeout. It returns 0 with a nil error
	// when no data arrived within the timeout.
	ReadBytes(buf []byte) (int, error)

	// Close releases the underlying descriptor. Close is idempotent.
	Close() error
}

// TransportFactory opens a Transport for a device path. Production
// code uses OpenSerialTransport; tests inject NewSimulatedTransport.
type TransportFactory func(devicePath string, baudRate int) (Transport, error)

const readTimeout = 1 * time.Second

// serialTransport is the real implementation, backed by go.bug.st/serial
// the same way the teacher's internal/serialmux wraps it.
type serialTransport struct {
	port serial.Port
}

// OpenSerialTransport opens devicePath at baudRate, 8N1, no flow
// control, with a ~1s read timeout, matching spec.md §4.A.
func OpenSerialTransport(devicePath string, baudRate int) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(devicePath, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrTransportIO, devicePath, err)
	}
	if err := port.SetReadTimeout(readTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: set read timeout: %v", ErrTransportIO, err)
	}

	return &serialTransport{port: port}, nil
}

func (t *serialTransport) SendCommand(frame []byte) error {
	n, err := t.port.Write(frame)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	if n != len(frame) {
		return fmt.Errorf("%w: wrote %d of %d bytes", ErrTransportWriteShort, n, len(frame))
	}
	return nil
}

func (t *serialTransport) ReadBytes(buf []byte) (int, error) {
	n, err := t.port.Read(buf)
	if err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrTransportIO, err)
	}
	return n, nil
}

func (t *serialTransport) Close() error {
	return t.port.Close()
}
