package attenuator

import (
	"context"
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialDialer opens the attenuator controller over a native RS-232 port
// using go.bug.st/serial, for hosts wired directly to the unit instead of
// going through a device server.
type SerialDialer struct {
	// PortName is the serial device path, e.g. "/dev/ttyUSB0".
	PortName string
	// BaudRate for the controller link. Defaults to 9600, the DD-100-MC
	// factory setting.
	BaudRate int
	// ChunkTimeout bounds each single receive attempt. Defaults to 5s.
	ChunkTimeout time.Duration
}

func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	baud := d.BaudRate
	if baud == 0 {
		baud = 9600
	}
	port, err := serial.Open(d.PortName, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	chunkTimeout := d.ChunkTimeout
	if chunkTimeout <= 0 {
		chunkTimeout = 5 * time.Second
	}
	// With a read timeout set, Read returns (0, nil) on expiry, which is
	// exactly the empty-chunk contract the accumulator expects.
	if err := port.SetReadTimeout(chunkTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &serialTransport{port: port}, nil
}

type serialTransport struct {
	port serial.Port
}

func (t *serialTransport) Read(p []byte) (int, error)  { return t.port.Read(p) }
func (t *serialTransport) Write(p []byte) (int, error) { return t.port.Write(p) }
func (t *serialTransport) Close() error                { return t.port.Close() }

// Drain flushes the OS receive buffer. The serial layer does not report
// how many bytes it dropped.
func (t *serialTransport) Drain() (int, error) {
	return 0, t.port.ResetInputBuffer()
}

var _ Transport = (*serialTransport)(nil)
var _ Dialer = SerialDialer{}
