package hostio

import (
	"go.bug.st/serial"
)

// UARTPort adapts a real go.bug.st/serial port to the non-blocking
// SerialPort interface the core expects. go.bug.st/serial's Read blocks, so
// a background goroutine drains it into a byte channel Receive polls
// without blocking, mirroring the single-threaded cooperative Poll model
// the rest of the core relies on.
type UARTPort struct {
	port serial.Port
	rx   chan byte
}

// OpenUART opens device at baud 8N1 and starts draining it in the
// background. The returned port's Receive never blocks.
func OpenUART(device string, baud int) (*UARTPort, error) {
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	p := &UARTPort{port: port, rx: make(chan byte, 4096)}
	go p.readLoop()
	return p, nil
}

func (p *UARTPort) readLoop() {
	buf := make([]byte, 256)
	for {
		n, err := p.port.Read(buf)
		if err != nil {
			close(p.rx)
			return
		}
		for i := 0; i < n; i++ {
			p.rx <- buf[i]
		}
	}
}

// Receive returns the next byte already buffered from the port, or false if
// none is available yet.
func (p *UARTPort) Receive() (byte, bool) {
	select {
	case b, ok := <-p.rx:
		return b, ok
	default:
		return 0, false
	}
}

// Send writes b to the port; go.bug.st/serial's Write blocks until
// accepted by the OS, so Send only reports a failed write, never backpressure.
func (p *UARTPort) Send(b byte) bool {
	_, err := p.port.Write([]byte{b})
	return err == nil
}

// Close releases the underlying OS handle.
func (p *UARTPort) Close() error {
	return p.port.Close()
}
