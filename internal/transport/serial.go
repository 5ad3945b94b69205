package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// DefaultBaud is the standard rate of a 5-pin MIDI line.
const DefaultBaud = 31250

const rxBufferSize = 256

// Link is a byte-wide serial line.
type Link interface {
	// Ready reports whether a received byte is waiting. It never blocks.
	Ready() bool
	// ReadByte blocks until a byte arrives. A byte the line flagged as
	// corrupt is reported as an error wrapping ErrFrame.
	ReadByte(ctx context.Context) (byte, error)
	// WriteByte blocks until the byte has been handed to the line.
	WriteByte(b byte) error
}

type rxByte struct {
	b   byte
	err error
}

// SerialLink is a Link over a go.bug.st/serial port. A reader goroutine moves
// received bytes into a buffered channel so Ready can answer without blocking.
type SerialLink struct {
	port      serial.Port
	rx        chan rxByte
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	logger    *zap.SugaredLogger
}

// OpenSerial opens the named serial device at the given baud rate, 8N1.
func OpenSerial(name string, baud int, logger *zap.SugaredLogger) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}
	logger.Infow("serial: port opened", "device", name, "baud", baud)
	return NewSerialLink(p, logger), nil
}

// NewSerialLink wraps an already open port and starts its reader.
func NewSerialLink(p serial.Port, logger *zap.SugaredLogger) *SerialLink {
	s := &SerialLink{
		port:    p,
		rx:      make(chan rxByte, rxBufferSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	go s.readLoop()
	return s
}

func (s *SerialLink) readLoop() {
	defer close(s.stopped)
	buf := make([]byte, 64)
	for {
		n, err := s.port.Read(buf)
		for _, b := range buf[:n] {
			if !s.deliver(rxByte{b: b}) {
				return
			}
		}
		if err != nil {
			// the port cannot tell us which byte was damaged, so the fault is
			// delivered in place of the next one
			if s.deliver(rxByte{err: err}) {
				close(s.rx)
			}
			return
		}
	}
}

// deliver hands r to the reader. It reports false once the link is closed.
func (s *SerialLink) deliver(r rxByte) bool {
	select {
	case s.rx <- r:
		return true
	case <-s.done:
		return false
	}
}

// Ready implements Link.
func (s *SerialLink) Ready() bool {
	return len(s.rx) > 0
}

// ReadByte implements Link.
func (s *SerialLink) ReadByte(ctx context.Context) (byte, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r, ok := <-s.rx:
		if !ok {
			return 0, fmt.Errorf("%w: port closed", ErrFrame)
		}
		if r.err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFrame, r.err)
		}
		return r.b, nil
	}
}

// WriteByte implements Link.
func (s *SerialLink) WriteByte(b byte) error {
	n, err := s.port.Write([]byte{b})
	if err != nil {
		return fmt.Errorf("serial: write: %w", err)
	}
	if n != 1 {
		return errors.New("serial: short write")
	}
	return nil
}

// Close closes the underlying serial port and waits for the reader to stop.
func (s *SerialLink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Infow("serial: closing port")
		close(s.done)
		err = s.port.Close()
		<-s.stopped
	})
	return err
}

// ListPorts returns the serial devices present on the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial: list ports: %w", err)
	}
	return ports, nil
}
