package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
	"go.uber.org/zap"
)

// PortPrefix marks a device name as a host MIDI port rather than a serial
// device, e.g. "midi:Launchkey".
const PortPrefix = "midi:"

// ExcludedPorts are virtual/system ports that are never picked.
var ExcludedPorts = []string{"Midi Through", "Through Port", "Dummy"}

// MIDILink is a Link over a pair of host MIDI ports (USB interfaces and the
// like). Incoming messages are flattened into the same byte stream a serial
// line would deliver; outgoing bytes are gathered into whole messages.
type MIDILink struct {
	drv    *rtmididrv.Driver
	in     drivers.In
	out    drivers.Out
	stopFn func()

	rx        chan rxByte
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	txBuf  []byte
	send   func(midi.Message) error
	logger *zap.SugaredLogger
}

// OpenMIDIPort opens the first input and output port whose names contain
// pattern (case-insensitive).
func OpenMIDIPort(pattern string, logger *zap.SugaredLogger) (*MIDILink, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}

	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("midi: list inputs: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("midi: list outputs: %w", err)
	}

	in := pickPort(ins, pattern)
	out := pickPort(outs, pattern)
	if in == nil || out == nil {
		drv.Close()
		return nil, fmt.Errorf("midi: no input/output pair matching %q", pattern)
	}
	if err := in.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("midi: open %q: %w", in.String(), err)
	}
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("midi: open %q: %w", out.String(), err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("midi: sender %q: %w", out.String(), err)
	}

	l := newMIDILink(send, logger)
	l.drv, l.in, l.out = drv, in, out

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		l.receive(msg)
	}, midi.HandleError(func(listenErr error) {
		logger.Warnw("midi: listener error", "device", in.String(), "err", listenErr)
		l.deliver(rxByte{err: listenErr})
	}))
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("midi: listen %q: %w", in.String(), err)
	}
	l.stopFn = stop
	logger.Infow("midi: connected", "in", in.String(), "out", out.String())
	return l, nil
}

// ListMIDIPorts returns the names of the host MIDI input ports, prefixed so
// they can be passed straight back as a device name.
func ListMIDIPorts() ([]string, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	defer drv.Close()

	ins, err := drv.Ins()
	if err != nil {
		return nil, fmt.Errorf("midi: list inputs: %w", err)
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, PortPrefix+in.String())
	}
	return names, nil
}

func newMIDILink(send func(midi.Message) error, logger *zap.SugaredLogger) *MIDILink {
	return &MIDILink{
		rx:     make(chan rxByte, rxBufferSize),
		done:   make(chan struct{}),
		send:   send,
		logger: logger,
	}
}

func pickPort[P interface{ String() string }](ports []P, pattern string) P {
	var zero P
	for _, p := range ports {
		name := p.String()
		excluded := false
		for _, pat := range ExcludedPorts {
			if containsCI(name, pat) {
				excluded = true
				break
			}
		}
		if !excluded && containsCI(name, pattern) {
			return p
		}
	}
	return zero
}

func (l *MIDILink) receive(msg midi.Message) {
	for _, b := range msg {
		if !l.deliver(rxByte{b: b}) {
			return
		}
	}
}

// deliver hands r to the reader. It reports false once the link is closed.
func (l *MIDILink) deliver(r rxByte) bool {
	select {
	case l.rx <- r:
		return true
	case <-l.done:
		return false
	}
}

// Ready implements Link.
func (l *MIDILink) Ready() bool {
	return len(l.rx) > 0
}

// ReadByte implements Link.
func (l *MIDILink) ReadByte(ctx context.Context) (byte, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case r := <-l.rx:
		if r.err != nil {
			return 0, fmt.Errorf("%w: %v", ErrFrame, r.err)
		}
		return r.b, nil
	}
}

// WriteByte implements Link. A start byte begins a new message; the message
// goes out once it has all its bytes.
func (l *MIDILink) WriteByte(b byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b&0x80 != 0 {
		l.txBuf = l.txBuf[:0]
	}
	l.txBuf = append(l.txBuf, b)
	if len(l.txBuf) < 3 {
		return nil
	}
	msg := midi.Message(append([]byte(nil), l.txBuf...))
	l.txBuf = l.txBuf[:0]
	if err := l.send(msg); err != nil {
		return fmt.Errorf("midi: send: %w", err)
	}
	return nil
}

// Close stops listening and shuts the driver down.
func (l *MIDILink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.logger.Infow("midi: closing ports")
		close(l.done)
		if l.stopFn != nil {
			l.stopFn()
		}
		if l.in != nil {
			_ = l.in.Close()
		}
		if l.out != nil {
			_ = l.out.Close()
		}
		if l.drv != nil {
			err = l.drv.Close()
		}
	})
	return err
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
