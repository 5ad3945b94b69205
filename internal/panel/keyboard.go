// Package panel provides the front-panel adapters for a host machine: mode
// switches and the tempo knob on the keyboard, and the LED bar on the terminal.
package panel

import (
	"sync"
	"sync/atomic"

	"github.com/eiannone/keyboard"
	"go.uber.org/zap"
)

// KnobSteps is how many key presses turn the knob across its full range.
const KnobSteps = 16

// Keyboard maps keys to the mode lines and the knob:
//
//	r  toggle record     p  toggle playback    m  toggle modify
//	[  knob down         ]  knob up            q / Esc / Ctrl-C  quit
type Keyboard struct {
	record   atomic.Bool
	playback atomic.Bool
	modify   atomic.Bool
	knob     atomic.Uint32

	max      uint16
	quit     chan struct{}
	quitOnce sync.Once
	logger   *zap.SugaredLogger
}

// NewKeyboard returns a panel with every line low and the knob at full scale.
func NewKeyboard(knobMax uint16, logger *zap.SugaredLogger) *Keyboard {
	k := &Keyboard{max: knobMax, quit: make(chan struct{}), logger: logger}
	k.knob.Store(uint32(knobMax))
	return k
}

// OpenKeyboard puts the terminal in raw mode and starts listening for keys.
// Call Close when done.
func OpenKeyboard(knobMax uint16, logger *zap.SugaredLogger) (*Keyboard, error) {
	events, err := keyboard.GetKeys(16)
	if err != nil {
		return nil, err
	}
	k := NewKeyboard(knobMax, logger)
	go k.Listen(events)
	logger.Infow("panel: keyboard ready", "keys", "r=record p=playback m=modify [ ]=knob q=quit")
	return k, nil
}

// Listen applies key events until the channel closes or a quit key arrives.
func (k *Keyboard) Listen(events <-chan keyboard.KeyEvent) {
	for ev := range events {
		if ev.Err != nil {
			k.logger.Warnw("panel: keyboard error", "err", ev.Err)
			continue
		}
		if !k.Handle(ev.Rune, ev.Key) {
			return
		}
	}
}

// Handle applies one key. It returns false once the key asked to quit.
func (k *Keyboard) Handle(r rune, key keyboard.Key) bool {
	switch {
	case key == keyboard.KeyCtrlC || key == keyboard.KeyEsc || r == 'q':
		k.quitOnce.Do(func() { close(k.quit) })
		return false
	case r == 'r':
		k.logger.Infow("panel: record line", "high", toggle(&k.record))
	case r == 'p':
		k.logger.Infow("panel: playback line", "high", toggle(&k.playback))
	case r == 'm':
		k.logger.Infow("panel: modify line", "high", toggle(&k.modify))
	case r == '[':
		k.turn(-1)
	case r == ']':
		k.turn(1)
	}
	return true
}

func toggle(b *atomic.Bool) bool {
	for {
		old := b.Load()
		if b.CompareAndSwap(old, !old) {
			return !old
		}
	}
}

func (k *Keyboard) turn(dir int) {
	step := int(k.max) / KnobSteps
	if step == 0 {
		step = 1
	}
	v := int(k.knob.Load()) + dir*step
	if v < 0 {
		v = 0
	}
	if v > int(k.max) {
		v = int(k.max)
	}
	k.knob.Store(uint32(v))
	k.logger.Infow("panel: knob", "value", v, "max", k.max)
}

// Recording implements controller.Inputs.
func (k *Keyboard) Recording() bool { return k.record.Load() }

// Playback implements controller.Inputs.
func (k *Keyboard) Playback() bool { return k.playback.Load() }

// Modifying implements controller.Inputs.
func (k *Keyboard) Modifying() bool { return k.modify.Load() }

// Sample implements controller.Analog.
func (k *Keyboard) Sample() (uint16, error) { return uint16(k.knob.Load()), nil }

// Done is closed when a quit key is pressed.
func (k *Keyboard) Done() <-chan struct{} { return k.quit }

// Close restores the terminal.
func (k *Keyboard) Close() error {
	return keyboard.Close()
}

// Static holds lines fixed at startup, for running without a terminal.
type Static struct {
	Record bool
	Play   bool
	Modify bool
	Knob   uint16
}

func (s Static) Recording() bool         { return s.Record }
func (s Static) Playback() bool          { return s.Play }
func (s Static) Modifying() bool         { return s.Modify }
func (s Static) Sample() (uint16, error) { return s.Knob, nil }
