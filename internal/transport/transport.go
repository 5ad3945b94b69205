// Package transport moves note messages over a serial line.
package transport

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/chase3718/lou-looper/internal/clock"
	"github.com/chase3718/lou-looper/internal/note"
	"go.uber.org/zap"
)

// ErrFrame is returned when the line reports a corrupt received byte.
var ErrFrame = errors.New("frame error")

// Transport reads and sends messages and notes over a Link. Reads block until
// data arrives or the line faults; there is no timeout.
type Transport struct {
	link       Link
	clock      clock.Clock
	delay      clock.Delayer
	saturation uint16
	logger     *zap.SugaredLogger
}

// New returns a Transport. saturation is the duration recorded for a note
// held longer than the clock window.
func New(link Link, c clock.Clock, d clock.Delayer, saturation uint16, logger *zap.SugaredLogger) *Transport {
	return &Transport{
		link:       link,
		clock:      c,
		delay:      d,
		saturation: saturation,
		logger:     logger,
	}
}

// PollReady reports whether input is pending without blocking.
func (t *Transport) PollReady() bool {
	return t.link.Ready()
}

// ReadMessage reads three bytes and validates them as a message.
func (t *Transport) ReadMessage(ctx context.Context) (note.Message, error) {
	var raw [note.MessageSize]byte
	for i := range raw {
		b, err := t.link.ReadByte(ctx)
		if err != nil {
			return note.Message{}, fmt.Errorf("transport: read byte %d: %w", i+1, err)
		}
		raw[i] = b
	}
	msg := note.MessageFrom(raw)
	if err := msg.Validate(); err != nil {
		return note.Message{}, fmt.Errorf("transport: %w", err)
	}
	t.logger.Debugw("transport: message received", "msg", msg.String())
	return msg, nil
}

// SendMessage writes the three message bytes in order.
func (t *Transport) SendMessage(msg note.Message) error {
	for i, b := range msg.Bytes() {
		if err := t.link.WriteByte(b); err != nil {
			return fmt.Errorf("transport: send byte %d: %w", i+1, err)
		}
	}
	t.logger.Debugw("transport: message sent", "msg", msg.String())
	return nil
}

// ReadNote reads a start message, times the pause until the stop message
// begins to arrive, then reads the stop message. The returned note carries
// the measured Duration; TimeElapsed is left zero for the caller to fill.
func (t *Transport) ReadNote(ctx context.Context) (note.Note, error) {
	start, err := t.ReadMessage(ctx)
	if err != nil {
		return note.Note{}, err
	}

	// an overflow latched before the start message belongs to the idle gap,
	// not to this note
	t.clock.Reset()
	t.clock.ResetOverflow()
	for !t.link.Ready() {
		if err := ctx.Err(); err != nil {
			return note.Note{}, err
		}
		runtime.Gosched()
	}
	duration := clock.Elapsed(t.clock, t.saturation)

	stop, err := t.ReadMessage(ctx)
	if err != nil {
		return note.Note{}, err
	}

	n := note.Note{Start: start, Stop: stop, Duration: duration}
	t.logger.Debugw("transport: note received", "note", n.String())
	return n, nil
}

// SendNote sends the start message, holds for the note's duration (scaled by
// factor when modify is set) and sends the stop message.
func (t *Transport) SendNote(ctx context.Context, n note.Note, modify bool, factor float64) error {
	duration := n.Duration
	if modify {
		duration = Scale(duration, factor)
	}

	if err := t.SendMessage(n.Start); err != nil {
		return err
	}
	if _, err := clock.Wait(ctx, t.delay, duration, nil); err != nil {
		return err
	}
	if err := t.SendMessage(n.Stop); err != nil {
		return err
	}
	t.logger.Debugw("transport: note sent", "note", n.String(), "held_ms", duration)
	return nil
}

// Scale multiplies ms by factor, truncating toward zero and clamping to the
// 16-bit range.
func Scale(ms uint16, factor float64) uint16 {
	v := float64(ms) * factor
	switch {
	case v <= 0:
		return 0
	case v >= 0xFFFF:
		return 0xFFFF
	}
	return uint16(v)
}
