// Package controller runs the record/playback loop that ties the serial
// transport, the note log and the clock together.
package controller

import (
	"context"
	"fmt"

	"github.com/chase3718/lou-looper/internal/clock"
	"github.com/chase3718/lou-looper/internal/note"
	"github.com/chase3718/lou-looper/internal/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// -------------------- Capabilities --------------------

// Inputs are the three level-triggered mode lines.
type Inputs interface {
	Recording() bool
	Playback() bool
	Modifying() bool
}

// Analog samples the tempo control.
type Analog interface {
	Sample() (uint16, error)
}

// LEDs is the byte-wide diagnostic display.
type LEDs interface {
	Set(b byte)
}

// Transport is the serial side of the device.
type Transport interface {
	PollReady() bool
	ReadNote(ctx context.Context) (note.Note, error)
	SendNote(ctx context.Context, n note.Note, modify bool, factor float64) error
}

// NoteLog is the persistent side of the device.
type NoteLog interface {
	WriteNote(n note.Note) error
	ReadNote() (note.Note, error)
	ResetWriteAddr() error
	ResetReadAddr()
	IsFirstWrite() bool
	IsLastRead() bool
}

// -------------------- Tunables --------------------

const (
	// DefaultFallbackSpacingMs is the gap played before the first note after
	// playback wraps around.
	DefaultFallbackSpacingMs = 1000
	// DefaultAnalogMax is the full-scale reading of the tempo control.
	DefaultAnalogMax = 1023
)

// Config holds the controller's policy constants.
type Config struct {
	FallbackSpacingMs uint16
	SaturationMs      uint16
	AnalogMax         uint16
}

// DefaultConfig returns the stock policy.
func DefaultConfig() Config {
	return Config{
		FallbackSpacingMs: DefaultFallbackSpacingMs,
		SaturationMs:      clock.DefaultSaturationMs,
		AnalogMax:         DefaultAnalogMax,
	}
}

// -------------------- Controller --------------------

// Controller polls the mode inputs and runs one recording and one playback
// step per iteration. It holds the only edge flags in the system.
type Controller struct {
	cfg       Config
	transport Transport
	log       NoteLog
	clock     clock.Clock
	delay     clock.Delayer
	inputs    Inputs
	analog    Analog
	leds      LEDs
	logger    *zap.SugaredLogger

	recording bool
	playback  bool
	session   string
}

// New wires a controller. Zero fields in cfg take their defaults.
func New(cfg Config, tr Transport, nl NoteLog, c clock.Clock, d clock.Delayer,
	in Inputs, an Analog, leds LEDs, logger *zap.SugaredLogger) *Controller {
	def := DefaultConfig()
	if cfg.FallbackSpacingMs == 0 {
		cfg.FallbackSpacingMs = def.FallbackSpacingMs
	}
	if cfg.SaturationMs == 0 {
		cfg.SaturationMs = def.SaturationMs
	}
	if cfg.AnalogMax == 0 {
		cfg.AnalogMax = def.AnalogMax
	}
	return &Controller{
		cfg:       cfg,
		transport: tr,
		log:       nl,
		clock:     c,
		delay:     d,
		inputs:    in,
		analog:    an,
		leds:      leds,
		logger:    logger,
	}
}

// Run loops until ctx is done or a step fails. Every error it returns is
// fatal for the device.
func (c *Controller) Run(ctx context.Context) error {
	c.logger.Infow("controller: running")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		busy, err := c.Step(ctx)
		if err != nil {
			return err
		}
		if !busy {
			c.delay.DelayMs()
		}
	}
}

// Step runs one loop iteration: recording first, then playback. It reports
// whether a note was captured or replayed.
func (c *Controller) Step(ctx context.Context) (bool, error) {
	busy := false

	if c.inputs.Recording() {
		did, err := c.record(ctx)
		if err != nil {
			return busy, fmt.Errorf("recording: %w", err)
		}
		busy = busy || did
	} else if c.recording {
		c.recording = false
		c.logger.Infow("controller: recording stopped", "session", c.session)
	}

	if c.inputs.Playback() {
		did, err := c.play(ctx)
		if err != nil {
			return busy, fmt.Errorf("playback: %w", err)
		}
		busy = busy || did
	} else if c.playback {
		c.playback = false
		c.logger.Infow("controller: playback stopped")
	}

	return busy, nil
}

func (c *Controller) record(ctx context.Context) (bool, error) {
	if !c.recording {
		c.recording = true
		c.session = uuid.NewString()
		if err := c.log.ResetWriteAddr(); err != nil {
			return false, err
		}
		c.logger.Infow("controller: recording started", "session", c.session)
	}

	if !c.transport.PollReady() {
		return false, nil
	}

	var gap uint16
	if !c.log.IsFirstWrite() {
		gap = clock.Elapsed(c.clock, c.cfg.SaturationMs)
	}

	n, err := c.transport.ReadNote(ctx)
	if err != nil {
		return false, err
	}
	n.TimeElapsed = gap
	if err := c.log.WriteNote(n); err != nil {
		return false, err
	}
	c.clock.Reset()
	c.leds.Set(n.Start.Data1)

	c.logger.Infow("controller: note recorded",
		"session", c.session,
		"key", n.Key(),
		"duration_ms", n.Duration,
		"gap_ms", n.TimeElapsed,
	)
	return true, nil
}

func (c *Controller) play(ctx context.Context) (bool, error) {
	if !c.playback {
		c.playback = true
		c.log.ResetReadAddr()
		c.logger.Infow("controller: playback started")
	}

	if c.log.IsFirstWrite() {
		return false, nil
	}

	wrapping := c.log.IsLastRead()
	n, err := c.log.ReadNote()
	if err != nil {
		return false, err
	}
	spacing := n.TimeElapsed
	if wrapping {
		spacing = c.cfg.FallbackSpacingMs
	}

	modify := c.inputs.Modifying()
	var factor float64
	if modify {
		factor, err = c.factor()
		if err != nil {
			return false, err
		}
		spacing = transport.Scale(spacing, factor)
	}

	outcome, err := clock.Wait(ctx, c.delay, spacing, c.inputs.Recording)
	if err != nil {
		return false, err
	}
	if outcome == clock.Aborted {
		c.logger.Debugw("controller: playback pre-empted by recording", "key", n.Key())
		return false, nil
	}

	if err := c.transport.SendNote(ctx, n, modify, factor); err != nil {
		return false, err
	}
	c.clock.Reset()
	c.leds.Set(n.Start.Data1)

	c.logger.Infow("controller: note played",
		"key", n.Key(),
		"duration_ms", n.Duration,
		"spacing_ms", spacing,
		"factor", factor,
	)
	return true, nil
}

// factor normalises the analog control to [0,1].
func (c *Controller) factor() (float64, error) {
	v, err := c.analog.Sample()
	if err != nil {
		return 0, fmt.Errorf("analog sample: %w", err)
	}
	if v > c.cfg.AnalogMax {
		v = c.cfg.AnalogMax
	}
	return float64(v) / float64(c.cfg.AnalogMax), nil
}
