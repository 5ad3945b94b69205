package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chase3718/lou-looper/internal/clock"
	"github.com/chase3718/lou-looper/internal/controller"
	"github.com/chase3718/lou-looper/internal/panel"
	"github.com/chase3718/lou-looper/internal/transport"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type closableLink interface {
	transport.Link
	Close() error
}

// openLink opens a serial device, or a host MIDI port pair when the device
// is named "midi:<pattern>".
func openLink(device string, baud int) (closableLink, error) {
	if pattern, ok := strings.CutPrefix(device, transport.PortPrefix); ok {
		return transport.OpenMIDIPort(pattern, logger)
	}
	return transport.OpenSerial(device, baud, logger)
}

const ledRefresh = 50 * time.Millisecond

var runFlags struct {
	headless bool
	record   bool
	playback bool
	modify   bool
	knob     uint16
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the record/playback loop",
	Long: `Run the record/playback loop on the serial line. A device named
midi:<pattern> uses the first host MIDI port pair matching the pattern.

On a terminal the mode lines are driven from the keyboard:
  r record   p playback   m modify   [ ] tempo knob   q quit
With --headless (or without a terminal) the lines are fixed by flags.`,
	RunE: runLooper,
}

func init() {
	f := runCmd.Flags()
	f.String("serial", "", "serial port device (overrides config)")
	f.Int("baud", 0, "serial baud rate (overrides config)")
	f.Uint16("fallback-spacing", 0, "gap in ms before the first note after playback wraps (overrides config)")
	f.Uint16("saturation", 0, "elapsed ms recorded once the clock overflows (overrides config)")
	f.BoolVar(&runFlags.headless, "headless", false, "do not read the keyboard; use the line flags")
	f.BoolVar(&runFlags.record, "record", false, "hold the record line high (headless)")
	f.BoolVar(&runFlags.playback, "playback", false, "hold the playback line high (headless)")
	f.BoolVar(&runFlags.modify, "modify", false, "hold the modify line high (headless)")
	f.Uint16Var(&runFlags.knob, "knob", controller.DefaultAnalogMax, "tempo knob reading (headless)")

	rootCmd.AddCommand(runCmd)
}

func runLooper(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger.Infow("looper starting",
		"serial", cfg.Serial.Device,
		"baud", cfg.Serial.Baud,
		"storage", cfg.Storage.Path,
		"max_addr", cfg.Storage.MaxAddr,
		"fallback_spacing_ms", cfg.Playback.FallbackSpacingMs,
		"saturation_ms", cfg.Clock.SaturationMs,
	)

	leds := panel.NewLEDBar(os.Stdout, ledRefresh)

	nl, storage, err := openLog(cfg, false)
	if err != nil {
		return halt(err, leds)
	}
	defer storage.Close()
	logger.Infow("notelog: opened", "notes", nl.Len(), "capacity", nl.Capacity(), "write_cursor", nl.WriteCursor())

	link, err := openLink(cfg.Serial.Device, cfg.Serial.Baud)
	if err != nil {
		return err
	}
	defer link.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	counter := clock.NewCounter(time.Duration(cfg.Clock.TickPeriod), cfg.Clock.OverflowTicks)
	go counter.Start(ctx)

	var (
		inputs controller.Inputs
		analog controller.Analog
	)
	if !runFlags.headless && term.IsTerminal(int(os.Stdin.Fd())) {
		kb, err := panel.OpenKeyboard(cfg.Playback.AnalogMax, logger)
		if err != nil {
			return fmt.Errorf("keyboard: %w", err)
		}
		defer kb.Close()
		go func() {
			select {
			case <-kb.Done():
				stop()
			case <-ctx.Done():
			}
		}()
		inputs, analog = kb, kb
	} else {
		s := panel.Static{
			Record: runFlags.record,
			Play:   runFlags.playback,
			Modify: runFlags.modify,
			Knob:   runFlags.knob,
		}
		logger.Infow("panel: static lines", "record", s.Record, "playback", s.Play, "modify", s.Modify, "knob", s.Knob)
		inputs, analog = s, s
	}

	tr := transport.New(link, counter, clock.Sleeper{}, cfg.Clock.SaturationMs, logger)
	ctrl := controller.New(cfg.Controller(), tr, nl, counter, clock.Sleeper{}, inputs, analog, leds, logger)

	err = ctrl.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Infow("looper stopped", "notes", nl.Len())
		return nil
	}
	return halt(err, leds)
}
