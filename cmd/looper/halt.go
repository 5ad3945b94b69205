package main

import (
	"errors"
	"fmt"

	"github.com/chase3718/lou-looper/internal/note"
	"github.com/chase3718/lou-looper/internal/notelog"
	"github.com/chase3718/lou-looper/internal/transport"
)

// Diagnostic codes shown on the LED bar and used as the exit status when the
// device halts.
const (
	codeProtocol      = 1
	codeFrame         = 2
	codeExhausted     = 3
	codeCursorInvalid = 4
	codeOther         = 5
)

// diagnosticCode maps a fatal error to its code.
func diagnosticCode(err error) int {
	switch {
	case errors.Is(err, note.ErrProtocol):
		return codeProtocol
	case errors.Is(err, transport.ErrFrame):
		return codeFrame
	case errors.Is(err, notelog.ErrExhausted):
		return codeExhausted
	case errors.Is(err, notelog.ErrCursorInvalid):
		return codeCursorInvalid
	}
	return codeOther
}

// haltError carries a fatal error up to main, which exits with code once
// every deferred cleanup has run.
type haltError struct {
	code int
	err  error
}

func (h *haltError) Error() string {
	return fmt.Sprintf("halted (code %d): %v", h.code, h.err)
}

func (h *haltError) Unwrap() error { return h.err }

type codeDisplay interface {
	ShowCode(code byte)
}

// halt records err on the log and the LED bar and returns the error that
// stops the process.
func halt(err error, leds codeDisplay) error {
	code := diagnosticCode(err)
	logger.Errorw("device halted", "code", code, "err", err)
	if leds != nil {
		leds.ShowCode(byte(code))
	}
	return &haltError{code: code, err: err}
}
