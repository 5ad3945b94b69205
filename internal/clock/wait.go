package clock

import (
	"context"
	"time"
)

// Delayer blocks for one millisecond.
type Delayer interface {
	DelayMs()
}

// Sleeper is the host Delayer.
type Sleeper struct{}

func (Sleeper) DelayMs() { time.Sleep(time.Millisecond) }

// Outcome tells how a Wait ended.
type Outcome int

const (
	Completed Outcome = iota
	Aborted
)

func (o Outcome) String() string {
	if o == Aborted {
		return "aborted"
	}
	return "completed"
}

// Wait blocks for ms milliseconds in 1ms steps. After every step cancel is
// polled and, if it returns true, Wait gives up with Aborted. A nil cancel
// never aborts.
func Wait(ctx context.Context, d Delayer, ms uint16, cancel func() bool) (Outcome, error) {
	for ; ms > 0; ms-- {
		if err := ctx.Err(); err != nil {
			return Aborted, err
		}
		d.DelayMs()
		if cancel != nil && cancel() {
			return Aborted, nil
		}
	}
	return Completed, nil
}
