// Package clock provides the elapsed-time counter used to measure note
// durations and the gaps between notes.
package clock

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultTickPeriod is the interval between two counter ticks.
	DefaultTickPeriod = time.Millisecond
	// DefaultOverflowTicks matches the window of a 16-bit counter at 64µs per
	// count: 65536 * 64µs ≈ 4194ms.
	DefaultOverflowTicks = 4194
	// DefaultSaturationMs replaces any elapsed time read after an overflow.
	DefaultSaturationMs = 4000
)

// Clock is the elapsed-time capability consumed by the transport and the
// mode controller.
type Clock interface {
	Reset()
	ReadMs() uint16
	OverflowOccurred() bool
	ResetOverflow()
}

// Elapsed returns the time since the last Reset, or saturation if the clock
// overflowed in the meantime. An overflow is consumed by this call.
func Elapsed(c Clock, saturation uint16) uint16 {
	if c.OverflowOccurred() {
		c.ResetOverflow()
		return saturation
	}
	return c.ReadMs()
}

// Counter is a free-running tick counter with an overflow latch. Tick plays
// the part of the timer interrupt; every access to the shared state happens
// under mu, which stands in for masking that interrupt.
type Counter struct {
	mu       sync.Mutex
	ticks    uint32
	overflow bool

	period        time.Duration
	overflowTicks uint32
}

// NewCounter returns a stopped counter. Zero arguments select the defaults.
func NewCounter(period time.Duration, overflowTicks uint32) *Counter {
	if period <= 0 {
		period = DefaultTickPeriod
	}
	if overflowTicks == 0 {
		overflowTicks = DefaultOverflowTicks
	}
	return &Counter{period: period, overflowTicks: overflowTicks}
}

// Tick advances the counter by n ticks. Once the counter reaches the
// overflow threshold the latch is set and the counter holds there.
func (c *Counter) Tick(n uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.overflowTicks-c.ticks <= n {
		c.ticks = c.overflowTicks
		c.overflow = true
		return
	}
	c.ticks += n
}

// Reset zeroes the counter. The overflow latch is left alone.
func (c *Counter) Reset() {
	c.mu.Lock()
	c.ticks = 0
	c.mu.Unlock()
}

// ReadMs converts the current tick count to milliseconds.
func (c *Counter) ReadMs() uint16 {
	c.mu.Lock()
	ticks := c.ticks
	c.mu.Unlock()

	ms := time.Duration(ticks) * c.period / time.Millisecond
	if ms > 0xFFFF {
		return 0xFFFF
	}
	return uint16(ms)
}

// OverflowOccurred reports whether the counter reached its window since the
// last ResetOverflow.
func (c *Counter) OverflowOccurred() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflow
}

// ResetOverflow clears the overflow latch.
func (c *Counter) ResetOverflow() {
	c.mu.Lock()
	c.overflow = false
	c.mu.Unlock()
}

// Start drives Tick from the wall clock until ctx is done. Ticks missed by a
// late ticker are made up from the monotonic time so the count does not drift.
func (c *Counter) Start(ctx context.Context) {
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()

	last := time.Now()
	var carry time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			carry += now.Sub(last)
			last = now
			if n := carry / c.period; n > 0 {
				carry -= n * c.period
				c.Tick(uint32(n))
			}
		}
	}
}
