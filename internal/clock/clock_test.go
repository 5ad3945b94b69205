package clock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDelayer struct {
	calls  int
	onCall func(n int)
}

func (d *countingDelayer) DelayMs() {
	d.calls++
	if d.onCall != nil {
		d.onCall(d.calls)
	}
}

func TestCounterReadsMilliseconds(t *testing.T) {
	c := NewCounter(64*time.Microsecond, 65536)
	c.Tick(1000)
	assert.Equal(t, uint16(64), c.ReadMs())

	c.Reset()
	assert.Equal(t, uint16(0), c.ReadMs())
}

func TestOverflowLatchesUntilReset(t *testing.T) {
	c := NewCounter(time.Millisecond, 100)
	c.Tick(99)
	assert.False(t, c.OverflowOccurred())

	c.Tick(1)
	assert.True(t, c.OverflowOccurred())

	c.Reset()
	c.Tick(5)
	assert.True(t, c.OverflowOccurred(), "counter reset must not clear the latch")

	c.ResetOverflow()
	assert.False(t, c.OverflowOccurred())
}

func TestCounterHoldsAtWindow(t *testing.T) {
	c := NewCounter(time.Millisecond, 4194)
	c.Tick(10_000)
	c.Tick(0xFFFFFFFF)
	assert.Equal(t, uint16(4194), c.ReadMs())
}

func TestElapsedSaturatesAndConsumesOverflow(t *testing.T) {
	c := NewCounter(time.Millisecond, 50)
	c.Tick(20)
	assert.Equal(t, uint16(20), Elapsed(c, DefaultSaturationMs))

	c.Tick(100)
	assert.Equal(t, uint16(DefaultSaturationMs), Elapsed(c, DefaultSaturationMs))
	assert.False(t, c.OverflowOccurred())
}

func TestTickIsSafeAgainstConcurrentReads(t *testing.T) {
	c := NewCounter(time.Millisecond, 1<<20)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 10_000; i++ {
			c.Tick(1)
		}
	}()
	prev := uint16(0)
	for i := 0; i < 1000; i++ {
		ms := c.ReadMs()
		assert.GreaterOrEqual(t, ms, prev)
		prev = ms
	}
	wg.Wait()
	assert.Equal(t, uint16(10_000), c.ReadMs())
}

func TestStartAdvancesCounter(t *testing.T) {
	c := NewCounter(time.Millisecond, 0)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return c.ReadMs() >= 5 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestWaitCompletes(t *testing.T) {
	d := &countingDelayer{}
	out, err := Wait(context.Background(), d, 25, func() bool { return false })
	require.NoError(t, err)
	assert.Equal(t, Completed, out)
	assert.Equal(t, 25, d.calls)
}

func TestWaitAbortsWithinOneTick(t *testing.T) {
	cancelled := false
	d := &countingDelayer{onCall: func(n int) { cancelled = n == 7 }}
	out, err := Wait(context.Background(), d, 1000, func() bool { return cancelled })
	require.NoError(t, err)
	assert.Equal(t, Aborted, out)
	assert.Equal(t, 7, d.calls)
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	d := &countingDelayer{onCall: func(n int) {
		if n == 3 {
			cancel()
		}
	}}
	out, err := Wait(ctx, d, 10, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Aborted, out)
	assert.Equal(t, 3, d.calls)
}
