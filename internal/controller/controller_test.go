package controller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chase3718/lou-looper/internal/clock"
	"github.com/chase3718/lou-looper/internal/note"
	"github.com/chase3718/lou-looper/internal/notelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// -------------------- Fakes --------------------

type lines struct {
	record, playback, modify bool
}

func (l *lines) Recording() bool { return l.record }
func (l *lines) Playback() bool  { return l.playback }
func (l *lines) Modifying() bool { return l.modify }

type knob struct {
	value uint16
	err   error
}

func (k *knob) Sample() (uint16, error) { return k.value, k.err }

type ledLog struct{ shown []byte }

func (l *ledLog) Set(b byte) { l.shown = append(l.shown, b) }

type sentNote struct {
	n      note.Note
	modify bool
	factor float64
}

type fakeTransport struct {
	incoming []note.Note
	sent     []sentNote
	readErr  error
}

func (f *fakeTransport) PollReady() bool { return len(f.incoming) > 0 || f.readErr != nil }

func (f *fakeTransport) ReadNote(ctx context.Context) (note.Note, error) {
	if f.readErr != nil {
		return note.Note{}, f.readErr
	}
	n := f.incoming[0]
	f.incoming = f.incoming[1:]
	return n, nil
}

func (f *fakeTransport) SendNote(ctx context.Context, n note.Note, modify bool, factor float64) error {
	f.sent = append(f.sent, sentNote{n: n, modify: modify, factor: factor})
	return nil
}

// tickingDelayer advances the clock by one tick per millisecond waited and
// lets a test act at a given call.
type tickingDelayer struct {
	clock  *clock.Counter
	calls  int
	onCall func(n int)
}

func (d *tickingDelayer) DelayMs() {
	d.calls++
	if d.clock != nil {
		d.clock.Tick(1)
	}
	if d.onCall != nil {
		d.onCall(d.calls)
	}
}

type rig struct {
	ctrl  *Controller
	in    *lines
	knob  *knob
	leds  *ledLog
	tr    *fakeTransport
	log   *notelog.Log
	store *notelog.MemoryStorage
	clock *clock.Counter
	delay *tickingDelayer
}

func newRig(t *testing.T) *rig {
	t.Helper()
	store := notelog.NewMemoryStorage(notelog.DefaultMaxAddr)
	nl, err := notelog.Open(store, notelog.DefaultMaxAddr)
	require.NoError(t, err)

	r := &rig{
		in:    &lines{},
		knob:  &knob{},
		leds:  &ledLog{},
		tr:    &fakeTransport{},
		log:   nl,
		store: store,
		clock: clock.NewCounter(time.Millisecond, 0),
	}
	r.delay = &tickingDelayer{clock: r.clock}
	r.ctrl = New(Config{}, r.tr, r.log, r.clock, r.delay, r.in, r.knob, r.leds, zap.NewNop().Sugar())
	return r
}

func mkNote(key byte, duration, gap uint16) note.Note {
	return note.Note{
		Start:       note.Message{Status: 0x90, Data1: key, Data2: 100},
		Stop:        note.Message{Status: 0x80, Data1: key, Data2: 0},
		Duration:    duration,
		TimeElapsed: gap,
	}
}

// -------------------- Recording --------------------

func TestRecordingEntryResetsLog(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.log.WriteNote(mkNote(60, 1, 0)))
	require.False(t, r.log.IsFirstWrite())

	r.in.record = true
	busy, err := r.ctrl.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, busy, "no input pending")
	assert.True(t, r.log.IsFirstWrite())
}

func TestRecordingStoresGapFromClock(t *testing.T) {
	r := newRig(t)
	r.in.record = true
	ctx := context.Background()

	r.tr.incoming = []note.Note{mkNote(60, 120, 999)}
	busy, err := r.ctrl.Step(ctx)
	require.NoError(t, err)
	assert.True(t, busy)

	r.clock.Tick(50)
	r.tr.incoming = []note.Note{mkNote(64, 200, 0)}
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)

	notes, err := r.log.Notes()
	require.NoError(t, err)
	require.Len(t, notes, 2)
	assert.Equal(t, mkNote(60, 120, 0), notes[0], "first note after entry has no gap")
	assert.Equal(t, mkNote(64, 200, 50), notes[1])
	assert.Equal(t, []byte{60, 64}, r.leds.shown)
	assert.Equal(t, uint16(0), r.clock.ReadMs(), "clock restarts after each note")
}

func TestRecordingSaturatesLongGap(t *testing.T) {
	r := newRig(t)
	r.in.record = true
	ctx := context.Background()

	r.tr.incoming = []note.Note{mkNote(60, 10, 0)}
	_, err := r.ctrl.Step(ctx)
	require.NoError(t, err)

	r.clock.Tick(clock.DefaultOverflowTicks + 10)
	r.tr.incoming = []note.Note{mkNote(62, 10, 0)}
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)

	notes, err := r.log.Notes()
	require.NoError(t, err)
	assert.Equal(t, uint16(clock.DefaultSaturationMs), notes[1].TimeElapsed)
	assert.False(t, r.clock.OverflowOccurred())
}

func TestRecordingPropagatesTransportError(t *testing.T) {
	r := newRig(t)
	r.in.record = true
	r.tr.readErr = note.ErrProtocol

	_, err := r.ctrl.Step(context.Background())
	assert.ErrorIs(t, err, note.ErrProtocol)
}

func TestRecordingPropagatesExhaustion(t *testing.T) {
	r := newRig(t)
	r.in.record = true
	ctx := context.Background()
	for i := 0; i < 102; i++ {
		r.tr.incoming = []note.Note{mkNote(byte(i%128), 1, 0)}
		_, err := r.ctrl.Step(ctx)
		require.NoError(t, err)
	}
	r.tr.incoming = []note.Note{mkNote(1, 1, 0)}
	_, err := r.ctrl.Step(ctx)
	assert.ErrorIs(t, err, notelog.ErrExhausted)
}

func TestRecordingEdgeRearmsAfterRelease(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()
	r.in.record = true
	r.tr.incoming = []note.Note{mkNote(60, 1, 0)}
	_, err := r.ctrl.Step(ctx)
	require.NoError(t, err)

	r.in.record = false
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, r.log.Len())

	r.in.record = true
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, r.log.Len(), "re-entering record starts a new take")
}

// -------------------- Playback --------------------

func TestPlaybackUsesStoredSpacingAndFallbackAfterWrap(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.log.WriteNote(mkNote(60, 120, 0)))
	require.NoError(t, r.log.WriteNote(mkNote(64, 200, 50)))
	r.in.playback = true
	ctx := context.Background()

	_, err := r.ctrl.Step(ctx) // note A, spacing 0
	require.NoError(t, err)
	assert.Equal(t, 0, r.delay.calls)

	_, err = r.ctrl.Step(ctx) // note B, spacing 50
	require.NoError(t, err)
	assert.Equal(t, 50, r.delay.calls)
	assert.True(t, r.log.IsLastRead())

	_, err = r.ctrl.Step(ctx) // wraps to A, fallback spacing
	require.NoError(t, err)
	assert.Equal(t, 50+DefaultFallbackSpacingMs, r.delay.calls)

	require.Len(t, r.tr.sent, 3)
	assert.Equal(t, mkNote(60, 120, 0), r.tr.sent[0].n)
	assert.Equal(t, mkNote(64, 200, 50), r.tr.sent[1].n)
	assert.Equal(t, mkNote(60, 120, 0), r.tr.sent[2].n)
	assert.False(t, r.tr.sent[0].modify)
	assert.Equal(t, []byte{60, 64, 60}, r.leds.shown)
}

func TestPlaybackEntryRewindsReadCursor(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.log.WriteNote(mkNote(60, 1, 0)))
	require.NoError(t, r.log.WriteNote(mkNote(62, 1, 0)))
	ctx := context.Background()

	r.in.playback = true
	_, err := r.ctrl.Step(ctx)
	require.NoError(t, err)

	r.in.playback = false
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)

	r.in.playback = true
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)

	require.Len(t, r.tr.sent, 2)
	assert.Equal(t, byte(60), r.tr.sent[1].n.Start.Data1)
}

func TestPlaybackOfEmptyLogSendsNothing(t *testing.T) {
	r := newRig(t)
	r.in.playback = true
	busy, err := r.ctrl.Step(context.Background())
	require.NoError(t, err)
	assert.False(t, busy)
	assert.Empty(t, r.tr.sent)
}

func TestPlaybackScalesSpacingWhenModifying(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.log.WriteNote(mkNote(60, 100, 0)))
	require.NoError(t, r.log.WriteNote(mkNote(62, 100, 400)))
	r.log.ResetReadAddr()
	ctx := context.Background()

	r.in.playback = true
	_, err := r.ctrl.Step(ctx)
	require.NoError(t, err)

	r.in.modify = true
	r.knob.value = 1023 / 4
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)

	assert.Equal(t, 99, r.delay.calls) // 400 * 255/1023
	require.Len(t, r.tr.sent, 2)
	assert.True(t, r.tr.sent[1].modify)
	assert.InDelta(t, 255.0/1023.0, r.tr.sent[1].factor, 1e-9)
}

func TestPlaybackAnalogError(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.log.WriteNote(mkNote(60, 100, 0)))
	r.in.playback = true
	r.in.modify = true
	r.knob.err = errors.New("adc stuck")

	_, err := r.ctrl.Step(context.Background())
	assert.Error(t, err)
}

func TestRecordingPreemptsPlaybackWait(t *testing.T) {
	r := newRig(t)
	require.NoError(t, r.log.WriteNote(mkNote(60, 100, 0)))
	require.NoError(t, r.log.WriteNote(mkNote(62, 100, 500)))
	ctx := context.Background()

	r.in.playback = true
	_, err := r.ctrl.Step(ctx) // A plays immediately
	require.NoError(t, err)
	require.Len(t, r.tr.sent, 1)

	r.delay.onCall = func(n int) {
		if n == 20 {
			r.in.record = true
		}
	}
	busy, err := r.ctrl.Step(ctx)
	require.NoError(t, err)
	assert.False(t, busy)
	assert.Len(t, r.tr.sent, 1, "pre-empted note is not transmitted")
	assert.Equal(t, 20, r.delay.calls, "control returns on the tick the line rose")
}

func TestRunStopsOnContext(t *testing.T) {
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	r.delay.onCall = func(n int) {
		if n == 5 {
			cancel()
		}
	}
	err := r.ctrl.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, r.delay.calls)
}

func TestRunReturnsFatalError(t *testing.T) {
	r := newRig(t)
	r.in.record = true
	r.tr.readErr = errors.New("frame error")
	err := r.ctrl.Run(context.Background())
	assert.ErrorContains(t, err, "recording")
}

// -------------------- Scenario --------------------

func TestRecordThenPlayBack(t *testing.T) {
	r := newRig(t)
	ctx := context.Background()

	r.in.record = true
	r.tr.incoming = []note.Note{mkNote(60, 120, 0)}
	_, err := r.ctrl.Step(ctx)
	require.NoError(t, err)
	r.clock.Tick(50)
	r.tr.incoming = []note.Note{mkNote(64, 200, 0)}
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)

	r.in.record = false
	r.in.playback = true
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)
	assert.False(t, r.log.IsLastRead())
	_, err = r.ctrl.Step(ctx)
	require.NoError(t, err)
	assert.True(t, r.log.IsLastRead())

	require.Len(t, r.tr.sent, 2)
	assert.Equal(t, mkNote(60, 120, 0), r.tr.sent[0].n)
	assert.Equal(t, mkNote(64, 200, 50), r.tr.sent[1].n)

	// the log survives a restart
	reopened, err := notelog.Open(r.store, notelog.DefaultMaxAddr)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Len())
}
