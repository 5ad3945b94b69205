package panel

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/eiannone/keyboard"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestKeyboardTogglesLines(t *testing.T) {
	k := NewKeyboard(1023, zap.NewNop().Sugar())
	assert.False(t, k.Recording())

	k.Handle('r', 0)
	k.Handle('p', 0)
	assert.True(t, k.Recording())
	assert.True(t, k.Playback())
	assert.False(t, k.Modifying())

	k.Handle('r', 0)
	k.Handle('m', 0)
	assert.False(t, k.Recording())
	assert.True(t, k.Modifying())
}

func TestKeyboardKnobClampsToRange(t *testing.T) {
	k := NewKeyboard(1023, zap.NewNop().Sugar())
	v, err := k.Sample()
	require.NoError(t, err)
	assert.Equal(t, uint16(1023), v)

	k.Handle(']', 0)
	v, _ = k.Sample()
	assert.Equal(t, uint16(1023), v)

	k.Handle('[', 0)
	v, _ = k.Sample()
	assert.Equal(t, uint16(1023-63), v)

	for i := 0; i < 40; i++ {
		k.Handle('[', 0)
	}
	v, _ = k.Sample()
	assert.Equal(t, uint16(0), v)
}

func TestKeyboardQuit(t *testing.T) {
	k := NewKeyboard(1023, zap.NewNop().Sugar())
	events := make(chan keyboard.KeyEvent, 3)
	events <- keyboard.KeyEvent{Rune: 'r'}
	events <- keyboard.KeyEvent{Key: keyboard.KeyCtrlC}
	events <- keyboard.KeyEvent{Rune: 'p'}
	close(events)

	k.Listen(events)

	select {
	case <-k.Done():
	default:
		t.Fatal("quit key did not close Done")
	}
	assert.True(t, k.Recording())
	assert.False(t, k.Playback(), "keys after quit are ignored")
}

func TestStaticLines(t *testing.T) {
	s := Static{Record: true, Knob: 512}
	assert.True(t, s.Recording())
	assert.False(t, s.Playback())
	v, err := s.Sample()
	require.NoError(t, err)
	assert.Equal(t, uint16(512), v)
}

func TestRenderBar(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	assert.Equal(t, "●○○○○○○●", RenderBar(0x81))
	assert.Equal(t, "○○○○○○○○", RenderBar(0))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLEDBarCoalescesUpdates(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	out := &syncBuffer{}
	bar := NewLEDBar(out, 20*time.Millisecond)

	bar.Set(1)
	bar.Set(2)
	bar.Set(60)
	assert.Equal(t, byte(60), bar.Value())

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "0x3C") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, strings.Count(out.String(), "LED"))
}

func TestLEDBarShowCodeDrawsImmediately(t *testing.T) {
	out := &syncBuffer{}
	bar := NewLEDBar(out, time.Hour)
	bar.ShowCode(4)
	assert.Contains(t, out.String(), "0x04")
}
