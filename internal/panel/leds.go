package panel

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/charmbracelet/lipgloss"
)

var (
	litStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	darkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#444444"))
)

// RenderBar draws b as eight LEDs, most significant bit first.
func RenderBar(b byte) string {
	var sb strings.Builder
	for i := 7; i >= 0; i-- {
		if b&(1<<i) != 0 {
			sb.WriteString(litStyle.Render("●"))
		} else {
			sb.WriteString(darkStyle.Render("○"))
		}
	}
	return sb.String()
}

// LEDBar shows a byte on the terminal. Updates that arrive faster than the
// refresh interval are coalesced into the last one.
type LEDBar struct {
	mu       sync.Mutex
	w        io.Writer
	value    byte
	debounce func(func())
}

// NewLEDBar returns a bar drawing on w at most once per refresh.
func NewLEDBar(w io.Writer, refresh time.Duration) *LEDBar {
	return &LEDBar{w: w, debounce: debounce.New(refresh)}
}

// Set implements controller.LEDs.
func (l *LEDBar) Set(b byte) {
	l.mu.Lock()
	l.value = b
	l.mu.Unlock()
	l.debounce(l.draw)
}

// Value returns the byte currently shown.
func (l *LEDBar) Value() byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// ShowCode draws a diagnostic code immediately, bypassing the refresh delay.
func (l *LEDBar) ShowCode(code byte) {
	l.mu.Lock()
	l.value = code
	l.mu.Unlock()
	l.draw()
}

func (l *LEDBar) draw() {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "LED %s  0x%02X\r\n", RenderBar(l.value), l.value)
}
